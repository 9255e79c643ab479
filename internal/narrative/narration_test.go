package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/types"
)

func testConfig(url string) config.NarrationConfig {
	cfg := config.DefaultConfig().Narration
	cfg.APIKey = "test-key"
	cfg.BaseURL = url
	return cfg
}

func TestNewClientDisabledWithoutKey(t *testing.T) {
	client := NewClient(config.DefaultConfig().Narration, nil)
	assert.Nil(t, client)
	assert.False(t, client.Enabled())

	narrator := NewNarrator(client)
	assert.False(t, narrator.Enabled())
	_, err := narrator.DayIntro(context.Background(), types.NarrationRequest{Round: 2})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestDayIntro(t *testing.T) {
	var got request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Crows gather on the chapel roof."}],"usage":{"input_tokens":40,"output_tokens":9}}`))
	}))
	defer server.Close()

	narrator := NewNarrator(NewClient(testConfig(server.URL), nil))
	require.True(t, narrator.Enabled())

	text, err := narrator.DayIntro(context.Background(), types.NarrationRequest{
		SessionID: "group-1",
		Round:     3,
		Victim:    "Maria",
		Alive:     4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Crows gather on the chapel roof.", text)

	assert.Equal(t, "claude-haiku-4-5-20251001", got.Model)
	assert.Equal(t, dayIntroSystem, got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Day 3 begins. Maria was found dead this morning. 4 townsfolk remain alive.", got.Messages[0].Content)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"overloaded"}`},
		{name: "empty content", status: http.StatusOK, body: `{"content":[]}`, wantErr: ErrEmptyResponse},
		{name: "bad json", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL), nil)
			_, err := client.Complete(context.Background(), "system", "prompt", 50)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCompleteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"text":"ok"}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxPerMinute = 1
	client := NewClient(cfg, nil)

	_, err := client.Complete(context.Background(), "", "first", 10)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), "", "second", 10)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDayIntroPromptWithoutVictim(t *testing.T) {
	prompt := dayIntroPrompt(types.NarrationRequest{Round: 2, Alive: 5})
	assert.Equal(t, "Day 2 begins. Nobody died in the night. 5 townsfolk remain alive.", prompt)
}
