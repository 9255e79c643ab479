package whatsapp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/game"
	"github.com/user/mafia-suspicion/internal/types"
	"go.uber.org/zap"
)

// Mock GameManager for testing
type MockGameManager struct {
	mock.Mock
}

func (m *MockGameManager) CreateLobby(ctx context.Context, sessionID string, host types.Identity) (types.Snapshot, error) {
	args := m.Called(sessionID, host)
	return args.Get(0).(types.Snapshot), args.Error(1)
}

func (m *MockGameManager) EndGame(ctx context.Context, sessionID, requesterID string) error {
	args := m.Called(sessionID, requesterID)
	return args.Error(0)
}

func (m *MockGameManager) Dispatch(ctx context.Context, sessionID string, cmd types.Command) (types.CommandResult, error) {
	args := m.Called(sessionID, cmd)
	return args.Get(0).(types.CommandResult), args.Error(1)
}

func (m *MockGameManager) Snapshot(sessionID string) (types.Snapshot, error) {
	args := m.Called(sessionID)
	return args.Get(0).(types.Snapshot), args.Error(1)
}

func (m *MockGameManager) Suspicion(sessionID, observerID string) (types.SuspicionSnapshot, error) {
	args := m.Called(sessionID, observerID)
	return args.Get(0).(types.SuspicionSnapshot), args.Error(1)
}

func (m *MockGameManager) SessionForPlayer(playerID string) (string, bool) {
	args := m.Called(playerID)
	return args.String(0), args.Bool(1)
}

func (m *MockGameManager) ListSessions() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

const groupChat = "120363000000000000@g.us"

func newTestClientManager(gm *MockGameManager) *ClientManager {
	return &ClientManager{
		clients:     make(map[string]*ClientInfo),
		gameManager: gm,
		formatter:   NewMessageFormatter(),
		config:      config.DefaultConfig(),
		logger:      zap.NewNop(),
	}
}

func groupMessage(sender, text string) inbound {
	return inbound{
		ChatID:  groupChat,
		IsGroup: true,
		Sender:  types.Identity{ID: sender, Name: "Player " + sender, Mention: "@" + sender},
		Text:    text,
	}
}

func directMessage(sender, text string) inbound {
	in := groupMessage(sender, text)
	in.ChatID = sender + "@s.whatsapp.net"
	in.IsGroup = false
	return in
}

func rosterSnapshot() types.Snapshot {
	return types.Snapshot{
		SessionID: groupChat,
		Status:    types.StatusInGame,
		Phase:     types.PhaseNight,
		Round:     1,
		Roster: []types.PlayerView{
			{Index: 1, ID: "111", Name: "Ana", Alive: true, Host: true},
			{Index: 2, ID: "222", Name: "Bia", Alive: true},
			{Index: 3, ID: "bot-1", Name: "Detector [bot]", Alive: true, Bot: true},
		},
	}
}

func TestProcessGameCommand(t *testing.T) {
	// Setup
	ctx := context.Background()
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)

	// Test case 1: Create a lobby from a group
	mockGameManager.On("CreateLobby", groupChat, mock.AnythingOfType("types.Identity")).Return(types.Snapshot{}, nil).Once()

	r := clientManager.processGameCommand(ctx, groupMessage("111", "mafia create"))
	assert.Contains(t, r.Text, "Lobby created by Player 111")
	assert.False(t, r.Private)

	// Test case 2: Join
	join := types.JoinCommand{Player: types.Identity{ID: "222", Name: "Player 222", Mention: "@222"}}
	mockGameManager.On("Dispatch", groupChat, join).Return(types.CommandResult{Message: "Player 222 joined the game.", Changed: true}, nil).Once()

	r = clientManager.processGameCommand(ctx, groupMessage("222", "mafia join"))
	assert.Equal(t, "Player 222 joined the game.", r.Text)

	// Test case 3: Commands are case insensitive
	mockGameManager.On("Dispatch", groupChat, types.StartCommand{RequesterID: "111"}).Return(types.CommandResult{Message: "The game begins!"}, nil).Once()

	r = clientManager.processGameCommand(ctx, groupMessage("111", "  MAFIA Start "))
	assert.Equal(t, "The game begins!", r.Text)

	// Test case 4: Unknown command
	r = clientManager.processGameCommand(ctx, groupMessage("111", "dance"))
	assert.Contains(t, r.Text, "Unknown command")

	// Test case 5: Help
	r = clientManager.processGameCommand(ctx, groupMessage("111", "help"))
	assert.Contains(t, r.Text, "MAFIA COMMANDS")
	assert.Contains(t, r.Text, "/mafia join")

	mockGameManager.AssertExpectations(t)
}

func TestCreateRequiresGroup(t *testing.T) {
	// Setup
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)

	r := clientManager.processGameCommand(context.Background(), directMessage("111", "mafia create"))
	assert.Contains(t, r.Text, "group chat")
	mockGameManager.AssertNotCalled(t, "CreateLobby", mock.Anything, mock.Anything)
}

func TestNightActionFromDirectMessage(t *testing.T) {
	// Setup
	ctx := context.Background()
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)

	mockGameManager.On("SessionForPlayer", "111").Return(groupChat, true)
	mockGameManager.On("Snapshot", groupChat).Return(rosterSnapshot(), nil)
	cmd := types.NightActionCommand{ActorID: "111", TargetID: "222"}
	mockGameManager.On("Dispatch", groupChat, cmd).Return(types.CommandResult{Message: "Your target is set."}, nil).Once()

	r := clientManager.processGameCommand(ctx, directMessage("111", "kill 2"))
	assert.Equal(t, "Your target is set.", r.Text)
	assert.True(t, r.Private)

	mockGameManager.AssertExpectations(t)
}

func TestNightActionErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *MockGameManager)
		text  string
		want  string
	}{
		{
			name: "not in a game",
			setup: func(m *MockGameManager) {
				m.On("SessionForPlayer", "111").Return("", false)
			},
			text: "save 1",
			want: "You are not in any game",
		},
		{
			name: "index out of range",
			setup: func(m *MockGameManager) {
				m.On("SessionForPlayer", "111").Return(groupChat, true)
				m.On("Snapshot", groupChat).Return(rosterSnapshot(), nil)
			},
			text: "investigate 9",
			want: "Pick a player number",
		},
		{
			name: "missing target",
			setup: func(m *MockGameManager) {
				m.On("SessionForPlayer", "111").Return(groupChat, true)
			},
			text: "kill",
			want: "Missing arguments",
		},
		{
			name: "rejected by the game",
			setup: func(m *MockGameManager) {
				m.On("SessionForPlayer", "111").Return(groupChat, true)
				m.On("Snapshot", groupChat).Return(rosterSnapshot(), nil)
				m.On("Dispatch", groupChat, mock.Anything).Return(types.CommandResult{}, game.ErrSelfTarget)
			},
			text: "save 1",
			want: "⚠️ You cannot target yourself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockGameManager := new(MockGameManager)
			tt.setup(mockGameManager)
			clientManager := newTestClientManager(mockGameManager)

			r := clientManager.processGameCommand(context.Background(), directMessage("111", tt.text))
			assert.Contains(t, r.Text, tt.want)
			assert.True(t, r.Private)
		})
	}
}

func TestVoteCommands(t *testing.T) {
	// Setup
	ctx := context.Background()
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)
	mockGameManager.On("Snapshot", groupChat).Return(rosterSnapshot(), nil)

	// Test case 1: Vote for a roster index
	cast := types.VoteCommand{ActorID: "222", Vote: types.Cast("111")}
	mockGameManager.On("Dispatch", groupChat, cast).Return(types.CommandResult{Message: "Vote recorded."}, nil).Once()

	r := clientManager.processGameCommand(ctx, groupMessage("222", "vote 1"))
	assert.Equal(t, "Vote recorded.", r.Text)
	assert.False(t, r.Private)

	// Test case 2: Vote skip does not consult the roster
	skip := types.VoteCommand{ActorID: "111", Vote: types.Skip()}
	mockGameManager.On("Dispatch", groupChat, skip).Return(types.CommandResult{Message: "Skip recorded."}, nil).Once()

	r = clientManager.processGameCommand(ctx, groupMessage("111", "vote skip"))
	assert.Equal(t, "Skip recorded.", r.Text)

	// Test case 3: Accuse
	accuse := types.DiscussionCommand{ActorID: "111", Kind: types.ActionAccuse, TargetID: "222"}
	mockGameManager.On("Dispatch", groupChat, accuse).Return(types.CommandResult{Message: "Accusation made."}, nil).Once()

	r = clientManager.processGameCommand(ctx, groupMessage("111", "accuse 2"))
	assert.Equal(t, "Accusation made.", r.Text)

	mockGameManager.AssertExpectations(t)
}

func TestHostDrivesManualBot(t *testing.T) {
	// Setup
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)
	mockGameManager.On("Snapshot", groupChat).Return(rosterSnapshot(), nil)

	cmd := types.NightActionCommand{ActorID: "bot-1", IssuerID: "111", TargetID: "222"}
	mockGameManager.On("Dispatch", groupChat, cmd).Return(types.CommandResult{Message: "Investigation queued.", Reading: types.ReadingSuspicious}, nil).Once()

	r := clientManager.processGameCommand(context.Background(), groupMessage("111", "as 3 investigate 2"))
	assert.Equal(t, "Investigation queued.", r.Text)
	assert.True(t, r.Private)

	mockGameManager.AssertExpectations(t)
}

func TestBotsCommand(t *testing.T) {
	// Setup
	ctx := context.Background()
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)

	cmd := types.AddBotsCommand{RequesterID: "111", Count: 2, Mode: types.BotModeManual}
	mockGameManager.On("Dispatch", groupChat, cmd).Return(types.CommandResult{Message: "Added 2 bots."}, nil).Once()

	r := clientManager.processGameCommand(ctx, groupMessage("111", "mafia bots 2 manual"))
	assert.Equal(t, "Added 2 bots.", r.Text)

	r = clientManager.processGameCommand(ctx, groupMessage("111", "mafia bots many"))
	assert.Contains(t, r.Text, "Invalid bot count")

	mockGameManager.AssertExpectations(t)
}

func TestSuspicionIsPrivate(t *testing.T) {
	// Setup
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)
	mockGameManager.On("Suspicion", groupChat, "222").Return(types.SuspicionSnapshot{
		SessionID: groupChat,
		Observer:  "222",
		Round:     2,
		Scores: []types.SuspicionScore{
			{TargetID: "111", Name: "Ana", Alive: true, Score: 72, Bucket: types.BucketConviction},
		},
	}, nil)

	r := clientManager.processGameCommand(context.Background(), groupMessage("222", "mafia sus"))
	assert.True(t, r.Private)
	assert.Contains(t, r.Text, "YOUR SUSPICIONS")
	assert.Contains(t, r.Text, "▓▓▓▓▓▓▓░░░ 72 conviction")
}

func TestEndGame(t *testing.T) {
	// Setup
	mockGameManager := new(MockGameManager)
	clientManager := newTestClientManager(mockGameManager)

	mockGameManager.On("EndGame", groupChat, "222").Return(game.ErrNotHost).Once()
	r := clientManager.processGameCommand(context.Background(), groupMessage("222", "mafia end"))
	assert.Equal(t, "⚠️ Only the host can do that", r.Text)

	mockGameManager.On("EndGame", groupChat, "111").Return(nil).Once()
	r = clientManager.processGameCommand(context.Background(), groupMessage("111", "mafia end"))
	assert.Contains(t, r.Text, "ended by the host")

	mockGameManager.AssertExpectations(t)
}

func TestParseStoreFile(t *testing.T) {
	phone, session, ok := parseStoreFile("/data/store_5521999999999_abc-123.db")
	require.True(t, ok)
	assert.Equal(t, "5521999999999", phone)
	assert.Equal(t, "abc-123", session)

	_, _, ok = parseStoreFile("store_.db")
	assert.False(t, ok)
	_, _, ok = parseStoreFile("other_5521_abc.db")
	assert.False(t, ok)
}

func TestLatestStoreFiles(t *testing.T) {
	now := time.Now()
	files := []storeFile{
		{path: "a1", phoneNumber: "1", modTime: now.Add(-time.Hour)},
		{path: "a2", phoneNumber: "1", modTime: now},
		{path: "b1", phoneNumber: "2", modTime: now},
		{path: "a0", phoneNumber: "1", modTime: now.Add(-2 * time.Hour)},
	}

	latest, stale := latestStoreFiles(files)
	assert.Equal(t, "a2", latest["1"].path)
	assert.Equal(t, "b1", latest["2"].path)
	assert.Len(t, stale, 2)
}

func TestStripPrefix(t *testing.T) {
	text, ok := stripPrefix("  /mafia join ", "/")
	assert.True(t, ok)
	assert.Equal(t, "mafia join", text)

	_, ok = stripPrefix("hello", "/")
	assert.False(t, ok)
	_, ok = stripPrefix("/", "/")
	assert.False(t, ok)
}

func TestParseJID(t *testing.T) {
	jid, err := parseJID("5521999999999")
	require.NoError(t, err)
	assert.Equal(t, "s.whatsapp.net", jid.Server)
	assert.Equal(t, "5521999999999", jid.User)

	jid, err = parseJID(groupChat)
	require.NoError(t, err)
	assert.Equal(t, "g.us", jid.Server)
}

func TestSendWithoutClient(t *testing.T) {
	clientManager := newTestClientManager(new(MockGameManager))

	_, err := clientManager.SendMessage("", "5521999999999", "hi")
	assert.ErrorIs(t, err, ErrNoClient)

	err = clientManager.Publish(context.Background(), types.Update{SessionID: groupChat})
	assert.ErrorIs(t, err, ErrNoClient)

	// Sessions that are not group chats are skipped
	err = clientManager.Publish(context.Background(), types.Update{SessionID: "chan-1"})
	assert.NoError(t, err)
}
