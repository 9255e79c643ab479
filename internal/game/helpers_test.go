package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/user/mafia-suspicion/internal/types"
)

// fixedRand always returns the same draws so rule outcomes are predictable.
// With f close to 1 every probability check fails and noise sits near NoiseMax.
type fixedRand struct {
	f float64
	n int
}

func (r *fixedRand) Float64() float64 { return r.f }

func (r *fixedRand) Intn(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

func (r *fixedRand) Shuffle(n int, swap func(i, j int)) {}

func quietRand() *fixedRand {
	return &fixedRand{f: 0.99}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func testSettings() Settings {
	return Settings{
		NightDuration:      30 * time.Second,
		DiscussionDuration: 180 * time.Second,
		VotingDuration:     30 * time.Second,
		MinPlayers:         3,
		AutoStartPlayers:   5,
		MaxBots:            5,
		LogLimit:           8,
		LogView:            5,
		RumorChance:        0.3,
		FrameChance:        0.4,
		BotBias:            0.6,
		Vindication:        VindicationLegacy,
		Weights:            DefaultWeights(),
	}
}

// newLobby opens a lobby hosted by the first id and joins the rest
func newLobby(t *testing.T, clock *fakeClock, ids ...string) *Session {
	t.Helper()
	s := NewSession("chan-1", types.Identity{ID: ids[0], Name: ids[0]}, testSettings(), quietRand(), clock.Now, nil)
	for _, id := range ids[1:] {
		_, _, err := s.Apply(types.JoinCommand{Player: types.Identity{ID: id, Name: id}})
		require.NoError(t, err)
	}
	return s
}

// startWithRoles begins a game with roles assigned in join order
func startWithRoles(t *testing.T, clock *fakeClock, roles map[string]types.Role, ids ...string) *Session {
	t.Helper()
	s := newLobby(t, clock, ids...)
	dealt := make([]types.Role, 0, len(ids))
	for _, id := range ids {
		dealt = append(dealt, roles[id])
	}
	s.mu.Lock()
	s.begin(dealt)
	s.takeOutcome()
	s.mu.Unlock()
	return s
}

// moveTo forces the session into a phase without resolving the current one
func moveTo(s *Session, phase types.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetRoundState()
	s.enterPhase(phase)
	s.takeOutcome()
}

func lastLog(s *Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) == 0 {
		return ""
	}
	return s.logs[len(s.logs)-1]
}

func logsOf(s *Session) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}
