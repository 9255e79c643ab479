package interfaces

import (
	"context"

	"github.com/user/mafia-suspicion/internal/types"
)

// MessageSender defines the interface for sending messages
type MessageSender interface {
	SendMessage(phoneNumber, recipient, message string) (string, error)
}

// Publisher delivers rendered state to players. Delivery is fire-and-forget
// from the game's point of view.
type Publisher interface {
	Publish(ctx context.Context, update types.Update) error
}

// Narrator produces optional flavor text for day transitions
type Narrator interface {
	Enabled() bool
	DayIntro(ctx context.Context, req types.NarrationRequest) (string, error)
}

// GameManager defines the interface for game operations
type GameManager interface {
	CreateLobby(ctx context.Context, sessionID string, host types.Identity) (types.Snapshot, error)
	EndGame(ctx context.Context, sessionID, requesterID string) error
	Dispatch(ctx context.Context, sessionID string, cmd types.Command) (types.CommandResult, error)
	Snapshot(sessionID string) (types.Snapshot, error)
	Suspicion(sessionID, observerID string) (types.SuspicionSnapshot, error)
	SessionForPlayer(playerID string) (string, bool)
	ListSessions() []string
}
