package game

import "errors"

// Validation errors returned to callers. None of them leave a session in a
// partially mutated state.
var (
	ErrSessionNotFound    = errors.New("no game in this channel")
	ErrLobbyExists        = errors.New("a game is already running in this channel")
	ErrGameOver           = errors.New("game over")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotStarted         = errors.New("game has not started")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrNotHost            = errors.New("only the host can do that")
	ErrHostCannotLeave    = errors.New("the host cannot leave the lobby")
	ErrAlreadyJoined      = errors.New("player already joined")
	ErrUnknownPlayer      = errors.New("player not found")
	ErrUnknownTarget      = errors.New("target not found")
	ErrPlayerDead         = errors.New("dead players cannot act")
	ErrTargetDead         = errors.New("target is already dead")
	ErrSelfTarget         = errors.New("you cannot target yourself")
	ErrTeammateTarget     = errors.New("mafia cannot target a teammate")
	ErrWrongPhase         = errors.New("that action is not allowed in this phase")
	ErrNoNightAction      = errors.New("your role has no night action")
	ErrInvalidAction      = errors.New("invalid discussion action")
	ErrBotLimit           = errors.New("bot limit reached")
	ErrInvalidBotCount    = errors.New("bot count must be between 1 and 5")
	ErrInvalidBotMode     = errors.New("bot mode must be auto or manual")
	ErrNotYourBot         = errors.New("you can only act for yourself or a manual bot")
	ErrUnknownCommand     = errors.New("unknown command")
)
