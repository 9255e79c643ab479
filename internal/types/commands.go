package types

// Identity is how the chat platform introduces a person
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Mention string `json:"mention,omitempty"`
}

// Command is an inbound request converted from a user interaction. Commands
// are applied to one session under its lock.
type Command interface {
	Name() string
	isCommand()
}

// JoinCommand adds a player to a waiting lobby
type JoinCommand struct {
	Player Identity
}

// LeaveCommand removes a player from a waiting lobby
type LeaveCommand struct {
	PlayerID string
}

// AddBotsCommand adds simulated players
type AddBotsCommand struct {
	RequesterID string
	Count       int
	Mode        BotMode
}

// StartCommand starts the game manually
type StartCommand struct {
	RequesterID string
}

// NightActionCommand submits a kill, save or investigation. IssuerID is the
// host when a manual-mode bot is being driven, otherwise empty.
type NightActionCommand struct {
	ActorID  string
	IssuerID string
	TargetID string
}

// DiscussionCommand submits an accuse, defend or skip
type DiscussionCommand struct {
	ActorID  string
	IssuerID string
	Kind     ActionKind
	TargetID string
}

// VoteCommand casts or changes a ballot
type VoteCommand struct {
	ActorID  string
	IssuerID string
	Vote     Vote
}

// AdvanceCommand is the host's end-phase override
type AdvanceCommand struct {
	RequesterID string
}

// EndCommand is the host's request to end and discard the game
type EndCommand struct {
	RequesterID string
}

func (JoinCommand) Name() string        { return "join" }
func (LeaveCommand) Name() string       { return "leave" }
func (AddBotsCommand) Name() string     { return "add_bots" }
func (StartCommand) Name() string       { return "start" }
func (NightActionCommand) Name() string { return "night_action" }
func (DiscussionCommand) Name() string  { return "discussion" }
func (VoteCommand) Name() string        { return "vote" }
func (AdvanceCommand) Name() string     { return "advance" }
func (EndCommand) Name() string         { return "end" }

func (JoinCommand) isCommand()        {}
func (LeaveCommand) isCommand()       {}
func (AddBotsCommand) isCommand()     {}
func (StartCommand) isCommand()       {}
func (NightActionCommand) isCommand() {}
func (DiscussionCommand) isCommand()  {}
func (VoteCommand) isCommand()        {}
func (AdvanceCommand) isCommand()     {}
func (EndCommand) isCommand()         {}

// CommandResult is returned to the caller of an accepted command
type CommandResult struct {
	Message string   `json:"message"`
	Reading Reading  `json:"reading,omitempty"`
	Added   []string `json:"added,omitempty"`
	Changed bool     `json:"changed"`
}

// NarrationRequest describes a day transition for the optional narrator
type NarrationRequest struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Victim    string `json:"victim,omitempty"`
	Alive     int    `json:"alive"`
}
