package types

import (
	"fmt"
	"time"
)

// Role is the secret role dealt to a player at game start
type Role string

const (
	RoleVillager  Role = "villager"
	RoleMafia     Role = "mafia"
	RoleDoctor    Role = "doctor"
	RoleDetective Role = "detective"
)

// Faction returns the side a role wins with
func (r Role) Faction() Faction {
	if r == RoleMafia {
		return FactionMafia
	}
	return FactionTown
}

// HasNightAction reports whether the role must act during the night
func (r Role) HasNightAction() bool {
	return r == RoleMafia || r == RoleDoctor || r == RoleDetective
}

// Faction groups roles for win-condition purposes
type Faction string

const (
	FactionTown  Faction = "villager"
	FactionMafia Faction = "mafia"
)

// Status is the lobby lifecycle state
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusInGame   Status = "in-game"
	StatusFinished Status = "finished"
)

// Phase is the in-game phase, meaningful only while in-game
type Phase string

const (
	PhaseNone       Phase = ""
	PhaseNight      Phase = "night"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
)

var validTransitions = map[Phase][]Phase{
	PhaseNone:       {PhaseNight},
	PhaseNight:      {PhaseDiscussion, PhaseNight},
	PhaseDiscussion: {PhaseVoting},
	PhaseVoting:     {PhaseNight},
}

// CanTransitionTo reports whether the phase cycle allows moving to next.
// Night may transition to itself when it restarts after an inaction purge.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range validTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Winner names the winning faction once a game is finished
type Winner string

const (
	WinnerNone     Winner = "none"
	WinnerVillager Winner = "villager"
	WinnerMafia    Winner = "mafia"
)

// ActionKind labels entries in a player's behavioral log
type ActionKind string

const (
	ActionAccuse      ActionKind = "accuse"
	ActionDefend      ActionKind = "defend"
	ActionSkip        ActionKind = "skip"
	ActionKill        ActionKind = "kill"
	ActionSave        ActionKind = "save"
	ActionInvestigate ActionKind = "investigate"
	ActionVote        ActionKind = "vote"
)

// NightActionFor returns the night action kind a role performs
func NightActionFor(role Role) (ActionKind, bool) {
	switch role {
	case RoleMafia:
		return ActionKill, true
	case RoleDoctor:
		return ActionSave, true
	case RoleDetective:
		return ActionInvestigate, true
	default:
		return "", false
	}
}

// BotMode controls how simulated players act
type BotMode string

const (
	BotModeAuto   BotMode = "auto"
	BotModeManual BotMode = "manual"
)

// ActionRecord is one immutable behavioral log entry
type ActionRecord struct {
	Round  int        `json:"round"`
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target,omitempty"`
	At     time.Time  `json:"at"`
}

// Player represents one participant of a game session
type Player struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Mention           string         `json:"mention,omitempty"`
	Role              Role           `json:"role"`
	Alive             bool           `json:"alive"`
	Host              bool           `json:"host"`
	Bot               bool           `json:"bot"`
	JoinedAt          time.Time      `json:"joined_at"`
	DiscussionActions []ActionRecord `json:"discussion_actions"`
	VotesCast         []ActionRecord `json:"votes_cast"`
	NightActions      []ActionRecord `json:"night_actions"`
}

// DisplayName resolves how a player is shown in chat. Humans with a platform
// mention are addressed by it, everyone else by name, and bots carry a tag.
func DisplayName(p *Player) string {
	if p == nil {
		return "unknown"
	}
	if p.Bot {
		return fmt.Sprintf("%s [bot]", p.Name)
	}
	if p.Mention != "" {
		return p.Mention
	}
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Vote is either a cast ballot against a player or an explicit skip
type Vote struct {
	target string
	skip   bool
}

// Cast builds a vote against the given player
func Cast(target string) Vote {
	return Vote{target: target}
}

// Skip builds an abstaining vote
func Skip() Vote {
	return Vote{skip: true}
}

// IsSkip reports whether the vote abstains
func (v Vote) IsSkip() bool {
	return v.skip
}

// Target returns the voted player; ok is false for skips
func (v Vote) Target() (string, bool) {
	if v.skip {
		return "", false
	}
	return v.target, true
}

func (v Vote) String() string {
	if v.skip {
		return "skip"
	}
	return v.target
}

// DiscussionEvent records an accuse or defend made during a round
type DiscussionEvent struct {
	Round  int        `json:"round"`
	Actor  string     `json:"actor"`
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target"`
}

// DeathCause explains why a player left the game
type DeathCause string

const (
	CauseKilled   DeathCause = "killed"
	CauseExecuted DeathCause = "executed"
	CauseInaction DeathCause = "inaction"
)

// DeathRecord is one entry of the cumulative death log
type DeathRecord struct {
	Round    int        `json:"round"`
	PlayerID string     `json:"player_id"`
	Role     Role       `json:"role"`
	Cause    DeathCause `json:"cause"`
}

// PlayerView is a roster entry in a rendering snapshot. Role is only set for
// dead players.
type PlayerView struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	Host  bool   `json:"host"`
	Bot   bool   `json:"bot"`
	Role  Role   `json:"role,omitempty"`
}

// Progress counts the actors who have acted in the current phase
type Progress struct {
	Completed int `json:"completed"`
	Required  int `json:"required"`
}

// Tally is the per-round accountability count for one living player
type Tally struct {
	PlayerID    string `json:"player_id"`
	Name        string `json:"name"`
	Accusations int    `json:"accusations"`
	Defenses    int    `json:"defenses"`
	Votes       int    `json:"votes"`
}

// Snapshot is the renderable state of a session
type Snapshot struct {
	SessionID        string        `json:"session_id"`
	GameID           string        `json:"game_id"`
	HostID           string        `json:"host_id"`
	Status           Status        `json:"status"`
	Phase            Phase         `json:"phase,omitempty"`
	Round            int           `json:"round"`
	PhaseStartedAt   time.Time     `json:"phase_started_at"`
	PhaseEndsAt      time.Time     `json:"phase_ends_at"`
	SecondsRemaining int           `json:"seconds_remaining"`
	MafiaCount       int           `json:"mafia_count"`
	VillagerCount    int           `json:"villager_count"`
	Winner           Winner        `json:"winner"`
	BotMode          BotMode       `json:"bot_mode"`
	Roster           []PlayerView  `json:"roster"`
	Alive            []PlayerView  `json:"alive"`
	Dead             []PlayerView  `json:"dead"`
	Progress         Progress      `json:"progress"`
	Tallies          []Tally       `json:"tallies"`
	Log              []string      `json:"log"`
	RecentlyJoined   []string      `json:"recently_joined"`
	Kicked           []string      `json:"kicked"`
	Deaths           []DeathRecord `json:"deaths"`
}

// Bucket is a coarse label for a suspicion score
type Bucket string

const (
	BucketTrust      Bucket = "trust"
	BucketNeutral    Bucket = "neutral"
	BucketSuspicious Bucket = "suspicious"
	BucketConviction Bucket = "conviction"
)

// BucketFor maps a score onto its display bucket
func BucketFor(score float64) Bucket {
	switch {
	case score < 20:
		return BucketTrust
	case score < 40:
		return BucketNeutral
	case score < 70:
		return BucketSuspicious
	default:
		return BucketConviction
	}
}

// SuspicionScore is one observer's belief about one target
type SuspicionScore struct {
	TargetID string  `json:"target_id"`
	Name     string  `json:"name"`
	Alive    bool    `json:"alive"`
	Score    float64 `json:"score"`
	Bucket   Bucket  `json:"bucket"`
}

// SuspicionSnapshot is the private suspicion view of one observer
type SuspicionSnapshot struct {
	SessionID string           `json:"session_id"`
	Observer  string           `json:"observer"`
	Round     int              `json:"round"`
	Scores    []SuspicionScore `json:"scores"`
}

// Reading is the private signal a detective receives after investigating
type Reading string

const (
	ReadingTrustworthy Reading = "seems trustworthy"
	ReadingSuspicious  Reading = "seems suspicious"
	ReadingUnclear     Reading = "unclear"
)

// Update is what the core hands to the delivery layer after a mutation
type Update struct {
	SessionID     string   `json:"session_id"`
	Snapshot      Snapshot `json:"snapshot"`
	Headline      string   `json:"headline,omitempty"`
	Announcements []string `json:"announcements,omitempty"`
	DayStarted    bool     `json:"day_started,omitempty"`
}
