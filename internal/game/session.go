package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/types"
	"go.uber.org/zap"
)

// Settings are the rule parameters of a session
type Settings struct {
	NightDuration      time.Duration
	DiscussionDuration time.Duration
	VotingDuration     time.Duration
	MinPlayers         int
	AutoStartPlayers   int
	AutoStartDelay     time.Duration
	MaxBots            int
	LogLimit           int
	LogView            int
	RumorChance        float64
	FrameChance        float64
	BotBias            float64
	Vindication        VindicationMode
	Weights            Weights
}

// SettingsFromConfig converts the game section of the config
func SettingsFromConfig(cfg config.GameConfig) Settings {
	return Settings{
		NightDuration:      time.Duration(cfg.NightDuration) * time.Second,
		DiscussionDuration: time.Duration(cfg.DiscussionDuration) * time.Second,
		VotingDuration:     time.Duration(cfg.VotingDuration) * time.Second,
		MinPlayers:         cfg.MinPlayers,
		AutoStartPlayers:   cfg.AutoStartPlayers,
		AutoStartDelay:     time.Duration(cfg.AutoStartCountdown) * time.Second,
		MaxBots:            cfg.MaxBots,
		LogLimit:           cfg.LogLimit,
		LogView:            cfg.LogView,
		RumorChance:        cfg.RumorChance,
		FrameChance:        cfg.FrameChance,
		BotBias:            cfg.BotBias,
		Vindication:        VindicationMode(cfg.VindicationMode),
		Weights:            DefaultWeights(),
	}
}

func (s Settings) durationOf(phase types.Phase) time.Duration {
	switch phase {
	case types.PhaseNight:
		return s.NightDuration
	case types.PhaseDiscussion:
		return s.DiscussionDuration
	default:
		return s.VotingDuration
	}
}

// Outcome summarizes what a mutation changed, for delivery
type Outcome struct {
	Changed       bool
	Started       bool
	Headline      string
	Announcements []string
	DayStarted    bool
	Round         int
	Victim        string
}

// Session is one game instance bound to a chat channel. Every exported
// method takes the session lock.
type Session struct {
	mu sync.Mutex

	id       string
	gameID   string
	hostID   string
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
	rng      Rand

	status        types.Status
	phase         types.Phase
	round         int
	phaseStart    time.Time
	phaseEnd      time.Time
	mafiaCount    int
	villagerCount int
	winner        types.Winner
	botMode       types.BotMode

	players   *Registry
	matrix    *Matrix
	beliefs   *BeliefEngine
	decisions *DecisionEngine

	nightActions map[string]string
	votes        map[string]types.Vote
	voteOrder    []string
	required     map[string]bool
	completed    map[string]bool
	discussion   []types.DiscussionEvent
	accusations  map[string]int
	defenses     map[string]int
	voteCounts   map[string]int

	deaths         []types.DeathRecord
	logs           []string
	recentlyJoined []string
	kicked         []string
	usedBotNames   map[string]bool

	autoStart    *time.Timer
	autoStartGen int
	onAutoStart  func(sessionID string, out Outcome)

	outcome Outcome
}

// NewSession creates a waiting lobby with the host already joined
func NewSession(id string, host types.Identity, settings Settings, rng Rand, now func() time.Time, logger *zap.Logger) *Session {
	if rng == nil {
		rng = NewDiceRoller()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:           id,
		gameID:       uuid.New().String(),
		hostID:       host.ID,
		settings:     settings,
		logger:       logger,
		now:          now,
		rng:          rng,
		status:       types.StatusWaiting,
		winner:       types.WinnerNone,
		botMode:      types.BotModeAuto,
		players:      NewRegistry(),
		matrix:       NewMatrix(),
		usedBotNames: make(map[string]bool),
	}
	s.beliefs = NewBeliefEngine(s.matrix, s.players, rng, settings.Weights)
	s.decisions = NewDecisionEngine(rng, s.beliefs, settings.BotBias)
	s.resetRoundState()

	s.players.Add(&types.Player{
		ID:       host.ID,
		Name:     host.Name,
		Mention:  host.Mention,
		Host:     true,
		Alive:    true,
		JoinedAt: now(),
	})
	s.noteJoin(host.ID)
	s.log(fmt.Sprintf("%s opened a lobby.", displayName(host)))
	s.scheduleAutoStart()

	return s
}

func displayName(id types.Identity) string {
	return types.DisplayName(&types.Player{ID: id.ID, Name: id.Name, Mention: id.Mention})
}

// ID returns the channel id the session is bound to
func (s *Session) ID() string {
	return s.id
}

// SetAutoStartHook registers the callback invoked after an auto-start fires
func (s *Session) SetAutoStartHook(hook func(sessionID string, out Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAutoStart = hook
}

// Status returns the lobby status
func (s *Session) Status() types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HasPlayer reports whether id is registered, and whether they are alive
func (s *Session) HasPlayer(id string) (registered, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players.Get(id)
	if !ok {
		return false, false
	}
	return true, p.Alive
}

// Apply runs one inbound command under the session lock
func (s *Session) Apply(cmd types.Command) (types.CommandResult, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = Outcome{}
	var (
		res types.CommandResult
		err error
	)

	switch c := cmd.(type) {
	case types.JoinCommand:
		res, err = s.join(c.Player)
	case types.LeaveCommand:
		res, err = s.leave(c.PlayerID)
	case types.AddBotsCommand:
		res, err = s.addBots(c.RequesterID, c.Count, c.Mode)
	case types.StartCommand:
		res, err = s.start(c.RequesterID)
	case types.NightActionCommand:
		res, err = s.submitNight(c)
	case types.DiscussionCommand:
		res, err = s.submitDiscussion(c)
	case types.VoteCommand:
		res, err = s.submitVote(c)
	case types.AdvanceCommand:
		res, err = s.hostAdvance(c.RequesterID)
	case types.EndCommand:
		res, err = s.end(c.RequesterID)
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		return res, Outcome{}, err
	}
	return res, s.takeOutcome(), nil
}

func (s *Session) takeOutcome() Outcome {
	out := s.outcome
	s.outcome = Outcome{}
	return out
}

// log appends to the bounded event log and to the pending announcements
func (s *Session) log(line string) {
	s.logs = append(s.logs, line)
	if limit := s.settings.LogLimit; limit > 0 && len(s.logs) > limit {
		s.logs = s.logs[len(s.logs)-limit:]
	}
	s.outcome.Announcements = append(s.outcome.Announcements, line)
	s.outcome.Changed = true
}

func (s *Session) noteJoin(id string) {
	s.recentlyJoined = append(s.recentlyJoined, id)
	if len(s.recentlyJoined) > 3 {
		s.recentlyJoined = s.recentlyJoined[len(s.recentlyJoined)-3:]
	}
}

func (s *Session) resetRoundState() {
	s.nightActions = make(map[string]string)
	s.votes = make(map[string]types.Vote)
	s.voteOrder = nil
	s.required = make(map[string]bool)
	s.completed = make(map[string]bool)
	s.discussion = nil
	s.accusations = make(map[string]int)
	s.defenses = make(map[string]int)
	s.voteCounts = make(map[string]int)
}

// lobbyGuard rejects lobby edits once the game has begun
func (s *Session) lobbyGuard() error {
	switch s.status {
	case types.StatusFinished:
		return ErrGameOver
	case types.StatusInGame:
		return ErrGameAlreadyStarted
	}
	return nil
}

func (s *Session) requireHost(requesterID string) error {
	if requesterID != s.hostID {
		return ErrNotHost
	}
	return nil
}

func (s *Session) join(id types.Identity) (types.CommandResult, error) {
	if err := s.lobbyGuard(); err != nil {
		return types.CommandResult{}, err
	}
	if id.ID == "" {
		return types.CommandResult{}, ErrUnknownPlayer
	}

	player := &types.Player{
		ID:       id.ID,
		Name:     id.Name,
		Mention:  id.Mention,
		Alive:    true,
		JoinedAt: s.now(),
	}
	if !s.players.Add(player) {
		return types.CommandResult{}, ErrAlreadyJoined
	}
	s.noteJoin(id.ID)
	s.log(fmt.Sprintf("%s joined the lobby.", types.DisplayName(player)))
	s.maybeScheduleAutoStart()

	return types.CommandResult{
		Message: fmt.Sprintf("%s joined (%d players).", types.DisplayName(player), s.players.Len()),
		Changed: true,
	}, nil
}

func (s *Session) leave(playerID string) (types.CommandResult, error) {
	if err := s.lobbyGuard(); err != nil {
		return types.CommandResult{}, err
	}
	if playerID == s.hostID {
		return types.CommandResult{}, ErrHostCannotLeave
	}
	player, ok := s.players.Get(playerID)
	if !ok {
		return types.CommandResult{}, ErrUnknownPlayer
	}

	s.players.Remove(playerID)
	if player.Bot {
		delete(s.usedBotNames, player.Name)
	}
	for i, id := range s.recentlyJoined {
		if id == playerID {
			s.recentlyJoined = append(s.recentlyJoined[:i], s.recentlyJoined[i+1:]...)
			break
		}
	}
	s.log(fmt.Sprintf("%s left the lobby.", types.DisplayName(player)))

	return types.CommandResult{Message: "You left the lobby.", Changed: true}, nil
}

func (s *Session) addBots(requesterID string, count int, mode types.BotMode) (types.CommandResult, error) {
	if err := s.lobbyGuard(); err != nil {
		return types.CommandResult{}, err
	}
	if err := s.requireHost(requesterID); err != nil {
		return types.CommandResult{}, err
	}
	if count < 1 || count > 5 {
		return types.CommandResult{}, ErrInvalidBotCount
	}
	if mode == "" {
		mode = types.BotModeAuto
	}
	if mode != types.BotModeAuto && mode != types.BotModeManual {
		return types.CommandResult{}, ErrInvalidBotMode
	}

	capacity := s.settings.MaxBots - len(s.players.Bots())
	if capacity <= 0 {
		return types.CommandResult{}, ErrBotLimit
	}
	if count > capacity {
		count = capacity
	}

	var added []string
	for _, name := range botNames {
		if len(added) == count {
			break
		}
		if s.usedBotNames[name] {
			continue
		}
		bot := &types.Player{
			ID:       "bot-" + uuid.New().String(),
			Name:     name,
			Bot:      true,
			Alive:    true,
			JoinedAt: s.now(),
		}
		s.players.Add(bot)
		s.usedBotNames[name] = true
		s.noteJoin(bot.ID)
		added = append(added, bot.ID)
	}
	if len(added) == 0 {
		return types.CommandResult{}, ErrBotLimit
	}

	s.botMode = mode
	s.log(fmt.Sprintf("%d bots joined the lobby (%s mode).", len(added), mode))
	s.maybeScheduleAutoStart()

	return types.CommandResult{
		Message: fmt.Sprintf("Added %d bots in %s mode.", len(added), mode),
		Added:   added,
		Changed: true,
	}, nil
}

func (s *Session) start(requesterID string) (types.CommandResult, error) {
	if err := s.lobbyGuard(); err != nil {
		return types.CommandResult{}, err
	}
	if err := s.requireHost(requesterID); err != nil {
		return types.CommandResult{}, err
	}
	if s.players.Len() < s.settings.MinPlayers {
		s.cancelAutoStart()
		return types.CommandResult{}, fmt.Errorf("%w: need at least %d, have %d",
			ErrNotEnoughPlayers, s.settings.MinPlayers, s.players.Len())
	}

	s.cancelAutoStart()
	s.begin(s.dealRoles(s.players.Len()))

	return types.CommandResult{Message: "The game has started.", Changed: true}, nil
}

// roleDistribution returns the role multiset for n players
func roleDistribution(n int) []types.Role {
	mafia := n / 3
	if mafia < 1 {
		mafia = 1
	}

	roles := make([]types.Role, 0, n)
	for i := 0; i < mafia; i++ {
		roles = append(roles, types.RoleMafia)
	}
	if n >= 4 {
		roles = append(roles, types.RoleDoctor)
	}
	if n >= 5 {
		roles = append(roles, types.RoleDetective)
	}
	for len(roles) < n {
		roles = append(roles, types.RoleVillager)
	}
	return roles
}

func (s *Session) dealRoles(n int) []types.Role {
	roles := roleDistribution(n)
	s.rng.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})
	return roles
}

// begin assigns roles in join order and opens the first night
func (s *Session) begin(roles []types.Role) {
	s.mafiaCount = 0
	for i, p := range s.players.All() {
		p.Role = roles[i]
		p.Alive = true
		if p.Role == types.RoleMafia {
			s.mafiaCount++
		}
	}
	s.villagerCount = s.players.Len() - s.mafiaCount

	s.status = types.StatusInGame
	s.round = 1
	s.deaths = nil
	s.kicked = nil
	s.beliefs.Initialize()
	s.resetRoundState()
	s.enterPhase(types.PhaseNight)

	s.logger.Info("Game started",
		zap.String("session_id", s.id),
		zap.String("game_id", s.gameID),
		zap.Int("players", s.players.Len()),
		zap.Int("mafia", s.mafiaCount))

	s.log(fmt.Sprintf("The game begins with %d players. Night falls.", s.players.Len()))
	s.outcome.Started = true
	s.outcome.Headline = "Night 1"
	s.outcome.Round = 1
}

func (s *Session) end(requesterID string) (types.CommandResult, error) {
	if err := s.requireHost(requesterID); err != nil {
		return types.CommandResult{}, err
	}
	s.cancelAutoStart()
	if s.status != types.StatusFinished {
		s.status = types.StatusFinished
		s.log("The host ended the game.")
	}
	return types.CommandResult{Message: "Game ended.", Changed: true}, nil
}

// RoleCard is the private role reveal sent to a player at game start
type RoleCard struct {
	PlayerID  string
	Role      types.Role
	Teammates []string
}

// RoleCards returns the role reveal for every human player
func (s *Session) RoleCards() []RoleCard {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mafia []*types.Player
	for _, p := range s.players.All() {
		if p.Role == types.RoleMafia {
			mafia = append(mafia, p)
		}
	}

	var cards []RoleCard
	for _, p := range s.players.All() {
		if p.Bot || p.Role == "" {
			continue
		}
		card := RoleCard{PlayerID: p.ID, Role: p.Role}
		if p.Role == types.RoleMafia {
			for _, m := range mafia {
				if m.ID != p.ID {
					card.Teammates = append(card.Teammates, types.DisplayName(m))
				}
			}
		}
		cards = append(cards, card)
	}
	return cards
}

// Close stops pending timers. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAutoStart()
}

func (s *Session) maybeScheduleAutoStart() {
	if s.players.Len() >= s.settings.AutoStartPlayers {
		s.scheduleAutoStart()
	}
}

// scheduleAutoStart arms the one-shot countdown unless one is pending
func (s *Session) scheduleAutoStart() {
	if s.autoStart != nil || s.settings.AutoStartDelay <= 0 || s.status != types.StatusWaiting {
		return
	}
	s.autoStartGen++
	gen := s.autoStartGen
	s.autoStart = time.AfterFunc(s.settings.AutoStartDelay, func() {
		s.fireAutoStart(gen)
	})
	s.logger.Debug("Auto-start scheduled",
		zap.String("session_id", s.id),
		zap.Duration("delay", s.settings.AutoStartDelay))
}

func (s *Session) cancelAutoStart() {
	if s.autoStart != nil {
		s.autoStart.Stop()
		s.autoStart = nil
	}
	s.autoStartGen++
}

func (s *Session) fireAutoStart(gen int) {
	s.mu.Lock()
	if gen != s.autoStartGen {
		s.mu.Unlock()
		return
	}
	s.autoStart = nil
	if s.status != types.StatusWaiting || s.players.Len() < s.settings.AutoStartPlayers {
		s.mu.Unlock()
		return
	}

	s.outcome = Outcome{}
	s.begin(s.dealRoles(s.players.Len()))
	out := s.takeOutcome()
	hook := s.onAutoStart
	s.mu.Unlock()

	s.logger.Info("Auto-start fired", zap.String("session_id", s.id))
	if hook != nil {
		hook(s.id, out)
	}
}
