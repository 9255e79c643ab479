package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/interfaces"
	"github.com/user/mafia-suspicion/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultDayIntro is used when no narrator is configured or it fails
const DefaultDayIntro = "The sun rises on a town gripped by paranoia."

const deliveryTimeout = 10 * time.Second

// GameManager is the top-level coordinator of every game session
type GameManager struct {
	store         *SessionStore
	config        config.Config
	settings      Settings
	Logger        *zap.Logger
	eventSys      *EventSystem
	publisher     interfaces.Publisher
	narrator      interfaces.Narrator
	messageSender interfaces.MessageSender
	tracer        trace.Tracer
	newRand       func() Rand
	now           func() time.Time
	deliveries    sync.WaitGroup
	queuesMu      sync.Mutex
	queues        map[string]*deliveryQueue
}

type delivery struct {
	update types.Update
	req    types.NarrationRequest
}

// deliveryQueue holds the pending updates of one session. At most one
// goroutine drains it, so a session's updates arrive in publish order.
type deliveryQueue struct {
	mu      sync.Mutex
	pending []delivery
	running bool
}

// Ensure GameManager satisfies the interfaces.GameManager interface
var _ interfaces.GameManager = (*GameManager)(nil)

// NewGameManager creates a new game manager
func NewGameManager(cfg config.Config) *GameManager {
	gm := &GameManager{
		store:    NewSessionStore(),
		config:   cfg,
		settings: SettingsFromConfig(cfg.Game),
		Logger:   zap.NewNop(), // Will be set by the server
		tracer:   otel.Tracer("github.com/user/mafia-suspicion/internal/game"),
		newRand:  func() Rand { return NewDiceRoller() },
		now:      time.Now,
		queues:   make(map[string]*deliveryQueue),
	}

	interval := time.Duration(cfg.Game.PollInterval) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	gm.eventSys = NewEventSystem(gm, interval)

	return gm
}

// SetLogger sets the logger
func (gm *GameManager) SetLogger(logger *zap.Logger) {
	gm.Logger = logger
}

// SetPublisher sets where rendered updates are delivered
func (gm *GameManager) SetPublisher(publisher interfaces.Publisher) {
	gm.publisher = publisher
}

// SetNarrator sets the optional day intro narrator
func (gm *GameManager) SetNarrator(narrator interfaces.Narrator) {
	gm.narrator = narrator
}

// SetMessageSender sets the private message sender
func (gm *GameManager) SetMessageSender(sender interfaces.MessageSender) {
	gm.messageSender = sender
}

// CreateLobby opens a lobby in a channel. A finished game is replaced.
func (gm *GameManager) CreateLobby(ctx context.Context, sessionID string, host types.Identity) (types.Snapshot, error) {
	_, span := gm.tracer.Start(ctx, "game.create_lobby",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" || host.ID == "" {
		return types.Snapshot{}, ErrUnknownPlayer
	}

	session := NewSession(sessionID, host, gm.settings, gm.newRand(), gm.now, gm.Logger)
	stored, ok := gm.store.PutIfAbsent(session, func(existing *Session) bool {
		return existing.Status() == types.StatusFinished
	})
	if !ok {
		session.Close()
		span.SetStatus(codes.Error, ErrLobbyExists.Error())
		return stored.Snapshot(gm.now()), ErrLobbyExists
	}
	session.SetAutoStartHook(gm.onAutoStart)

	gm.Logger.Info("Lobby created",
		zap.String("session_id", sessionID),
		zap.String("host_id", host.ID))

	snap := session.Snapshot(gm.now())
	gm.publish(sessionID, snap, Outcome{Changed: true, Headline: "New lobby"})
	return snap, nil
}

// EndGame ends and discards the game in a channel. Host only.
func (gm *GameManager) EndGame(ctx context.Context, sessionID, requesterID string) error {
	_, err := gm.Dispatch(ctx, sessionID, types.EndCommand{RequesterID: requesterID})
	return err
}

// Dispatch applies a command to the session bound to sessionID
func (gm *GameManager) Dispatch(ctx context.Context, sessionID string, cmd types.Command) (types.CommandResult, error) {
	_, span := gm.tracer.Start(ctx, "game.dispatch",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("command", cmd.Name()),
		))
	defer span.End()

	session, ok := gm.store.Get(sessionID)
	if !ok {
		span.SetStatus(codes.Error, ErrSessionNotFound.Error())
		return types.CommandResult{}, ErrSessionNotFound
	}

	res, out, err := session.Apply(cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		gm.Logger.Debug("Command rejected",
			zap.String("session_id", sessionID),
			zap.String("command", cmd.Name()),
			zap.Error(err))
		return res, err
	}

	if _, ended := cmd.(types.EndCommand); ended {
		gm.store.Delete(sessionID)
		gm.Logger.Info("Game ended by host", zap.String("session_id", sessionID))
	}

	if out.Changed {
		gm.publish(sessionID, session.Snapshot(gm.now()), out)
	}
	if out.Started {
		gm.revealRoles(session)
	}
	return res, nil
}

// Snapshot returns the renderable state of a session
func (gm *GameManager) Snapshot(sessionID string) (types.Snapshot, error) {
	session, ok := gm.store.Get(sessionID)
	if !ok {
		return types.Snapshot{}, ErrSessionNotFound
	}
	return session.Snapshot(gm.now()), nil
}

// Suspicion returns an observer's private suspicion view
func (gm *GameManager) Suspicion(sessionID, observerID string) (types.SuspicionSnapshot, error) {
	session, ok := gm.store.Get(sessionID)
	if !ok {
		return types.SuspicionSnapshot{}, ErrSessionNotFound
	}
	return session.Suspicion(observerID)
}

// SessionForPlayer finds the session a player takes part in, preferring a
// running game where they are alive.
func (gm *GameManager) SessionForPlayer(playerID string) (string, bool) {
	fallback := ""
	for _, s := range gm.store.List() {
		registered, alive := s.HasPlayer(playerID)
		if !registered {
			continue
		}
		status := s.Status()
		if status == types.StatusInGame && alive {
			return s.ID(), true
		}
		if fallback == "" && status != types.StatusFinished {
			fallback = s.ID()
		}
	}
	return fallback, fallback != ""
}

// ListSessions returns the ids of every live session
func (gm *GameManager) ListSessions() []string {
	return gm.store.IDs()
}

// StartEventSystem starts the polling driver
func (gm *GameManager) StartEventSystem() {
	gm.eventSys.Start()
}

// StopEventSystem stops the polling driver
func (gm *GameManager) StopEventSystem() {
	gm.eventSys.Stop()
}

// Flush waits for in-flight deliveries
func (gm *GameManager) Flush() {
	gm.deliveries.Wait()
}

// pollSessions ticks every in-game session once
func (gm *GameManager) pollSessions(now time.Time) {
	for _, session := range gm.store.List() {
		out := session.Tick(now)
		if !out.Changed {
			continue
		}
		gm.publish(session.ID(), session.Snapshot(now), out)
	}
}

func (gm *GameManager) onAutoStart(sessionID string, out Outcome) {
	session, ok := gm.store.Get(sessionID)
	if !ok {
		return
	}
	gm.publish(sessionID, session.Snapshot(gm.now()), out)
	gm.revealRoles(session)
}

// publish queues an update for the publisher without blocking the caller.
// Updates of one session are delivered in order. Failures are logged and
// never affect game state.
func (gm *GameManager) publish(sessionID string, snap types.Snapshot, out Outcome) {
	update := types.Update{
		SessionID:     sessionID,
		Snapshot:      snap,
		Headline:      out.Headline,
		Announcements: out.Announcements,
		DayStarted:    out.DayStarted,
	}
	req := types.NarrationRequest{
		SessionID: sessionID,
		Round:     out.Round,
		Victim:    out.Victim,
		Alive:     len(snap.Alive),
	}

	gm.deliveries.Add(1)
	q := gm.queueFor(sessionID)
	q.mu.Lock()
	q.pending = append(q.pending, delivery{update: update, req: req})
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()
	go gm.drain(q)
}

func (gm *GameManager) queueFor(sessionID string) *deliveryQueue {
	gm.queuesMu.Lock()
	defer gm.queuesMu.Unlock()
	q, ok := gm.queues[sessionID]
	if !ok {
		q = &deliveryQueue{}
		gm.queues[sessionID] = q
	}
	return q
}

// drain delivers queued updates until the queue is empty
func (gm *GameManager) drain(q *deliveryQueue) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		d := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		gm.deliver(d.update, d.req)
		gm.deliveries.Done()
	}
}

func (gm *GameManager) deliver(update types.Update, req types.NarrationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	ctx, span := gm.tracer.Start(ctx, "game.publish",
		trace.WithAttributes(attribute.String("session.id", update.SessionID)))
	defer span.End()

	if update.DayStarted {
		intro := gm.dayIntro(ctx, req)
		update.Announcements = append([]string{intro}, update.Announcements...)
	}

	if gm.publisher == nil {
		return
	}
	if err := gm.publisher.Publish(ctx, update); err != nil {
		span.RecordError(err)
		gm.Logger.Warn("Failed to deliver update",
			zap.String("session_id", update.SessionID),
			zap.Error(err))
	}
}

// dayIntro asks the narrator for flavor text, falling back to the default
func (gm *GameManager) dayIntro(ctx context.Context, req types.NarrationRequest) string {
	if gm.narrator == nil || !gm.narrator.Enabled() {
		return DefaultDayIntro
	}
	text, err := gm.narrator.DayIntro(ctx, req)
	if err != nil {
		gm.Logger.Warn("Narration failed",
			zap.String("session_id", req.SessionID),
			zap.Int("round", req.Round),
			zap.Error(err))
		return DefaultDayIntro
	}
	if text = strings.TrimSpace(text); text == "" {
		return DefaultDayIntro
	}
	return text
}

// revealRoles privately tells every human player their role
func (gm *GameManager) revealRoles(session *Session) {
	for _, card := range session.RoleCards() {
		message := fmt.Sprintf("Your role is *%s*.", card.Role)
		if len(card.Teammates) > 0 {
			message += fmt.Sprintf(" Your fellow mafia: %s.", strings.Join(card.Teammates, ", "))
		}
		if err := gm.SendMessage(card.PlayerID, message); err != nil {
			gm.Logger.Warn("Failed to send role",
				zap.String("session_id", session.ID()),
				zap.String("player_id", card.PlayerID),
				zap.Error(err))
		}
	}
}

// SendMessage sends a private message to a player
func (gm *GameManager) SendMessage(playerID string, message string) error {
	if gm.messageSender == nil {
		return fmt.Errorf("message sender not set")
	}
	if _, err := gm.messageSender.SendMessage("", playerID, message); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
