package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Rand is the source of randomness used by game rules. Each session owns one
// and only touches it while holding the session lock.
type Rand interface {
	Float64() float64
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// DiceRoller handles random draws for the game
type DiceRoller struct {
	rng *rand.Rand
}

// NewDiceRoller creates a new dice roller seeded from crypto/rand
func NewDiceRoller() *DiceRoller {
	return NewDiceRollerWithSeed(newSeed())
}

// NewDiceRollerWithSeed creates a deterministic dice roller
func NewDiceRollerWithSeed(seed int64) *DiceRoller {
	return &DiceRoller{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (dr *DiceRoller) Float64() float64 {
	return dr.rng.Float64()
}

func (dr *DiceRoller) Intn(n int) int {
	return dr.rng.Intn(n)
}

func (dr *DiceRoller) Shuffle(n int, swap func(i, j int)) {
	dr.rng.Shuffle(n, swap)
}

func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// chance returns true with probability p
func chance(r Rand, p float64) bool {
	return r.Float64() < p
}

// uniform draws from [lo, hi)
func uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// pick returns a uniformly chosen element, or "" for an empty slice
func pick(r Rand, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[r.Intn(len(ids))]
}

// botNames is the pool simulated players are named from
var botNames = []string{
	"Detector", "Healer", "Shadow", "Echo", "Cipher",
	"Nova", "Phantom", "Raven", "Specter", "Vortex",
	"Sentinel", "Nexus", "Pulse", "Axiom", "Mirage",
}

// EventSystem is the cooperative driver that polls every session for phase
// timeouts, early completion and pending bot actions.
type EventSystem struct {
	gameManager *GameManager
	ticker      *time.Ticker
	stopChan    chan struct{}
}

// NewEventSystem creates a new event system
func NewEventSystem(gameManager *GameManager, interval time.Duration) *EventSystem {
	return &EventSystem{
		gameManager: gameManager,
		ticker:      time.NewTicker(interval),
		stopChan:    make(chan struct{}),
	}
}

// Start begins polling in the background
func (es *EventSystem) Start() {
	go func() {
		for {
			select {
			case now := <-es.ticker.C:
				es.poll(now)
			case <-es.stopChan:
				es.ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the event system
func (es *EventSystem) Stop() {
	close(es.stopChan)
}

func (es *EventSystem) poll(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			es.gameManager.Logger.Error("Session poll panicked", zap.Any("panic", r))
		}
	}()
	es.gameManager.pollSessions(now)
}
