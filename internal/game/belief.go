package game

import (
	"github.com/user/mafia-suspicion/internal/types"
)

// Weights are the base weights fed into UpdateBelief for each social signal
type Weights struct {
	VoteBad            float64
	DoctorSave         float64
	Hypocrisy          float64
	Consistency        float64
	Bandwagon          float64
	Lurker             float64
	GuiltByAssociation float64
	Vindication        float64
	Complicity         float64
	DefendedMafia      float64
	Frame              float64

	NoiseMin          float64
	NoiseMax          float64
	Misinterpretation float64
	BiasHigh          float64
	BiasLow           float64
	MemoryDecay       float64
	IntuitionLeak     float64
}

// DefaultWeights returns the tuned weight table
func DefaultWeights() Weights {
	return Weights{
		VoteBad:            0.25,
		DoctorSave:         -0.8,
		Hypocrisy:          0.30,
		Consistency:        -0.10,
		Bandwagon:          0.15,
		Lurker:             0.12,
		GuiltByAssociation: 0.20,
		Vindication:        -0.40,
		Complicity:         0.25,
		DefendedMafia:      0.35,
		Frame:              0.10,

		NoiseMin:          0.6,
		NoiseMax:          1.4,
		Misinterpretation: 0.05,
		BiasHigh:          1.4,
		BiasLow:           0.5,
		MemoryDecay:       0.85,
		IntuitionLeak:     0.15,
	}
}

const (
	biasHighThreshold = 60.0
	biasLowThreshold  = 40.0
	rumorShift        = 7.0
	protectorBump     = 12.0
	protectorRelief   = -8.0
	highSuspicionMark = 60.0
	readingThreshold  = 10.0
)

// Rumor is a town-wide talking point produced at a night transition
type Rumor struct {
	Round    int
	TargetID string
	Polarity int
}

// BeliefEngine mutates a Matrix in response to game events
type BeliefEngine struct {
	matrix  *Matrix
	players *Registry
	rng     Rand
	weights Weights
}

// NewBeliefEngine creates a belief engine over the given matrix and registry
func NewBeliefEngine(matrix *Matrix, players *Registry, rng Rand, weights Weights) *BeliefEngine {
	return &BeliefEngine{
		matrix:  matrix,
		players: players,
		rng:     rng,
		weights: weights,
	}
}

// UpdateBelief applies one noisy, biased update from observer toward target.
// Returns false when the update is rejected.
func (be *BeliefEngine) UpdateBelief(observer, target string, weight float64) bool {
	if observer == target || !be.players.Has(observer) || !be.players.Has(target) {
		return false
	}

	noise := uniform(be.rng, be.weights.NoiseMin, be.weights.NoiseMax)
	if chance(be.rng, be.weights.Misinterpretation) {
		weight = -weight
	}

	current, _ := be.matrix.Get(observer, target)
	if current > biasHighThreshold {
		weight *= be.weights.BiasHigh
	} else if current < biasLowThreshold {
		weight *= be.weights.BiasLow
	}

	be.matrix.Set(observer, target, current+weight*noise)
	return true
}

// UpdateTownwide applies UpdateBelief from every other player toward subject
func (be *BeliefEngine) UpdateTownwide(subject string, weight float64) {
	for _, observer := range be.players.IDs() {
		if observer == subject {
			continue
		}
		be.UpdateBelief(observer, subject, weight)
	}
}

// shift adds a flat delta outside the noise and bias path
func (be *BeliefEngine) shift(observer, target string, delta float64) float64 {
	current, ok := be.matrix.Get(observer, target)
	if !ok {
		return 0
	}
	be.matrix.Set(observer, target, current+delta)
	updated, _ := be.matrix.Get(observer, target)
	return updated - current
}

// Initialize seeds the matrix for a fresh game. Mafia members know each
// other; every other pair starts near baseline.
func (be *BeliefEngine) Initialize() {
	be.matrix.Reset()
	ids := be.players.IDs()
	for _, observer := range ids {
		for _, target := range ids {
			if observer == target {
				continue
			}
			if be.players.IsMafia(observer) && be.players.IsMafia(target) {
				be.matrix.Set(observer, target, Epsilon)
				continue
			}
			be.matrix.Set(observer, target, Baseline+uniform(be.rng, -10, 10))
		}
	}
}

// Decay applies memory decay to every stored entry
func (be *BeliefEngine) Decay() {
	be.matrix.Decay(be.weights.MemoryDecay)
}

// PropagateIntuition overwrites the detective's entry with near certainty
// and leaks a small nudge to every other living player.
func (be *BeliefEngine) PropagateIntuition(detective, target string, isMafia bool) {
	if detective == target || !be.players.Has(detective) || !be.players.Has(target) {
		return
	}

	direction := -1.0
	conclusion := MinSuspicion
	if isMafia {
		direction = 1.0
		conclusion = MaxSuspicion
	}
	be.matrix.Set(detective, target, conclusion)

	leak := direction * Epsilon * be.weights.IntuitionLeak
	for _, p := range be.players.Alive() {
		if p.ID == detective || p.ID == target {
			continue
		}
		be.shift(p.ID, target, leak)
	}
}

// Investigate applies the detective's immediate private signal and returns
// the reading shown to them.
func (be *BeliefEngine) Investigate(detective, target string, isMafia bool) types.Reading {
	var delta float64
	if isMafia {
		delta = -25
		if chance(be.rng, 0.30) {
			delta = 15
		}
	} else {
		delta = -20
		if chance(be.rng, 0.20) {
			delta = 20
		}
	}

	// The reading follows the rolled change even when the clamp absorbs it
	be.shift(detective, target, delta)
	switch {
	case delta < -readingThreshold:
		return types.ReadingTrustworthy
	case delta > readingThreshold:
		return types.ReadingSuspicious
	default:
		return types.ReadingUnclear
	}
}

// DoctorSave exchanges trust between a doctor and the player they saved,
// then lowers the town's suspicion of the saved player.
func (be *BeliefEngine) DoctorSave(doctor, saved string) {
	toSaved := -25.0
	if chance(be.rng, 0.25) {
		toSaved = 15
	}
	be.shift(doctor, saved, toSaved)

	toDoctor := -20.0
	if chance(be.rng, 0.20) {
		toDoctor = 10
	}
	be.shift(saved, doctor, toDoctor)

	be.UpdateTownwide(saved, be.weights.DoctorSave)
}

// SuspectProtector picks one living player other than saved whom the town
// guesses must have protected them. Returns "" when nobody qualifies.
func (be *BeliefEngine) SuspectProtector(saved string) string {
	candidates := be.players.AliveIDs(func(p *types.Player) bool {
		return p.ID != saved
	})
	protector := pick(be.rng, candidates)
	if protector == "" {
		return ""
	}

	delta := protectorBump
	if chance(be.rng, 0.35) {
		delta = protectorRelief
	}
	for _, observer := range be.players.IDs() {
		if observer == saved || observer == protector {
			continue
		}
		be.shift(observer, protector, delta)
	}
	return protector
}

// Frame bumps a random living innocent town-wide with probability p
func (be *BeliefEngine) Frame(p float64) string {
	if !chance(be.rng, p) {
		return ""
	}
	innocents := be.players.AliveIDs(func(pl *types.Player) bool {
		return pl.Role != types.RoleMafia
	})
	framed := pick(be.rng, innocents)
	if framed != "" {
		be.UpdateTownwide(framed, be.weights.Frame)
	}
	return framed
}

// Rumor rolls a town-wide rumor with probability p
func (be *BeliefEngine) Rumor(round int, p float64) (Rumor, bool) {
	if !chance(be.rng, p) {
		return Rumor{}, false
	}
	target := pick(be.rng, be.players.AliveIDs(nil))
	if target == "" {
		return Rumor{}, false
	}

	polarity := 1
	if be.rng.Intn(2) == 0 {
		polarity = -1
	}
	for _, observer := range be.players.IDs() {
		if observer == target {
			continue
		}
		be.shift(observer, target, float64(polarity)*rumorShift)
	}
	return Rumor{Round: round, TargetID: target, Polarity: polarity}, true
}

// GuiltByAssociation penalizes a defender when the defended player is
// already widely suspected.
func (be *BeliefEngine) GuiltByAssociation(defender, defended string) bool {
	if be.matrix.Average(defended, defender) <= highSuspicionMark {
		return false
	}
	be.UpdateTownwide(defender, be.weights.GuiltByAssociation)
	return true
}

// Lurkers penalizes every given player for staying silent
func (be *BeliefEngine) Lurkers(ids []string) {
	for _, id := range ids {
		be.UpdateTownwide(id, be.weights.Lurker)
	}
}

// VoteAnalysis describes one voter's ballot against this round's discussion
type VoteAnalysis struct {
	VoterID  string
	Vote     types.Vote
	Position int
	Total    int
}

// AnalyzeVotes applies hypocrisy, consistency and bandwagon updates after an
// elimination, then penalizes everyone who voted out an innocent.
func (be *BeliefEngine) AnalyzeVotes(ballots []VoteAnalysis, events []types.DiscussionEvent, eliminated string) {
	eliminatedPlayer, ok := be.players.Get(eliminated)
	if !ok {
		return
	}

	for _, b := range ballots {
		voter, ok := be.players.Get(b.VoterID)
		if !ok || !voter.Alive {
			continue
		}
		voted, cast := b.Vote.Target()

		var accusedVoted, accusedOther bool
		for _, ev := range events {
			if ev.Actor != b.VoterID || ev.Kind != types.ActionAccuse {
				continue
			}
			if cast && ev.Target == voted {
				accusedVoted = true
			} else {
				accusedOther = true
			}
		}

		if accusedOther && (!cast || voted != eliminated) {
			be.UpdateTownwide(b.VoterID, be.weights.Hypocrisy)
		}
		if accusedVoted {
			be.UpdateTownwide(b.VoterID, be.weights.Consistency)
		}
		if b.Total > 0 && float64(b.Position) >= float64(b.Total)*0.6 {
			be.UpdateTownwide(b.VoterID, be.weights.Bandwagon)
		}
	}

	if eliminatedPlayer.Role == types.RoleMafia {
		return
	}
	for _, b := range ballots {
		if voted, cast := b.Vote.Target(); cast && voted == eliminated {
			be.UpdateTownwide(b.VoterID, be.weights.VoteBad)
		}
	}
}

// VindicationMode selects how deaths feed back into suspicion
type VindicationMode string

const (
	// VindicationLegacy routes every adjustment through observer -> observer
	// updates, which UpdateBelief rejects.
	VindicationLegacy VindicationMode = "legacy"
	// VindicationVoters credits or blames the players who actually voted
	VindicationVoters VindicationMode = "voters"
)

// Vindicate runs the historical pass over the given deaths
func (be *BeliefEngine) Vindicate(mode VindicationMode, deaths []types.DeathRecord) {
	for _, death := range deaths {
		switch mode {
		case VindicationVoters:
			be.vindicateVoters(death)
		default:
			be.vindicateLegacy(death)
		}
	}
}

func (be *BeliefEngine) vindicateLegacy(death types.DeathRecord) {
	weight := be.weights.Complicity
	if death.Role == types.RoleMafia {
		weight = be.weights.Vindication
	}
	for _, observer := range be.players.IDs() {
		if observer == death.PlayerID {
			continue
		}
		be.UpdateBelief(observer, observer, weight)
	}
}

func (be *BeliefEngine) vindicateVoters(death types.DeathRecord) {
	for _, p := range be.players.All() {
		if p.ID == death.PlayerID {
			continue
		}
		votedAgainst := votedFor(p, death.PlayerID)

		if death.Role != types.RoleMafia {
			if votedAgainst {
				be.UpdateTownwide(p.ID, be.weights.Complicity)
			}
			continue
		}

		switch {
		case votedAgainst:
			be.UpdateTownwide(p.ID, be.weights.Vindication)
		case p.Alive:
			be.UpdateTownwide(p.ID, be.weights.Complicity)
		}
		if defended(p, death.PlayerID) {
			be.UpdateTownwide(p.ID, be.weights.DefendedMafia)
		}
	}
}

func votedFor(p *types.Player, target string) bool {
	for _, v := range p.VotesCast {
		if v.Target == target {
			return true
		}
	}
	return false
}

func defended(p *types.Player, target string) bool {
	for _, a := range p.DiscussionActions {
		if a.Kind == types.ActionDefend && a.Target == target {
			return true
		}
	}
	return false
}

// MostSuspected returns the eligible target observer suspects most
func (be *BeliefEngine) MostSuspected(observer string, candidates []string) string {
	best := ""
	bestScore := -1.0
	for _, c := range candidates {
		if score, ok := be.matrix.Get(observer, c); ok && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// LeastSuspected returns the eligible target observer trusts most
func (be *BeliefEngine) LeastSuspected(observer string, candidates []string) string {
	best := ""
	bestScore := MaxSuspicion + 1
	for _, c := range candidates {
		if score, ok := be.matrix.Get(observer, c); ok && score < bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
