package game

import (
	"github.com/user/mafia-suspicion/internal/types"
)

// DecisionEngine chooses actions for simulated players. With probability
// bias a bot follows its own suspicion, otherwise it picks at random.
type DecisionEngine struct {
	rng     Rand
	beliefs *BeliefEngine
	bias    float64
}

// NewDecisionEngine creates a new decision engine
func NewDecisionEngine(rng Rand, beliefs *BeliefEngine, bias float64) *DecisionEngine {
	return &DecisionEngine{
		rng:     rng,
		beliefs: beliefs,
		bias:    bias,
	}
}

// ChooseNightTarget picks a night target. ok is false when the bot has no
// night action or no eligible target exists.
func (de *DecisionEngine) ChooseNightTarget(bot *types.Player, players *Registry) (string, bool) {
	kind, ok := types.NightActionFor(bot.Role)
	if !ok {
		return "", false
	}

	candidates := players.AliveIDs(func(p *types.Player) bool {
		if p.ID == bot.ID {
			return false
		}
		return bot.Role != types.RoleMafia || p.Role != types.RoleMafia
	})
	if len(candidates) == 0 {
		return "", false
	}

	if chance(de.rng, de.bias) {
		if kind == types.ActionSave {
			return de.beliefs.LeastSuspected(bot.ID, candidates), true
		}
		return de.beliefs.MostSuspected(bot.ID, candidates), true
	}
	return pick(de.rng, candidates), true
}

// ChooseDiscussion picks accuse, defend or skip and a target for the first two
func (de *DecisionEngine) ChooseDiscussion(bot *types.Player, players *Registry) (types.ActionKind, string) {
	candidates := players.AliveIDs(func(p *types.Player) bool {
		return p.ID != bot.ID
	})
	if len(candidates) == 0 {
		return types.ActionSkip, ""
	}

	switch de.rng.Intn(3) {
	case 0:
		if chance(de.rng, de.bias) {
			return types.ActionAccuse, de.beliefs.MostSuspected(bot.ID, candidates)
		}
		return types.ActionAccuse, pick(de.rng, candidates)
	case 1:
		if chance(de.rng, de.bias) {
			return types.ActionDefend, de.beliefs.LeastSuspected(bot.ID, candidates)
		}
		return types.ActionDefend, pick(de.rng, candidates)
	default:
		return types.ActionSkip, ""
	}
}

// ChooseVote picks a ballot. Random picks include the skip option.
func (de *DecisionEngine) ChooseVote(bot *types.Player, players *Registry) types.Vote {
	candidates := players.AliveIDs(func(p *types.Player) bool {
		return p.ID != bot.ID
	})
	if len(candidates) == 0 {
		return types.Skip()
	}

	if chance(de.rng, de.bias) {
		return types.Cast(de.beliefs.MostSuspected(bot.ID, candidates))
	}
	choice := de.rng.Intn(len(candidates) + 1)
	if choice == len(candidates) {
		return types.Skip()
	}
	return types.Cast(candidates[choice])
}
