package game

import (
	"fmt"
	"sort"

	"github.com/user/mafia-suspicion/internal/types"
	"go.uber.org/zap"
)

const skipKey = "\x00skip"

// resolveNight settles kills, saves and investigations, then either restarts
// the night after an inaction purge or opens the next day.
func (s *Session) resolveNight() {
	round := s.round

	kills := make(map[string]int)
	for _, m := range s.players.AliveWithRole(types.RoleMafia) {
		if target, ok := s.nightActions[m.ID]; ok && s.isAlive(target) {
			kills[target]++
		}
	}
	victim := s.pluralityWithTieBreak(kills)
	doctorID, saved := s.nightActionOf(types.RoleDoctor)
	detectiveID, investigated := s.nightActionOf(types.RoleDetective)

	var victimName string
	switch {
	case victim == "":
		s.log("A quiet night. No one was attacked.")
	case doctorID != "" && saved == victim:
		s.beliefs.DoctorSave(doctorID, victim)
		protector := s.beliefs.SuspectProtector(victim)
		s.logger.Info("Kill prevented",
			zap.String("session_id", s.id),
			zap.Int("round", round),
			zap.String("suspected_protector", protector))
		s.log("Someone was attacked in the night, but survived.")
	default:
		p := s.kill(victim, types.CauseKilled)
		victimName = types.DisplayName(p)
		s.log(fmt.Sprintf("%s was found dead. Role: %s.", victimName, p.Role))
		if s.checkWin() {
			return
		}
	}

	if detectiveID != "" && s.players.Has(investigated) {
		s.beliefs.PropagateIntuition(detectiveID, investigated, s.players.IsMafia(investigated))
	}

	if framed := s.beliefs.Frame(s.settings.FrameChance); framed != "" {
		s.logger.Debug("Frame-up applied",
			zap.String("session_id", s.id),
			zap.String("player_id", framed))
	}

	s.beliefs.Vindicate(s.settings.Vindication, s.deathsIn(round))

	if s.purgeInactive() {
		return
	}

	s.round++
	s.resetRoundState()
	s.enterPhase(types.PhaseDiscussion)
	s.beliefs.Decay()
	if rumor, ok := s.beliefs.Rumor(s.round, s.settings.RumorChance); ok {
		target, _ := s.players.Get(rumor.TargetID)
		tone := "can't be trusted"
		if rumor.Polarity < 0 {
			tone = "is probably innocent"
		}
		s.log(fmt.Sprintf("Rumor has it %s %s.", types.DisplayName(target), tone))
	}

	s.log(fmt.Sprintf("Day %d begins. Discuss.", s.round))
	s.outcome.DayStarted = true
	s.outcome.Round = s.round
	s.outcome.Victim = victimName
	s.outcome.Headline = fmt.Sprintf("Day %d", s.round)
}

// purgeInactive eliminates required night actors who never acted and
// restarts the night. Returns true if the night restarted or the game ended.
func (s *Session) purgeInactive() bool {
	var idle []*types.Player
	for _, p := range s.players.Alive() {
		if s.required[p.ID] && !s.completed[p.ID] {
			idle = append(idle, p)
		}
	}
	if len(idle) == 0 {
		return false
	}

	for _, p := range idle {
		s.kill(p.ID, types.CauseInaction)
		s.kicked = append(s.kicked, p.ID)
		s.log(fmt.Sprintf("%s was eliminated for inaction. Role: %s.", types.DisplayName(p), p.Role))
		if s.checkWin() {
			return true
		}
	}

	s.nightActions = make(map[string]string)
	s.enterPhase(types.PhaseNight)
	s.log("The night starts over.")
	s.outcome.Headline = fmt.Sprintf("Night %d (restarted)", s.round)
	return true
}

// resolveVoting executes the plurality choice, if any, and opens the night
func (s *Session) resolveVoting() {
	tally := make(map[string]int)
	var ballots []VoteAnalysis
	for _, voterID := range s.voteOrder {
		if !s.players.Has(voterID) {
			continue
		}
		vote := s.votes[voterID]
		key := skipKey
		if target, cast := vote.Target(); cast {
			if !s.players.Has(target) {
				continue
			}
			key = target
		}
		tally[key]++
		ballots = append(ballots, VoteAnalysis{VoterID: voterID, Vote: vote, Position: len(ballots)})
	}
	for i := range ballots {
		ballots[i].Total = len(ballots)
	}

	eliminated := ""
	if leaders := topOf(tally); len(leaders) == 1 && leaders[0] != skipKey {
		eliminated = leaders[0]
	}

	if eliminated == "" {
		s.log("No consensus reached. No one was executed.")
	} else {
		p := s.kill(eliminated, types.CauseExecuted)
		s.log(fmt.Sprintf("%s was executed. Role: %s.", types.DisplayName(p), p.Role))
		s.beliefs.AnalyzeVotes(ballots, s.discussion, eliminated)
	}

	s.resetRoundState()
	if s.checkWin() {
		return
	}

	s.enterPhase(types.PhaseNight)
	s.log(fmt.Sprintf("Night %d falls.", s.round))
	s.outcome.Headline = fmt.Sprintf("Night %d", s.round)
}

// kill marks a player dead, updates faction tallies and the death log
func (s *Session) kill(id string, cause types.DeathCause) *types.Player {
	p, ok := s.players.Get(id)
	if !ok || !p.Alive {
		return p
	}
	p.Alive = false
	if p.Role == types.RoleMafia {
		s.mafiaCount--
	} else {
		s.villagerCount--
	}
	s.deaths = append(s.deaths, types.DeathRecord{
		Round:    s.round,
		PlayerID: id,
		Role:     p.Role,
		Cause:    cause,
	})

	s.logger.Info("Player died",
		zap.String("session_id", s.id),
		zap.String("player_id", id),
		zap.String("role", string(p.Role)),
		zap.String("cause", string(cause)),
		zap.Int("round", s.round))
	return p
}

// checkWin finishes the game if a faction has won
func (s *Session) checkWin() bool {
	switch {
	case s.mafiaCount == 0:
		s.finish(types.WinnerVillager)
	case s.mafiaCount >= s.villagerCount:
		s.finish(types.WinnerMafia)
	default:
		return false
	}
	return true
}

func (s *Session) finish(winner types.Winner) {
	s.status = types.StatusFinished
	s.winner = winner
	now := s.now()
	s.phaseStart = now
	s.phaseEnd = now
	s.cancelAutoStart()

	if winner == types.WinnerVillager {
		s.log("Game over! The town wins.")
	} else {
		s.log("Game over! The mafia wins.")
	}
	s.outcome.Headline = "Game over"

	s.logger.Info("Game finished",
		zap.String("session_id", s.id),
		zap.String("game_id", s.gameID),
		zap.String("winner", string(winner)),
		zap.Int("round", s.round))
}

func (s *Session) isAlive(id string) bool {
	p, ok := s.players.Get(id)
	return ok && p.Alive
}

// nightActionOf returns the first living holder of role and their target
func (s *Session) nightActionOf(role types.Role) (actor, target string) {
	for _, p := range s.players.AliveWithRole(role) {
		if t, ok := s.nightActions[p.ID]; ok && s.isAlive(t) {
			return p.ID, t
		}
	}
	return "", ""
}

func (s *Session) deathsIn(round int) []types.DeathRecord {
	var out []types.DeathRecord
	for _, d := range s.deaths {
		if d.Round == round {
			out = append(out, d)
		}
	}
	return out
}

// pluralityWithTieBreak picks the most chosen key, breaking ties at random
func (s *Session) pluralityWithTieBreak(tally map[string]int) string {
	leaders := topOf(tally)
	if len(leaders) == 0 {
		return ""
	}
	return pick(s.rng, leaders)
}

// topOf returns the keys sharing the highest count, sorted
func topOf(tally map[string]int) []string {
	best := 0
	var leaders []string
	for key, n := range tally {
		switch {
		case n > best:
			best = n
			leaders = []string{key}
		case n == best && n > 0:
			leaders = append(leaders, key)
		}
	}
	sort.Strings(leaders)
	return leaders
}
