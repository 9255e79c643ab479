package game

import (
	"fmt"
	"time"

	"github.com/user/mafia-suspicion/internal/types"
	"go.uber.org/zap"
)

// enterPhase re-arms the phase timer and recomputes the required actors
func (s *Session) enterPhase(next types.Phase) {
	if !s.phase.CanTransitionTo(next) {
		s.logger.Warn("Unexpected phase transition",
			zap.String("session_id", s.id),
			zap.String("from", string(s.phase)),
			zap.String("to", string(next)))
	}

	now := s.now()
	s.phase = next
	s.phaseStart = now
	s.phaseEnd = now.Add(s.settings.durationOf(next))
	s.completed = make(map[string]bool)
	s.required = make(map[string]bool)

	for _, p := range s.players.Alive() {
		if next == types.PhaseNight && !p.Role.HasNightAction() {
			continue
		}
		s.required[p.ID] = true
	}

	s.outcome.Changed = true
	s.logger.Debug("Phase entered",
		zap.String("session_id", s.id),
		zap.String("phase", string(next)),
		zap.Int("round", s.round),
		zap.Int("required", len(s.required)))
}

func (s *Session) allCompleted() bool {
	for id := range s.required {
		if !s.completed[id] {
			return false
		}
	}
	return true
}

// actingPlayer validates the lifecycle, phase and submitter of an action
func (s *Session) actingPlayer(actorID, issuerID string, phase types.Phase) (*types.Player, error) {
	switch s.status {
	case types.StatusFinished:
		return nil, ErrGameOver
	case types.StatusWaiting:
		return nil, ErrNotStarted
	}
	if s.phase != phase {
		return nil, fmt.Errorf("%w: current phase is %s", ErrWrongPhase, s.phase)
	}

	actor, ok := s.players.Get(actorID)
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if issuerID != "" && issuerID != actorID {
		manual := actor.Bot && s.botMode == types.BotModeManual && issuerID == s.hostID
		if !manual {
			return nil, ErrNotYourBot
		}
	}
	if !actor.Alive {
		return nil, ErrPlayerDead
	}
	return actor, nil
}

// livingTarget validates a target for actor
func (s *Session) livingTarget(actor *types.Player, targetID string) (*types.Player, error) {
	target, ok := s.players.Get(targetID)
	if !ok {
		return nil, ErrUnknownTarget
	}
	if target.ID == actor.ID {
		return nil, ErrSelfTarget
	}
	if !target.Alive {
		return nil, ErrTargetDead
	}
	return target, nil
}

func (s *Session) submitNight(c types.NightActionCommand) (types.CommandResult, error) {
	actor, err := s.actingPlayer(c.ActorID, c.IssuerID, types.PhaseNight)
	if err != nil {
		return types.CommandResult{}, err
	}
	kind, ok := types.NightActionFor(actor.Role)
	if !ok {
		return types.CommandResult{}, ErrNoNightAction
	}
	target, err := s.livingTarget(actor, c.TargetID)
	if err != nil {
		return types.CommandResult{}, err
	}
	if actor.Role == types.RoleMafia && target.Role == types.RoleMafia {
		return types.CommandResult{}, ErrTeammateTarget
	}

	s.nightActions[actor.ID] = target.ID
	s.completed[actor.ID] = true
	actor.NightActions = append(actor.NightActions, types.ActionRecord{
		Round:  s.round,
		Kind:   kind,
		Target: target.ID,
		At:     s.now(),
	})
	s.outcome.Changed = true

	res := types.CommandResult{
		Message: fmt.Sprintf("Your %s target is %s.", kind, types.DisplayName(target)),
		Changed: true,
	}
	if kind == types.ActionInvestigate {
		res.Reading = s.beliefs.Investigate(actor.ID, target.ID, target.Role == types.RoleMafia)
		res.Message = fmt.Sprintf("Your instinct says %s %s.", types.DisplayName(target), res.Reading)
	}
	return res, nil
}

func (s *Session) submitDiscussion(c types.DiscussionCommand) (types.CommandResult, error) {
	actor, err := s.actingPlayer(c.ActorID, c.IssuerID, types.PhaseDiscussion)
	if err != nil {
		return types.CommandResult{}, err
	}

	record := types.ActionRecord{Round: s.round, Kind: c.Kind, At: s.now()}
	var message string

	switch c.Kind {
	case types.ActionSkip:
		message = "You stay quiet this round."
	case types.ActionAccuse, types.ActionDefend:
		target, err := s.livingTarget(actor, c.TargetID)
		if err != nil {
			return types.CommandResult{}, err
		}
		record.Target = target.ID
		s.discussion = append(s.discussion, types.DiscussionEvent{
			Round:  s.round,
			Actor:  actor.ID,
			Kind:   c.Kind,
			Target: target.ID,
		})
		if c.Kind == types.ActionAccuse {
			s.accusations[target.ID]++
			s.log(fmt.Sprintf("%s accuses %s.", types.DisplayName(actor), types.DisplayName(target)))
		} else {
			s.defenses[target.ID]++
			s.log(fmt.Sprintf("%s defends %s.", types.DisplayName(actor), types.DisplayName(target)))
			s.beliefs.GuiltByAssociation(actor.ID, target.ID)
		}
		message = fmt.Sprintf("You %s %s.", c.Kind, types.DisplayName(target))
	default:
		return types.CommandResult{}, ErrInvalidAction
	}

	actor.DiscussionActions = append(actor.DiscussionActions, record)
	s.completed[actor.ID] = true
	s.outcome.Changed = true

	if s.allCompleted() {
		s.advance("early")
	}
	return types.CommandResult{Message: message, Changed: true}, nil
}

func (s *Session) submitVote(c types.VoteCommand) (types.CommandResult, error) {
	actor, err := s.actingPlayer(c.ActorID, c.IssuerID, types.PhaseVoting)
	if err != nil {
		return types.CommandResult{}, err
	}

	record := types.ActionRecord{Round: s.round, Kind: types.ActionVote, At: s.now()}
	message := "You chose to skip."
	if targetID, cast := c.Vote.Target(); cast {
		target, err := s.livingTarget(actor, targetID)
		if err != nil {
			return types.CommandResult{}, err
		}
		record.Target = target.ID
		message = fmt.Sprintf("You voted for %s.", types.DisplayName(target))
	} else {
		record.Kind = types.ActionSkip
	}

	if prev, had := s.votes[actor.ID]; had {
		if prevTarget, cast := prev.Target(); cast {
			s.voteCounts[prevTarget]--
		}
	} else {
		s.voteOrder = append(s.voteOrder, actor.ID)
	}
	if record.Target != "" {
		s.voteCounts[record.Target]++
	}

	s.votes[actor.ID] = c.Vote
	s.completed[actor.ID] = true
	actor.VotesCast = append(actor.VotesCast, record)
	s.outcome.Changed = true

	return types.CommandResult{Message: message, Changed: true}, nil
}

func (s *Session) hostAdvance(requesterID string) (types.CommandResult, error) {
	switch s.status {
	case types.StatusFinished:
		return types.CommandResult{}, ErrGameOver
	case types.StatusWaiting:
		return types.CommandResult{}, ErrNotStarted
	}
	if err := s.requireHost(requesterID); err != nil {
		return types.CommandResult{}, err
	}

	from := s.phase
	s.advance("host")
	return types.CommandResult{
		Message: fmt.Sprintf("The host ended the %s phase.", from),
		Changed: true,
	}, nil
}

// advance leaves the current phase, resolving it
func (s *Session) advance(trigger string) {
	s.logger.Info("Advancing phase",
		zap.String("session_id", s.id),
		zap.String("phase", string(s.phase)),
		zap.Int("round", s.round),
		zap.String("trigger", trigger))

	switch s.phase {
	case types.PhaseNight:
		s.resolveNight()
	case types.PhaseDiscussion:
		s.endDiscussion()
	case types.PhaseVoting:
		s.resolveVoting()
	}
}

// endDiscussion penalizes silent players and opens the vote
func (s *Session) endDiscussion() {
	var lurkers []string
	for _, p := range s.players.Alive() {
		if !s.completed[p.ID] {
			lurkers = append(lurkers, p.ID)
		}
	}
	s.beliefs.Lurkers(lurkers)

	s.votes = make(map[string]types.Vote)
	s.voteOrder = nil
	s.enterPhase(types.PhaseVoting)
	s.log("Discussion is over. Cast your votes.")
	s.outcome.Headline = fmt.Sprintf("Day %d: voting", s.round)
}

// Tick drives bots and timers. Called by the event system on every poll.
func (s *Session) Tick(now time.Time) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = Outcome{}
	if s.status != types.StatusInGame {
		return Outcome{}
	}

	if s.botMode == types.BotModeAuto {
		s.runBots()
	}
	if s.status != types.StatusInGame {
		return s.takeOutcome()
	}

	switch {
	case !now.Before(s.phaseEnd):
		s.advance("timer")
	case s.phase == types.PhaseDiscussion && s.allCompleted():
		s.advance("early")
	}
	return s.takeOutcome()
}

// runBots lets every pending simulated player act once
func (s *Session) runBots() {
	for _, bot := range s.players.Bots() {
		if !bot.Alive || !s.required[bot.ID] || s.completed[bot.ID] {
			continue
		}
		phase := s.phase

		var err error
		switch phase {
		case types.PhaseNight:
			target, ok := s.decisions.ChooseNightTarget(bot, s.players)
			if !ok {
				continue
			}
			_, err = s.submitNight(types.NightActionCommand{ActorID: bot.ID, TargetID: target})
		case types.PhaseDiscussion:
			kind, target := s.decisions.ChooseDiscussion(bot, s.players)
			_, err = s.submitDiscussion(types.DiscussionCommand{ActorID: bot.ID, Kind: kind, TargetID: target})
		case types.PhaseVoting:
			vote := s.decisions.ChooseVote(bot, s.players)
			_, err = s.submitVote(types.VoteCommand{ActorID: bot.ID, Vote: vote})
		}

		if err != nil {
			s.logger.Debug("Bot action rejected",
				zap.String("session_id", s.id),
				zap.String("bot", bot.Name),
				zap.Error(err))
		}
		if s.phase != phase || s.status != types.StatusInGame {
			return
		}
	}
}
