package game

import (
	"math"
	"time"

	"github.com/user/mafia-suspicion/internal/types"
)

// Snapshot renders the session state at the given time
func (s *Session) Snapshot(now time.Time) types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := types.Snapshot{
		SessionID:      s.id,
		GameID:         s.gameID,
		HostID:         s.hostID,
		Status:         s.status,
		Round:          s.round,
		MafiaCount:     s.mafiaCount,
		VillagerCount:  s.villagerCount,
		Winner:         s.winner,
		BotMode:        s.botMode,
		RecentlyJoined: append([]string(nil), s.recentlyJoined...),
		Kicked:         append([]string(nil), s.kicked...),
		Deaths:         append([]types.DeathRecord(nil), s.deaths...),
	}

	if s.status == types.StatusInGame {
		snap.Phase = s.phase
		snap.PhaseStartedAt = s.phaseStart
		snap.PhaseEndsAt = s.phaseEnd
		if remaining := s.phaseEnd.Sub(now); remaining > 0 {
			snap.SecondsRemaining = int(math.Ceil(remaining.Seconds()))
		}
		snap.Progress = types.Progress{Completed: s.completedRequired(), Required: len(s.required)}
	}

	for i, p := range s.players.All() {
		view := types.PlayerView{
			Index: i + 1,
			ID:    p.ID,
			Name:  types.DisplayName(p),
			Alive: p.Alive,
			Host:  p.Host,
			Bot:   p.Bot,
		}
		if !p.Alive {
			view.Role = p.Role
		}
		snap.Roster = append(snap.Roster, view)
		if p.Alive {
			snap.Alive = append(snap.Alive, view)
			snap.Tallies = append(snap.Tallies, types.Tally{
				PlayerID:    p.ID,
				Name:        view.Name,
				Accusations: s.accusations[p.ID],
				Defenses:    s.defenses[p.ID],
				Votes:       s.voteCounts[p.ID],
			})
		} else {
			snap.Dead = append(snap.Dead, view)
		}
	}

	logs := s.logs
	if view := s.settings.LogView; view > 0 && len(logs) > view {
		logs = logs[len(logs)-view:]
	}
	snap.Log = append([]string(nil), logs...)

	return snap
}

func (s *Session) completedRequired() int {
	n := 0
	for id := range s.required {
		if s.completed[id] {
			n++
		}
	}
	return n
}

// Suspicion returns observer's private view of everyone else
func (s *Session) Suspicion(observerID string) (types.SuspicionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == types.StatusWaiting {
		return types.SuspicionSnapshot{}, ErrNotStarted
	}
	observer, ok := s.players.Get(observerID)
	if !ok {
		return types.SuspicionSnapshot{}, ErrUnknownPlayer
	}
	if !observer.Alive && s.status == types.StatusInGame {
		return types.SuspicionSnapshot{}, ErrPlayerDead
	}

	snap := types.SuspicionSnapshot{
		SessionID: s.id,
		Observer:  observerID,
		Round:     s.round,
	}
	for _, p := range s.players.All() {
		score, ok := s.matrix.Get(observerID, p.ID)
		if !ok {
			continue
		}
		snap.Scores = append(snap.Scores, types.SuspicionScore{
			TargetID: p.ID,
			Name:     types.DisplayName(p),
			Alive:    p.Alive,
			Score:    score,
			Bucket:   types.BucketFor(score),
		})
	}
	return snap, nil
}
