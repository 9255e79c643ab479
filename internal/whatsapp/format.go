package whatsapp

import (
	"fmt"
	"strings"

	"github.com/user/mafia-suspicion/internal/types"
)

const barWidth = 10

// MessageFormatter renders game state as WhatsApp text
type MessageFormatter struct{}

// NewMessageFormatter creates a new message formatter
func NewMessageFormatter() *MessageFormatter {
	return &MessageFormatter{}
}

// FormatUpdate renders a published update: headline, announcements, then
// the current state
func (mf *MessageFormatter) FormatUpdate(update types.Update) string {
	var b strings.Builder
	if update.Headline != "" {
		fmt.Fprintf(&b, "*%s*\n", strings.ToUpper(update.Headline))
	}
	for _, line := range update.Announcements {
		fmt.Fprintf(&b, "%s\n", line)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(mf.FormatSnapshot(update.Snapshot))
	return b.String()
}

// FormatSnapshot renders the lobby, a running game or the final result
func (mf *MessageFormatter) FormatSnapshot(snap types.Snapshot) string {
	switch snap.Status {
	case types.StatusWaiting:
		return mf.formatLobby(snap)
	case types.StatusFinished:
		return mf.formatResult(snap)
	default:
		return mf.formatGame(snap)
	}
}

func (mf *MessageFormatter) formatLobby(snap types.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎭 *MAFIA LOBBY* (%d players)\n\n", len(snap.Roster))
	for _, p := range snap.Roster {
		fmt.Fprintf(&b, "%d. %s%s\n", p.Index, p.Name, hostTag(p))
	}
	if len(snap.RecentlyJoined) > 0 {
		names := make([]string, 0, len(snap.RecentlyJoined))
		for _, id := range snap.RecentlyJoined {
			names = append(names, nameOf(snap, id))
		}
		fmt.Fprintf(&b, "\nRecently joined: %s\n", strings.Join(names, ", "))
	}
	if snap.BotMode != "" && hasBots(snap) {
		fmt.Fprintf(&b, "Bot mode: %s\n", snap.BotMode)
	}
	return b.String()
}

func (mf *MessageFormatter) formatGame(snap types.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* (round %d)\n", phaseEmoji(snap.Phase), phaseTitle(snap.Phase), snap.Round)
	fmt.Fprintf(&b, "⏱ %ds left | ✅ %d/%d acted\n", snap.SecondsRemaining, snap.Progress.Completed, snap.Progress.Required)
	fmt.Fprintf(&b, "Mafia: %d | Town: %d\n\n", snap.MafiaCount, snap.VillagerCount)

	tallies := make(map[string]types.Tally, len(snap.Tallies))
	for _, t := range snap.Tallies {
		tallies[t.PlayerID] = t
	}

	b.WriteString("*Alive*\n")
	for _, p := range snap.Alive {
		fmt.Fprintf(&b, "%d. %s%s", p.Index, p.Name, hostTag(p))
		t := tallies[p.ID]
		switch snap.Phase {
		case types.PhaseDiscussion:
			if t.Accusations > 0 || t.Defenses > 0 {
				fmt.Fprintf(&b, " | 👉 %d 🛡 %d", t.Accusations, t.Defenses)
			}
		case types.PhaseVoting:
			if t.Votes > 0 {
				fmt.Fprintf(&b, " | 🗳 %d", t.Votes)
			}
		}
		b.WriteString("\n")
	}

	if len(snap.Dead) > 0 {
		b.WriteString("\n*Dead*\n")
		for _, p := range snap.Dead {
			fmt.Fprintf(&b, "%d. ~%s~ (%s)\n", p.Index, p.Name, p.Role)
		}
	}

	mf.writeLog(&b, snap.Log)
	return b.String()
}

func (mf *MessageFormatter) formatResult(snap types.Snapshot) string {
	var b strings.Builder
	switch snap.Winner {
	case types.WinnerVillager:
		b.WriteString("🏆 *THE TOWN WINS*\n")
	case types.WinnerMafia:
		b.WriteString("🩸 *THE MAFIA WINS*\n")
	default:
		b.WriteString("*GAME ENDED*\n")
	}
	fmt.Fprintf(&b, "Rounds played: %d\n", snap.Round)

	if len(snap.Deaths) > 0 {
		b.WriteString("\n*Fallen*\n")
		for _, d := range snap.Deaths {
			fmt.Fprintf(&b, "Round %d: %s (%s, %s)\n", d.Round, nameOf(snap, d.PlayerID), d.Role, d.Cause)
		}
	}
	mf.writeLog(&b, snap.Log)
	return b.String()
}

func (mf *MessageFormatter) writeLog(b *strings.Builder, log []string) {
	if len(log) == 0 {
		return
	}
	b.WriteString("\n*Recent events*\n")
	for _, line := range log {
		fmt.Fprintf(b, "• %s\n", line)
	}
}

// FormatSuspicion renders an observer's private suspicion view as bars
func (mf *MessageFormatter) FormatSuspicion(view types.SuspicionSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕵️ *YOUR SUSPICIONS* (round %d)\n\n", view.Round)
	for _, s := range view.Scores {
		name := s.Name
		if !s.Alive {
			name = "~" + name + "~"
		}
		fmt.Fprintf(&b, "%s\n%s %.0f %s\n", name, suspicionBar(s.Score), s.Score, s.Bucket)
	}
	return b.String()
}

// FormatHelp lists the available commands
func (mf *MessageFormatter) FormatHelp(prefix string) string {
	lines := []string{
		"🎭 *MAFIA COMMANDS*",
		"",
		"*Lobby*",
		prefix + "mafia create - open a lobby in this group",
		prefix + "mafia join / leave",
		prefix + "mafia bots <1-5> [auto|manual] - add bots (host)",
		prefix + "mafia start - start the game (host)",
		"",
		"*Night* (send privately)",
		prefix + "kill <n> / " + prefix + "save <n> / " + prefix + "investigate <n>",
		"",
		"*Day*",
		prefix + "accuse <n> / " + prefix + "defend <n> / " + prefix + "skip",
		prefix + "vote <n> / " + prefix + "vote skip",
		"",
		"*Other*",
		prefix + "mafia status - show the game",
		prefix + "mafia sus - your private suspicion view",
		prefix + "as <bot n> <command> - act for a manual bot (host)",
		prefix + "mafia endphase / end - host controls",
	}
	return strings.Join(lines, "\n")
}

func suspicionBar(score float64) string {
	filled := int(score/100*barWidth + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("▓", filled) + strings.Repeat("░", barWidth-filled)
}

func phaseTitle(phase types.Phase) string {
	switch phase {
	case types.PhaseNight:
		return "NIGHT"
	case types.PhaseDiscussion:
		return "DISCUSSION"
	case types.PhaseVoting:
		return "VOTING"
	default:
		return "GAME"
	}
}

func phaseEmoji(phase types.Phase) string {
	switch phase {
	case types.PhaseNight:
		return "🌙"
	case types.PhaseDiscussion:
		return "☀️"
	case types.PhaseVoting:
		return "🗳"
	default:
		return "🎭"
	}
}

func hostTag(p types.PlayerView) string {
	if p.Host {
		return " 👑"
	}
	return ""
}

func hasBots(snap types.Snapshot) bool {
	for _, p := range snap.Roster {
		if p.Bot {
			return true
		}
	}
	return false
}

func nameOf(snap types.Snapshot, id string) string {
	for _, p := range snap.Roster {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}
