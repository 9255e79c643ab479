package narrative

import (
	"context"
	"fmt"

	"github.com/user/mafia-suspicion/internal/interfaces"
	"github.com/user/mafia-suspicion/internal/types"
)

const dayIntroSystem = `You narrate a game of Mafia played in a group chat. The town wakes each morning not knowing who among them is a killer.

Write one or two short, atmospheric sentences opening the new day. Never reveal or guess anyone's role. Do not address the players directly and do not use lists.`

// Narrator writes day intros
type Narrator struct {
	client *Client
}

var _ interfaces.Narrator = (*Narrator)(nil)

// NewNarrator wraps a client. A nil client yields a disabled narrator.
func NewNarrator(client *Client) *Narrator {
	return &Narrator{client: client}
}

// Enabled reports whether narration calls will be attempted
func (n *Narrator) Enabled() bool {
	return n != nil && n.client.Enabled()
}

// DayIntro opens a new day
func (n *Narrator) DayIntro(ctx context.Context, req types.NarrationRequest) (string, error) {
	if !n.Enabled() {
		return "", ErrDisabled
	}
	return n.client.Complete(ctx, dayIntroSystem, dayIntroPrompt(req), 120)
}

func dayIntroPrompt(req types.NarrationRequest) string {
	night := "Nobody died in the night."
	if req.Victim != "" {
		night = fmt.Sprintf("%s was found dead this morning.", req.Victim)
	}
	return fmt.Sprintf("Day %d begins. %s %d townsfolk remain alive.", req.Round, night, req.Alive)
}
