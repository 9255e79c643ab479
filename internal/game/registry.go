package game

import (
	"github.com/user/mafia-suspicion/internal/types"
)

// Registry holds the players of one session in join order
type Registry struct {
	players map[string]*types.Player
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[string]*types.Player),
	}
}

// Add registers a player. Returns false if the id is taken.
func (r *Registry) Add(p *types.Player) bool {
	if _, exists := r.players[p.ID]; exists {
		return false
	}
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	return true
}

// Remove drops a player entirely. Only used before the game starts.
func (r *Registry) Remove(id string) bool {
	if _, exists := r.players[id]; !exists {
		return false
	}
	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get looks up a player by id
func (r *Registry) Get(id string) (*types.Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Has reports whether id is a known player
func (r *Registry) Has(id string) bool {
	_, ok := r.players[id]
	return ok
}

// Len returns the number of registered players
func (r *Registry) Len() int {
	return len(r.order)
}

// All returns every player in join order
func (r *Registry) All() []*types.Player {
	out := make([]*types.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// IDs returns every player id in join order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Alive returns the living players in join order
func (r *Registry) Alive() []*types.Player {
	out := make([]*types.Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// AliveIDs returns the ids of living players, optionally filtered
func (r *Registry) AliveIDs(keep func(*types.Player) bool) []string {
	var out []string
	for _, p := range r.Alive() {
		if keep == nil || keep(p) {
			out = append(out, p.ID)
		}
	}
	return out
}

// AliveWithRole returns living players holding the given role
func (r *Registry) AliveWithRole(role types.Role) []*types.Player {
	var out []*types.Player
	for _, p := range r.Alive() {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// Bots returns the simulated players
func (r *Registry) Bots() []*types.Player {
	var out []*types.Player
	for _, p := range r.All() {
		if p.Bot {
			out = append(out, p)
		}
	}
	return out
}

// IsMafia reports whether id is a known mafia member
func (r *Registry) IsMafia(id string) bool {
	p, ok := r.players[id]
	return ok && p.Role == types.RoleMafia
}
