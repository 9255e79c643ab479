package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/mafia-suspicion/internal/types"
)

func newTestEngine(rng Rand, roles map[string]types.Role, ids ...string) (*BeliefEngine, *Matrix, *Registry) {
	players := NewRegistry()
	for _, id := range ids {
		players.Add(&types.Player{ID: id, Name: id, Role: roles[id], Alive: true})
	}
	matrix := NewMatrix()
	return NewBeliefEngine(matrix, players, rng, DefaultWeights()), matrix, players
}

func TestUpdateBelief(t *testing.T) {
	be, matrix, _ := newTestEngine(quietRand(), nil, "a", "b")

	// Test case 1: self and unknown targets are rejected
	assert.False(t, be.UpdateBelief("a", "a", 0.5))
	assert.False(t, be.UpdateBelief("a", "ghost", 0.5))
	assert.False(t, matrix.Has("a", "a"))

	// Test case 2: low scores damp the weight
	require.True(t, be.UpdateBelief("a", "b", 0.25))
	noise := 0.6 + 0.99*0.8
	v, _ := matrix.Get("a", "b")
	assert.InDelta(t, Baseline+0.25*0.5*noise, v, 0.0001)

	// Test case 3: high scores amplify it
	matrix.Set("a", "b", 70)
	be.UpdateBelief("a", "b", 0.25)
	v, _ = matrix.Get("a", "b")
	assert.InDelta(t, 70+0.25*1.4*noise, v, 0.0001)
}

func TestUpdateBeliefMisread(t *testing.T) {
	// A draw under the misinterpretation chance flips the sign
	be, matrix, _ := newTestEngine(&fixedRand{f: 0.01}, nil, "a", "b")
	matrix.Set("a", "b", 50)

	be.UpdateBelief("a", "b", 1)
	v, _ := matrix.Get("a", "b")
	assert.Less(t, v, 50.0)
}

func TestInitializeMafiaKnowEachOther(t *testing.T) {
	roles := map[string]types.Role{"m1": types.RoleMafia, "m2": types.RoleMafia, "v": types.RoleVillager}
	be, matrix, _ := newTestEngine(quietRand(), roles, "m1", "m2", "v")

	be.Initialize()

	v, _ := matrix.Get("m1", "m2")
	assert.Equal(t, Epsilon, v)
	v, _ = matrix.Get("m2", "m1")
	assert.Equal(t, Epsilon, v)

	v, _ = matrix.Get("v", "m1")
	assert.InDelta(t, Baseline-10+0.99*20, v, 0.0001)
	assert.GreaterOrEqual(t, v, Baseline-10)
	assert.LessOrEqual(t, v, Baseline+10)
}

func TestPropagateIntuition(t *testing.T) {
	roles := map[string]types.Role{"det": types.RoleDetective, "m": types.RoleMafia, "v": types.RoleVillager}
	be, matrix, _ := newTestEngine(quietRand(), roles, "det", "m", "v")

	be.PropagateIntuition("det", "m", true)

	v, _ := matrix.Get("det", "m")
	assert.Equal(t, MaxSuspicion, v)
	v, _ = matrix.Get("v", "m")
	assert.InDelta(t, Baseline+Epsilon*0.15, v, 0.0001)

	be.PropagateIntuition("det", "v", false)
	v, _ = matrix.Get("det", "v")
	assert.Equal(t, MinSuspicion, v)
}

func TestInvestigateReading(t *testing.T) {
	roles := map[string]types.Role{"det": types.RoleDetective, "v": types.RoleVillager}

	// Usual reading for an innocent lowers suspicion
	be, matrix, _ := newTestEngine(quietRand(), roles, "det", "v")
	assert.Equal(t, types.ReadingTrustworthy, be.Investigate("det", "v", false))
	v, _ := matrix.Get("det", "v")
	assert.InDelta(t, Baseline-20, v, 0.0001)

	// The misleading draw raises it
	be, _, _ = newTestEngine(&fixedRand{f: 0.1}, roles, "det", "v")
	assert.Equal(t, types.ReadingSuspicious, be.Investigate("det", "v", false))

	// A clamped shift still reads from the rolled change
	be, matrix, _ = newTestEngine(quietRand(), roles, "det", "v")
	matrix.Set("det", "v", MinSuspicion+3)
	assert.Equal(t, types.ReadingTrustworthy, be.Investigate("det", "v", false))
	v, _ = matrix.Get("det", "v")
	assert.Equal(t, MinSuspicion, v)
}

func TestInvestigateSameTargetTwice(t *testing.T) {
	roles := map[string]types.Role{"det": types.RoleDetective, "v": types.RoleVillager, "m": types.RoleMafia}

	tests := []struct {
		name    string
		rng     *fixedRand
		target  string
		isMafia bool
		want    types.Reading
		pinned  float64
	}{
		{"innocent pinned at the floor", quietRand(), "v", false, types.ReadingTrustworthy, MinSuspicion},
		{"mafia pinned at the ceiling, misleading draw", &fixedRand{f: 0.1}, "m", true, types.ReadingSuspicious, MaxSuspicion},
		{"mafia pinned at the ceiling, usual draw", quietRand(), "m", true, types.ReadingTrustworthy, MaxSuspicion - 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be, matrix, _ := newTestEngine(tt.rng, roles, "det", "v", "m")

			// Night 1
			be.PropagateIntuition("det", tt.target, tt.isMafia)
			be.Investigate("det", tt.target, tt.isMafia)

			// Night 2: the first night's conclusion is pinned again
			be.PropagateIntuition("det", tt.target, tt.isMafia)
			assert.Equal(t, tt.want, be.Investigate("det", tt.target, tt.isMafia))

			v, _ := matrix.Get("det", tt.target)
			assert.Equal(t, tt.pinned, v)
		})
	}
}

func TestDoctorSaveLowersTownSuspicion(t *testing.T) {
	roles := map[string]types.Role{"doc": types.RoleDoctor, "saved": types.RoleVillager, "m": types.RoleMafia}

	tests := []struct {
		name       string
		rng        *fixedRand
		toSaved    float64
		toDoctor   float64
		townToSave float64
	}{
		{
			// Test case 1: both players trust each other more
			name:       "grateful",
			rng:        quietRand(),
			toSaved:    35 - 25 - 0.8*0.5*1.392,
			toDoctor:   35 - 20,
			townToSave: 35 - 0.8*0.5*1.392,
		},
		{
			// Test case 2: both draws misjudge the save
			name:       "misjudged",
			rng:        &fixedRand{f: 0.1},
			toSaved:    35 + 15 - 0.8*0.68,
			toDoctor:   35 + 10,
			townToSave: 35 - 0.8*0.5*0.68,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be, matrix, _ := newTestEngine(tt.rng, roles, "doc", "saved", "m")

			be.DoctorSave("doc", "saved")

			v, _ := matrix.Get("doc", "saved")
			assert.InDelta(t, tt.toSaved, v, 0.0001)
			v, _ = matrix.Get("saved", "doc")
			assert.InDelta(t, tt.toDoctor, v, 0.0001)
			v, _ = matrix.Get("m", "saved")
			assert.InDelta(t, tt.townToSave, v, 0.0001)
			assert.Less(t, v, Baseline)
		})
	}
}

func TestSuspectProtector(t *testing.T) {
	tests := []struct {
		name string
		rng  *fixedRand
		want float64
	}{
		// Test case 1: the town suspects the protector
		{name: "bump", rng: &fixedRand{f: 0.99, n: 1}, want: Baseline + 12},
		// Test case 2: the town is relieved instead
		{name: "relief", rng: &fixedRand{f: 0.1, n: 1}, want: Baseline - 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be, matrix, _ := newTestEngine(tt.rng, nil, "saved", "doc", "x", "y")

			protector := be.SuspectProtector("saved")
			require.Equal(t, "x", protector)

			v, _ := matrix.Get("doc", "x")
			assert.Equal(t, tt.want, v)
			v, _ = matrix.Get("y", "x")
			assert.Equal(t, tt.want, v)

			// the saved player and the protector form no opinion
			assert.False(t, matrix.Has("saved", "x"))
			assert.Empty(t, matrix.Observer("x"))
		})
	}

	// Test case 3: nobody else alive means no protector
	be, matrix, players := newTestEngine(quietRand(), nil, "saved", "doc")
	doc, _ := players.Get("doc")
	doc.Alive = false
	assert.Empty(t, be.SuspectProtector("saved"))
	assert.Empty(t, matrix.Observer("doc"))
}

func TestFrame(t *testing.T) {
	roles := map[string]types.Role{"m": types.RoleMafia, "d": types.RoleVillager, "v": types.RoleVillager, "w": types.RoleDoctor}

	tests := []struct {
		name string
		rng  *fixedRand
		ids  []string
		dead []string
		want string
	}{
		// Test case 1: the roll fails
		{name: "no frame", rng: quietRand(), ids: []string{"m", "d", "v"}, want: ""},
		// Test case 2: the mafia and the dead are never framed
		{name: "only living innocent", rng: &fixedRand{f: 0.1, n: 0}, ids: []string{"m", "d", "v"}, dead: []string{"d"}, want: "v"},
		// Test case 3: the pick walks living innocents in join order
		{name: "second innocent", rng: &fixedRand{f: 0.1, n: 1}, ids: []string{"m", "d", "v", "w"}, dead: []string{"d"}, want: "w"},
		// Test case 4: nobody innocent is left
		{name: "mafia only", rng: &fixedRand{f: 0.1, n: 0}, ids: []string{"m", "d", "v"}, dead: []string{"d", "v"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be, matrix, players := newTestEngine(tt.rng, roles, tt.ids...)
			for _, id := range tt.dead {
				p, _ := players.Get(id)
				p.Alive = false
			}

			framed := be.Frame(0.4)
			assert.Equal(t, tt.want, framed)

			if framed == "" {
				for _, id := range tt.ids {
					assert.Empty(t, matrix.Observer(id))
				}
				return
			}
			v, _ := matrix.Get("m", framed)
			assert.Greater(t, v, Baseline)
			assert.Empty(t, matrix.Observer(framed))
		})
	}
}

func TestRumor(t *testing.T) {
	tests := []struct {
		name     string
		rng      *fixedRand
		ok       bool
		target   string
		polarity int
		want     float64
	}{
		// Test case 1: the 30% roll fails
		{name: "no rumor", rng: quietRand(), ok: false},
		// Test case 2: a damaging rumor
		{name: "damaging", rng: &fixedRand{f: 0.1, n: 1}, ok: true, target: "b", polarity: 1, want: Baseline + 7},
		// Test case 3: a flattering rumor
		{name: "flattering", rng: &fixedRand{f: 0.1, n: 0}, ok: true, target: "a", polarity: -1, want: Baseline - 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be, matrix, _ := newTestEngine(tt.rng, nil, "a", "b", "c")

			rumor, ok := be.Rumor(3, 0.3)
			require.Equal(t, tt.ok, ok)
			if !ok {
				for _, id := range []string{"a", "b", "c"} {
					assert.Empty(t, matrix.Observer(id))
				}
				return
			}

			assert.Equal(t, Rumor{Round: 3, TargetID: tt.target, Polarity: tt.polarity}, rumor)
			for _, observer := range []string{"a", "b", "c"} {
				if observer == tt.target {
					continue
				}
				v, _ := matrix.Get(observer, tt.target)
				assert.Equal(t, tt.want, v)
			}
			// the target's own row is untouched
			assert.Empty(t, matrix.Observer(tt.target))
		})
	}
}

func TestGuiltByAssociation(t *testing.T) {
	be, matrix, _ := newTestEngine(quietRand(), nil, "a", "b", "c")

	// Test case 1: defending an unsuspected player is free
	assert.False(t, be.GuiltByAssociation("a", "b"))

	// Test case 2: defending a widely suspected player costs trust
	matrix.Set("c", "b", 80)
	before, _ := matrix.Get("c", "a")
	assert.True(t, be.GuiltByAssociation("a", "b"))
	after, _ := matrix.Get("c", "a")
	assert.Greater(t, after, before)
}

func TestAnalyzeVotes(t *testing.T) {
	roles := map[string]types.Role{"a": types.RoleVillager, "b": types.RoleVillager, "c": types.RoleMafia, "d": types.RoleVillager}
	be, matrix, _ := newTestEngine(quietRand(), roles, "a", "b", "c", "d")
	for _, obs := range []string{"a", "b", "c", "d"} {
		for _, tgt := range []string{"a", "b", "c", "d"} {
			matrix.Set(obs, tgt, 50)
		}
	}

	events := []types.DiscussionEvent{
		{Round: 1, Actor: "a", Kind: types.ActionAccuse, Target: "c"},
		{Round: 1, Actor: "b", Kind: types.ActionAccuse, Target: "d"},
	}
	ballots := []VoteAnalysis{
		{VoterID: "a", Vote: types.Cast("c"), Position: 0, Total: 3},
		{VoterID: "b", Vote: types.Cast("c"), Position: 1, Total: 3},
		{VoterID: "d", Vote: types.Cast("c"), Position: 2, Total: 3},
	}

	be.AnalyzeVotes(ballots, events, "c")

	// a was consistent, b accused someone else but still voted the winner
	consistent, _ := matrix.Get("d", "a")
	assert.Less(t, consistent, 50.0)
	untouched, _ := matrix.Get("d", "b")
	assert.Equal(t, 50.0, untouched)

	// d cast the last ballot and jumped on the bandwagon
	bandwagon, _ := matrix.Get("a", "d")
	assert.Greater(t, bandwagon, 50.0)
}

func TestAnalyzeVotesSkipsDeadVoters(t *testing.T) {
	roles := map[string]types.Role{"a": types.RoleVillager, "b": types.RoleVillager, "c": types.RoleMafia, "d": types.RoleVillager}
	be, matrix, players := newTestEngine(quietRand(), roles, "a", "b", "c", "d")
	for _, obs := range []string{"a", "b", "c", "d"} {
		for _, tgt := range []string{"a", "b", "c", "d"} {
			matrix.Set(obs, tgt, 50)
		}
	}
	d, _ := players.Get("d")
	d.Alive = false

	// d accused b, voted a and cast the last ballot
	events := []types.DiscussionEvent{
		{Round: 1, Actor: "d", Kind: types.ActionAccuse, Target: "b"},
	}
	ballots := []VoteAnalysis{
		{VoterID: "a", Vote: types.Cast("c"), Position: 0, Total: 3},
		{VoterID: "b", Vote: types.Cast("c"), Position: 1, Total: 3},
		{VoterID: "d", Vote: types.Cast("a"), Position: 2, Total: 3},
	}

	be.AnalyzeVotes(ballots, events, "c")

	for _, obs := range []string{"a", "b", "c"} {
		v, _ := matrix.Get(obs, "d")
		assert.Equal(t, 50.0, v, "observer %s", obs)
	}
}

func TestVindicateLegacyIsNoop(t *testing.T) {
	roles := map[string]types.Role{"a": types.RoleVillager, "b": types.RoleMafia, "c": types.RoleVillager}
	be, matrix, players := newTestEngine(quietRand(), roles, "a", "b", "c")
	be.Initialize()
	before := matrix.Observer("a")

	b, _ := players.Get("b")
	b.Alive = false
	be.Vindicate(VindicationLegacy, []types.DeathRecord{{Round: 1, PlayerID: "b", Role: types.RoleMafia, Cause: types.CauseExecuted}})

	assert.Equal(t, before, matrix.Observer("a"))
}

func TestVindicateVotersCreditsAccusers(t *testing.T) {
	roles := map[string]types.Role{"a": types.RoleVillager, "b": types.RoleMafia, "c": types.RoleVillager}
	be, matrix, players := newTestEngine(quietRand(), roles, "a", "b", "c")
	for _, obs := range []string{"a", "b", "c"} {
		for _, tgt := range []string{"a", "b", "c"} {
			matrix.Set(obs, tgt, 50)
		}
	}

	a, _ := players.Get("a")
	a.VotesCast = append(a.VotesCast, types.ActionRecord{Round: 1, Kind: types.ActionVote, Target: "b"})
	b, _ := players.Get("b")
	b.Alive = false

	be.Vindicate(VindicationVoters, []types.DeathRecord{{Round: 1, PlayerID: "b", Role: types.RoleMafia, Cause: types.CauseExecuted}})

	credited, _ := matrix.Get("c", "a")
	assert.Less(t, credited, 50.0)
	blamed, _ := matrix.Get("a", "c")
	assert.Greater(t, blamed, 50.0)
}

func TestMostAndLeastSuspected(t *testing.T) {
	be, matrix, _ := newTestEngine(quietRand(), nil, "a", "b", "c")
	matrix.Set("a", "b", 80)
	matrix.Set("a", "c", 20)

	assert.Equal(t, "b", be.MostSuspected("a", []string{"b", "c"}))
	assert.Equal(t, "c", be.LeastSuspected("a", []string{"b", "c"}))
	assert.Equal(t, "", be.MostSuspected("a", nil))
}
