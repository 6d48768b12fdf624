// Package policy implements the directed, weighted communication-permission matrix.
package policy

import (
	"fmt"
	"sort"

	"github.com/dyluth/parley/pkg/agent"
)

// Threshold is the minimum weight at which a directed edge allows communication.
const Threshold = 0.5

// Edge is one configured sender -> recipient permission weight.
type Edge struct {
	From   string  `json:"from" yaml:"from" toml:"from"`
	To     string  `json:"to" yaml:"to" toml:"to"`
	Weight float64 `json:"weight" yaml:"weight" toml:"weight"`
}

type pair struct {
	from string
	to   string
}

// Matrix is a read-only permission graph over agent names.
// Directionality is significant: an A->B edge says nothing about B->A.
type Matrix struct {
	weights       map[pair]float64
	defaultWeight float64
}

// New builds a matrix. Weights must lie in [0,1]; later duplicate edges replace earlier ones.
func New(edges []Edge, defaultWeight float64) (*Matrix, error) {
	if defaultWeight < 0 || defaultWeight > 1 {
		return nil, fmt.Errorf("default weight %.2f out of range [0,1]", defaultWeight)
	}

	weights := make(map[pair]float64, len(edges))
	for i, e := range edges {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("edge %d: from and to must be set", i)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return nil, fmt.Errorf("edge %s->%s: weight %.2f out of range [0,1]", e.From, e.To, e.Weight)
		}
		weights[pair{e.From, e.To}] = e.Weight
	}

	return &Matrix{weights: weights, defaultWeight: defaultWeight}, nil
}

type roleEdge struct {
	from, to agent.RoleKind
	weight   float64
}

// stockEdges is the stock team matrix, keyed by role.
var stockEdges = []roleEdge{
	// Researcher reaches Writer and Integrator, never the Critic directly
	{agent.RoleResearcher, agent.RoleWriter, 1.0},
	{agent.RoleResearcher, agent.RoleIntegrator, 1.0},
	{agent.RoleResearcher, agent.RoleCritic, 0.0},

	{agent.RoleWriter, agent.RoleResearcher, 0.8},
	{agent.RoleWriter, agent.RoleCritic, 1.0},
	{agent.RoleWriter, agent.RoleIntegrator, 1.0},

	{agent.RoleCritic, agent.RoleWriter, 1.0},
	{agent.RoleCritic, agent.RoleResearcher, 0.3},
	{agent.RoleCritic, agent.RoleIntegrator, 1.0},

	// Integrator coordinates, so it reaches everyone
	{agent.RoleIntegrator, agent.RoleResearcher, 1.0},
	{agent.RoleIntegrator, agent.RoleWriter, 1.0},
	{agent.RoleIntegrator, agent.RoleCritic, 1.0},
}

// DefaultEdges returns the stock team matrix over the stock agent names.
func DefaultEdges() []Edge {
	return DefaultEdgesFor(nil)
}

// DefaultEdgesFor returns the stock team matrix over the given roster.
// Roles missing from names keep their stock name.
func DefaultEdgesFor(names map[agent.RoleKind]string) []Edge {
	stock := agent.DefaultNames()
	name := func(kind agent.RoleKind) string {
		if n := names[kind]; n != "" {
			return n
		}
		return stock[kind]
	}

	edges := make([]Edge, 0, len(stockEdges))
	for _, e := range stockEdges {
		edges = append(edges, Edge{From: name(e.from), To: name(e.to), Weight: e.weight})
	}
	return edges
}

// Default returns the stock team matrix with a default weight of 0.
func Default() *Matrix {
	m, err := New(DefaultEdges(), 0.0)
	if err != nil {
		panic(err)
	}
	return m
}

// Weight returns the configured weight, or the default for unconfigured pairs.
func (m *Matrix) Weight(sender, recipient string) float64 {
	if w, ok := m.weights[pair{sender, recipient}]; ok {
		return w
	}
	return m.defaultWeight
}

// IsAllowed reports whether sender may address recipient.
func (m *Matrix) IsAllowed(sender, recipient string) bool {
	return m.Weight(sender, recipient) >= Threshold
}

// Decision explains one permission check.
type Decision struct {
	Allowed bool
	Weight  float64
	Reason  string
}

// Check returns the permission decision with a human-readable reason.
func (m *Matrix) Check(sender, recipient string) Decision {
	w, configured := m.weights[pair{sender, recipient}]
	if !configured {
		w = m.defaultWeight
	}
	d := Decision{Allowed: w >= Threshold, Weight: w}

	switch {
	case !configured && d.Allowed:
		d.Reason = fmt.Sprintf("no edge %s->%s; default weight %.1f allows", sender, recipient, w)
	case !configured:
		d.Reason = fmt.Sprintf("no edge %s->%s; default weight %.1f denies", sender, recipient, w)
	case d.Allowed:
		d.Reason = fmt.Sprintf("edge %s->%s weight %.1f >= %.1f", sender, recipient, w, Threshold)
	default:
		d.Reason = fmt.Sprintf("edge %s->%s weight %.1f < %.1f", sender, recipient, w, Threshold)
	}
	return d
}

// Edges returns the configured edges sorted by sender, then recipient.
func (m *Matrix) Edges() []Edge {
	out := make([]Edge, 0, len(m.weights))
	for p, w := range m.weights {
		out = append(out, Edge{From: p.from, To: p.to, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// DefaultWeight returns the weight applied to unconfigured pairs.
func (m *Matrix) DefaultWeight() float64 {
	return m.defaultWeight
}
