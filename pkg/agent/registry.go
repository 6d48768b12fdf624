package agent

import (
	"fmt"
	"log/slog"
)

// defaults holds the fixed per-role descriptors.
var defaults = map[RoleKind]Descriptor{
	RoleResearcher: {
		Kind:               RoleResearcher,
		Name:               "Researcher",
		Role:               "Research Expert",
		Goal:               "Research the latest AI technologies",
		Backstory:          "You are an AI research expert with deep knowledge of modern AI systems",
		Skills:             []string{"literature review", "technology assessment"},
		KnowledgeAreas:     []string{"workflow orchestration", "machine learning systems"},
		CommunicationStyle: "precise",
	},
	RoleWriter: {
		Kind:               RoleWriter,
		Name:               "Writer",
		Role:               "Technical Writer",
		Goal:               "Communicate complex AI concepts clearly",
		Backstory:          "You specialize in technical writing with a focus on making complex topics accessible",
		Skills:             []string{"report structure", "editing"},
		KnowledgeAreas:     []string{"technical communication"},
		CommunicationStyle: "accessible",
	},
	RoleCritic: {
		Kind:               RoleCritic,
		Name:               "Critic",
		Role:               "Critical Reviewer",
		Goal:               "Identify weaknesses and gaps before work is finalised",
		Backstory:          "You are a seasoned reviewer who challenges assumptions and insists on evidence",
		Skills:             []string{"critical analysis", "risk identification"},
		KnowledgeAreas:     []string{"technical review", "project planning"},
		CommunicationStyle: "direct",
	},
	RoleIntegrator: {
		Kind:               RoleIntegrator,
		Name:               "Integrator",
		Role:               "Project Integrator",
		Goal:               "Coordinate the team and merge contributions into one result",
		Backstory:          "You coordinate cross-functional teams and keep work aligned with the plan",
		Skills:             []string{"coordination", "planning"},
		KnowledgeAreas:     []string{"project management"},
		CommunicationStyle: "collaborative",
	},
}

// DefaultNames returns the stock agent name of each role.
func DefaultNames() map[RoleKind]string {
	out := make(map[RoleKind]string, len(defaults))
	for kind, d := range defaults {
		out[kind] = d.Name
	}
	return out
}

// Override replaces selected fields of a role's default descriptor.
// Empty fields keep the default.
type Override struct {
	Name               string
	Role               string
	Goal               string
	Backstory          string
	Skills             []string
	KnowledgeAreas     []string
	CommunicationStyle string
}

// Registry creates agent descriptors.
type Registry struct {
	descriptors map[RoleKind]Descriptor
	logger      *slog.Logger
}

// NewRegistry builds a registry from the role defaults overlaid with overrides.
// Returns an error for overrides on unknown roles or overrides that produce
// duplicate agent names.
func NewRegistry(overrides map[RoleKind]Override, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	descriptors := make(map[RoleKind]Descriptor, len(defaults))
	for kind, d := range defaults {
		descriptors[kind] = d.clone()
	}

	for kind, o := range overrides {
		if err := kind.Validate(); err != nil {
			return nil, err
		}
		descriptors[kind] = apply(descriptors[kind], o)
	}

	seen := make(map[string]RoleKind, len(descriptors))
	for _, kind := range AllRoles {
		d := descriptors[kind]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if other, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("agent name %q used by both %s and %s", d.Name, other, kind)
		}
		seen[d.Name] = kind
	}

	return &Registry{
		descriptors: descriptors,
		logger:      logger.With("component", "agent_registry"),
	}, nil
}

func apply(d Descriptor, o Override) Descriptor {
	if o.Name != "" {
		d.Name = o.Name
	}
	if o.Role != "" {
		d.Role = o.Role
	}
	if o.Goal != "" {
		d.Goal = o.Goal
	}
	if o.Backstory != "" {
		d.Backstory = o.Backstory
	}
	if len(o.Skills) > 0 {
		d.Skills = append([]string(nil), o.Skills...)
	}
	if len(o.KnowledgeAreas) > 0 {
		d.KnowledgeAreas = append([]string(nil), o.KnowledgeAreas...)
	}
	if o.CommunicationStyle != "" {
		d.CommunicationStyle = o.CommunicationStyle
	}
	return d
}

// Create returns the descriptor for kind. The only failure is ErrUnknownRole.
func (r *Registry) Create(kind RoleKind) (Descriptor, error) {
	d, ok := r.descriptors[kind]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownRole, string(kind))
	}
	r.logger.Info("agent created", "kind", string(kind), "name", d.Name, "role", d.Role)
	return d.clone(), nil
}

// Names returns the configured agent name of each role.
func (r *Registry) Names() map[RoleKind]string {
	out := make(map[RoleKind]string, len(r.descriptors))
	for kind, d := range r.descriptors {
		out[kind] = d.Name
	}
	return out
}

// Team is the roster of one run, keyed by role kind.
type Team map[RoleKind]Descriptor

// Roster returns role -> display name for the result record.
func (t Team) Roster() map[string]string {
	out := make(map[string]string, len(t))
	for kind, d := range t {
		out[string(kind)] = d.Name
	}
	return out
}

// Lookup finds an agent by name. A miss is not an error.
func (t Team) Lookup(name string) (Descriptor, bool) {
	for _, d := range t {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Members returns the team's descriptors in role setup order.
func (t Team) Members() []Descriptor {
	out := make([]Descriptor, 0, len(t))
	for _, kind := range AllRoles {
		if d, ok := t[kind]; ok {
			out = append(out, d)
		}
	}
	return out
}
