// Package agent defines agent descriptors and the registry that creates them.
// Agents are referenced by name everywhere else: descriptors cross process and
// activity boundaries as plain values, never as pointers.
package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned for any role kind the registry does not know.
var ErrUnknownRole = errors.New("unknown role")

// RoleKind identifies one of the team roles.
type RoleKind string

const (
	RoleResearcher RoleKind = "researcher"
	RoleWriter     RoleKind = "writer"
	RoleCritic     RoleKind = "critic"
	RoleIntegrator RoleKind = "integrator"
)

// AllRoles lists the team roles in setup order.
var AllRoles = []RoleKind{RoleResearcher, RoleWriter, RoleCritic, RoleIntegrator}

// Validate checks that the role kind is defined.
func (k RoleKind) Validate() error {
	switch k {
	case RoleResearcher, RoleWriter, RoleCritic, RoleIntegrator:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, string(k))
	}
}

// ParseRoleKind parses a role kind case-insensitively.
func ParseRoleKind(s string) (RoleKind, error) {
	k := RoleKind(strings.ToLower(strings.TrimSpace(s)))
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// Descriptor is the canonical, immutable description of one agent.
type Descriptor struct {
	Kind               RoleKind `json:"kind"`
	Name               string   `json:"name"`      // Unique within a run
	Role               string   `json:"role"`      // Display title, e.g. "Research Expert"
	Goal               string   `json:"goal"`
	Backstory          string   `json:"backstory"`
	Skills             []string `json:"skills,omitempty"`
	KnowledgeAreas     []string `json:"knowledge_areas,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
}

// Validate checks the fields every consumer relies on.
func (d Descriptor) Validate() error {
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	if d.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if d.Role == "" {
		return fmt.Errorf("agent %s: role cannot be empty", d.Name)
	}
	return nil
}

// clone returns a copy that shares no slices with d.
func (d Descriptor) clone() Descriptor {
	d.Skills = append([]string(nil), d.Skills...)
	d.KnowledgeAreas = append([]string(nil), d.KnowledgeAreas...)
	return d
}

// Names returns the agent names in order.
func Names(agents []Descriptor) []string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	return names
}
