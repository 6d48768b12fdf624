package agent

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_Create(t *testing.T) {
	reg, err := NewRegistry(nil, testLogger())
	require.NoError(t, err)

	tests := []struct {
		kind RoleKind
		name string
		role string
	}{
		{RoleResearcher, "Researcher", "Research Expert"},
		{RoleWriter, "Writer", "Technical Writer"},
		{RoleCritic, "Critic", "Critical Reviewer"},
		{RoleIntegrator, "Integrator", "Project Integrator"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			d, err := reg.Create(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.name, d.Name)
			assert.Equal(t, tt.role, d.Role)
			assert.NotEmpty(t, d.Goal)
			assert.NotEmpty(t, d.Backstory)
		})
	}

	t.Run("unknown role", func(t *testing.T) {
		_, err := reg.Create(RoleKind("manager"))
		assert.ErrorIs(t, err, ErrUnknownRole)
	})

	t.Run("returned descriptors are copies", func(t *testing.T) {
		d, err := reg.Create(RoleResearcher)
		require.NoError(t, err)
		d.Skills[0] = "mutated"

		again, err := reg.Create(RoleResearcher)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated", again.Skills[0])
	})
}

func TestNewRegistry_Overrides(t *testing.T) {
	t.Run("overrides selected fields", func(t *testing.T) {
		reg, err := NewRegistry(map[RoleKind]Override{
			RoleCritic: {Name: "Reviewer", Goal: "Find gaps"},
		}, testLogger())
		require.NoError(t, err)

		d, err := reg.Create(RoleCritic)
		require.NoError(t, err)
		assert.Equal(t, "Reviewer", d.Name)
		assert.Equal(t, "Find gaps", d.Goal)
		assert.Equal(t, "Critical Reviewer", d.Role)
	})

	t.Run("rejects unknown role override", func(t *testing.T) {
		_, err := NewRegistry(map[RoleKind]Override{"manager": {Name: "Boss"}}, testLogger())
		assert.ErrorIs(t, err, ErrUnknownRole)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := NewRegistry(map[RoleKind]Override{RoleCritic: {Name: "Writer"}}, testLogger())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "used by both")
	})
}

func TestParseRoleKind(t *testing.T) {
	k, err := ParseRoleKind("  Researcher ")
	require.NoError(t, err)
	assert.Equal(t, RoleResearcher, k)

	_, err = ParseRoleKind("janitor")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestTeam(t *testing.T) {
	reg, err := NewRegistry(nil, testLogger())
	require.NoError(t, err)

	team := Team{}
	for _, kind := range AllRoles {
		d, err := reg.Create(kind)
		require.NoError(t, err)
		team[kind] = d
	}

	assert.Equal(t, map[string]string{
		"researcher": "Researcher",
		"writer":     "Writer",
		"critic":     "Critic",
		"integrator": "Integrator",
	}, team.Roster())

	d, ok := team.Lookup("Critic")
	assert.True(t, ok)
	assert.Equal(t, RoleCritic, d.Kind)

	_, ok = team.Lookup("Nobody")
	assert.False(t, ok)

	assert.Equal(t, []string{"Researcher", "Writer", "Critic", "Integrator"}, Names(team.Members()))
}
