package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/registry"
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
)

func TestRegisterThenGetReturnsTheAgent(t *testing.T) {
	r := registry.New()
	r.Register(registry.Agent{Name: "Dev", Team: "eng"})

	a, err := r.Get("Dev")
	require.NoError(t, err)
	assert.Equal(t, "eng", a.Team)
}

func TestGetUnknownAgentReturnsNotFound(t *testing.T) {
	r := registry.New()
	_, err := r.Get("Ghost")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListReturnsEveryAgentSortedByName(t *testing.T) {
	r := registry.New()
	r.Register(registry.Agent{Name: "Zeta", Team: "eng"})
	r.Register(registry.Agent{Name: "Alpha", Team: "eng"})

	names := []string{}
	for _, a := range r.List() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"Alpha", "Zeta"}, names)
}

func TestListTeamFiltersByTeam(t *testing.T) {
	r := registry.New()
	r.Register(registry.Agent{Name: "Dev", Team: "eng"})
	r.Register(registry.Agent{Name: "Sales", Team: "gtm"})

	eng := r.ListTeam("eng")
	require.Len(t, eng, 1)
	assert.Equal(t, "Dev", eng[0].Name)
}

func TestAllowsPermitsEverythingOnAnEmptyRoster(t *testing.T) {
	r := registry.New()
	assert.True(t, r.Allows("Anyone"))

	r.Register(registry.Agent{Name: "Dev", Team: "eng"})
	assert.True(t, r.Allows("Dev"))
	assert.False(t, r.Allows("Anyone"))
}

func TestResetDefaultClearsTheProcessWideRoster(t *testing.T) {
	registry.Default().Register(registry.Agent{Name: "Dev", Team: "eng"})
	registry.ResetDefault()

	_, err := registry.Default().Get("Dev")
	assert.Error(t, err)
}
