// Package registry tracks the agent roster backing the gateway's /agents
// endpoint: which agent names exist and which team each belongs to.
// Path-ownership resolution and window-person escalation contacts, present
// in the system this was ported from, are out of scope here.
package registry

import (
	"sort"
	"sync"

	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
)

// Agent is one registered roster entry.
type Agent struct {
	Name             string   `json:"name"`
	Team             string   `json:"team"`
	Responsibilities []string `json:"responsibilities,omitempty"`
}

// Registry is a concurrency-safe in-memory agent roster.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds or replaces the roster entry for agent.Name.
func (r *Registry) Register(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.Name] = agent
}

// Get returns the roster entry for name, or a NotFound error.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return Agent{}, pkgerrors.NotFound("unknown agent: "+name, nil)
	}
	return a, nil
}

// Allows reports whether name may be routed to. An empty roster means no
// roster was configured, and every agent name is allowed.
func (r *Registry) Allows(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.agents) == 0 {
		return true
	}
	_, ok := r.agents[name]
	return ok
}

// List returns every registered agent, ordered by name.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListTeam returns every agent belonging to team, ordered by name.
func (r *Registry) ListTeam(team string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Agent
	for _, a := range r.agents {
		if a.Team == team {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide Registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = New()
	}
	return defaultRegistry
}

// ResetDefault discards the process-wide Registry. Tests use this to start
// from a clean roster without affecting other packages' singletons.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = New()
}
