package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Capability defines the interface for all external operations the
// workflow can invoke: search, text generation, file writes, database
// writes. The orchestrator only ever sees this contract.
type Capability interface {
	Name() string
	Description() string
	Descriptor() Descriptor
	Invoke(ctx context.Context, params map[string]any) (Result, error)
}

// Descriptor carries the static metadata the executor needs to drive a
// capability: the invocation timeout, whether re-invocation after a
// failure is safe, and the ordered list of alternates to try once the
// capability's own retries are exhausted.
type Descriptor struct {
	Timeout    time.Duration
	Idempotent bool
	Fallbacks  []string
}

// Result is the outcome of a successful invocation.
type Result struct {
	Output  string         `json:"output"`
	Meta    map[string]any `json:"meta,omitempty"`
	Elapsed time.Duration  `json:"elapsed_ns,omitempty"`
}

// Registry manages the set of available capabilities.
type Registry struct {
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[string]Capability),
	}
}

func (r *Registry) Register(c Capability) {
	r.caps[c.Name()] = c
}

func (r *Registry) Get(name string) Capability {
	return r.caps[name]
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams round-trips the parameter map through JSON into a typed
// argument struct, so each capability declares its inputs the same way.
func decodeParams(params map[string]any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("invalid params: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid params: %v", err)
	}
	return nil
}
