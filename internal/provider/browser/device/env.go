package device

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// Env is the shared process environment passed from the devices to the
// browser. Safe for concurrent use.
type Env struct {
	mu     sync.Mutex
	values map[string]string
}

// NewEnv copies the current process environment.
func NewEnv() *Env {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}
	return &Env{values: values}
}

// Set stores a variable.
func (e *Env) Set(key, value string) {
	e.mu.Lock()
	e.values[key] = value
	e.mu.Unlock()
}

// Unset removes a variable.
func (e *Env) Unset(key string) {
	e.mu.Lock()
	delete(e.values, key)
	e.mu.Unlock()
}

// Get returns a variable, or "".
func (e *Env) Get(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values[key]
}

// List renders the environment in the form exec.Cmd expects, sorted for
// deterministic output.
func (e *Env) List() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.values))
	for k, v := range e.values {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
