package dialect

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the profiles available to new sessions: the builtin table,
// optionally extended or overridden by a profiles file. Running sessions keep
// the profile they started with.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewRegistry returns a registry holding the builtin profiles.
func NewRegistry() *Registry {
	r := &Registry{}
	r.profiles = withBuiltins(nil)
	return r
}

func withBuiltins(extra []*Profile) map[string]*Profile {
	m := make(map[string]*Profile)
	for _, p := range Builtin() {
		m[p.Name] = p
	}
	for _, p := range extra {
		m[p.Name] = p
	}
	return m
}

// Lookup returns the named profile.
func (r *Registry) Lookup(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, name)
	}
	return p, nil
}

// List returns all profiles sorted by name.
func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// LoadFile replaces the file-defined profiles with the contents of path. On
// error the registry is left unchanged.
func (r *Registry) LoadFile(path string) error {
	extra, err := LoadFile(path)
	if err != nil {
		return err
	}
	profiles := withBuiltins(extra)

	r.mu.Lock()
	r.profiles = profiles
	r.mu.Unlock()
	return nil
}
