package tools

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "tools")

// Registry holds the tools available to the agent.
// It is safe for concurrent use: reads are expected on every request,
// mutations at startup and on remote catalog refresh.
type Registry struct {
	lock    sync.RWMutex
	locals  []*Descriptor
	remotes []*Descriptor
	byName  map[string]*Descriptor
}

// NewRegistry returns a Registry with the local tools registered.
func NewRegistry(locals ...*Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Descriptor),
	}
	for _, d := range locals {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds the tool.
// It returns DuplicateToolError if the name is already registered.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return errors.Wrap(ErrConfiguration, "nil tool descriptor")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if existing, ok := r.byName[d.Name]; ok {
		return &DuplicateToolError{Name: d.Name, Origin: d.Origin, Existing: existing.Origin}
	}
	r.byName[d.Name] = d
	if d.Origin == OriginRemote {
		r.remotes = append(r.remotes, d)
	} else {
		r.locals = append(r.locals, d)
	}

	logger.KV(xlog.DEBUG, "status", "registered", "tool", d.Name, "origin", d.Origin)
	return nil
}

// SetRemote replaces all remote tools with the list.
// The replacement is atomic: on DuplicateToolError the Registry is unchanged.
func (r *Registry) SetRemote(list []*Descriptor) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	byName := make(map[string]*Descriptor, len(r.locals)+len(list))
	for _, d := range r.locals {
		byName[d.Name] = d
	}
	for _, d := range list {
		if err := d.Validate(); err != nil {
			return err
		}
		if d.Origin != OriginRemote {
			return errors.Wrapf(ErrConfiguration, "tool %q is not remote", d.Name)
		}
		if existing, ok := byName[d.Name]; ok {
			return &DuplicateToolError{Name: d.Name, Origin: d.Origin, Existing: existing.Origin}
		}
		byName[d.Name] = d
	}

	r.byName = byName
	r.remotes = slices.Clone(list)
	return nil
}

// Resolve returns the tool by name, or UnknownToolError.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if d, ok := r.byName[name]; ok {
		return d, nil
	}
	return nil, &UnknownToolError{Name: name, Available: r.names()}
}

// List returns the tools: locals in registration order followed by remotes in discovery order.
func (r *Registry) List() []*Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*Descriptor, 0, len(r.locals)+len(r.remotes))
	list = append(list, r.locals...)
	list = append(list, r.remotes...)
	return list
}

// Names returns the tool names in List order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.locals)+len(r.remotes))
	for _, d := range r.locals {
		names = append(names, d.Name)
	}
	for _, d := range r.remotes {
		names = append(names, d.Name)
	}
	return names
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.byName)
}

// Catalog returns the tool definitions sent to the model, in List order.
func (r *Registry) Catalog() []llms.Tool {
	list := r.List()
	catalog := make([]llms.Tool, 0, len(list))
	for _, d := range list {
		catalog = append(catalog, d.Definition())
	}
	return catalog
}
