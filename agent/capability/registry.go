// Package capability holds the static map from executor roles to the
// operations they expose. It is filled once at startup and frozen; routing
// decisions within a process are therefore reproducible.
package capability

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

// Reserved operations the dispatcher falls back to.
const (
	OpHelp              = "help.help"
	OpClarify           = "help.clarify"
	OpUnknownCommand    = "help.unknown_command"
	OpRegistrationGuide = "help.registration_guide"
)

var reservedOperations = []string{OpClarify, OpUnknownCommand, OpRegistrationGuide}

var (
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrAmbiguousAlias     = errors.New("ambiguous command alias")
	ErrRegistryFrozen     = errors.New("registry is frozen")
	ErrMissingReserved    = errors.New("reserved operation is not registered")
)

type Param struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

type Capability struct {
	Operation    string
	ExecutorRole string
	Description  string
	Params       []Param
	Aliases      []string
	Entities     []contractx.EntityType
	Internal     bool
}

// Allows reports whether entity may run this capability.
func (c Capability) Allows(entity contractx.EntityType) bool {
	return slices.Contains(c.Entities, entity)
}

// Usage renders the command form, e.g. `/addplayer <name> <phone>`.
func (c Capability) Usage(marker string) string {
	if len(c.Aliases) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(c.Aliases[0])
	for _, p := range c.Params {
		if p.Required {
			fmt.Fprintf(&b, " <%s>", p.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", p.Name)
		}
	}
	return b.String()
}

func (c Capability) View() contractx.CapabilityView {
	params := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		params = append(params, p.Name)
	}
	return contractx.CapabilityView{
		Operation:    c.Operation,
		ExecutorRole: c.ExecutorRole,
		Description:  c.Description,
		Params:       params,
	}
}

// Option adjusts a capability during Register.
type Option func(*Capability)

func WithAliases(aliases ...string) Option {
	return func(c *Capability) {
		for _, a := range aliases {
			if a = normalizeAlias(a); a != "" && !slices.Contains(c.Aliases, a) {
				c.Aliases = append(c.Aliases, a)
			}
		}
	}
}

func AllowedFor(entities ...contractx.EntityType) Option {
	return func(c *Capability) {
		for _, e := range entities {
			if !slices.Contains(c.Entities, e) {
				c.Entities = append(c.Entities, e)
			}
		}
	}
}

// Internal hides a capability from commands and from the classifier.
func Internal() Option {
	return func(c *Capability) {
		c.Internal = true
	}
}

type Registry struct {
	byOperation map[string]Capability
	byRole      map[string][]string
	byAlias     map[string][]string
	frozen      bool
}

func NewRegistry() *Registry {
	return &Registry{
		byOperation: make(map[string]Capability),
		byRole:      make(map[string][]string),
		byAlias:     make(map[string][]string),
	}
}

func (r *Registry) Register(role, operation string, params []Param, description string, opts ...Option) error {
	if r.frozen {
		return fmt.Errorf("%w: register %s", ErrRegistryFrozen, operation)
	}

	role = strings.TrimSpace(role)
	operation = strings.TrimSpace(operation)
	if role == "" || operation == "" {
		return fmt.Errorf("%w: executor role and operation are required", contractx.ErrValidation)
	}
	if existing, ok := r.byOperation[operation]; ok {
		return fmt.Errorf("%w: %s already registered by executor=%s", ErrDuplicateOperation, operation, existing.ExecutorRole)
	}

	c := Capability{
		Operation:    operation,
		ExecutorRole: role,
		Description:  strings.TrimSpace(description),
		Params:       slices.Clone(params),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if len(c.Entities) == 0 {
		return fmt.Errorf("%w: %s allows no entity type", contractx.ErrValidation, operation)
	}
	if c.Internal && len(c.Aliases) > 0 {
		return fmt.Errorf("%w: internal operation %s cannot have aliases", contractx.ErrValidation, operation)
	}

	for _, alias := range c.Aliases {
		for _, other := range r.byAlias[alias] {
			if overlaps(c.Entities, r.byOperation[other].Entities) {
				return fmt.Errorf("%w: /%s maps to %s and %s for the same entity type", ErrAmbiguousAlias, alias, other, operation)
			}
		}
	}

	r.byOperation[operation] = c
	r.byRole[role] = append(r.byRole[role], operation)
	for _, alias := range c.Aliases {
		r.byAlias[alias] = append(r.byAlias[alias], operation)
		sort.Strings(r.byAlias[alias])
	}
	return nil
}

// Freeze ends registration. It fails when a reserved fallback is missing.
func (r *Registry) Freeze() error {
	for _, op := range reservedOperations {
		if _, ok := r.byOperation[op]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingReserved, op)
		}
	}
	r.frozen = true
	return nil
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

func (r *Registry) Lookup(operation string) (Capability, error) {
	c, ok := r.byOperation[operation]
	if !ok {
		return Capability{}, fmt.Errorf("%w: operation %q", contractx.ErrNotFound, operation)
	}
	return c, nil
}

func (r *Registry) ListFor(role string) []Capability {
	ops := r.byRole[role]
	out := make([]Capability, 0, len(ops))
	for _, op := range ops {
		out = append(out, r.byOperation[op])
	}
	return out
}

// Roles returns every executor role, sorted.
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.byRole))
	for role := range r.byRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Visible returns the non-internal capabilities entity may run, sorted by operation.
func (r *Registry) Visible(entity contractx.EntityType) []Capability {
	out := make([]Capability, 0, len(r.byOperation))
	for _, c := range r.byOperation {
		if c.Internal || !c.Allows(entity) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// ResolveAlias finds the capability behind a command alias. When several
// operations share it, the one allowed for entity wins; if none is allowed
// the lexicographically first is returned so the permission check can deny it.
func (r *Registry) ResolveAlias(alias string, entity contractx.EntityType) (Capability, bool) {
	ops := r.byAlias[normalizeAlias(alias)]
	if len(ops) == 0 {
		return Capability{}, false
	}
	for _, op := range ops {
		if c := r.byOperation[op]; c.Allows(entity) {
			return c, true
		}
	}
	return r.byOperation[ops[0]], true
}

// Aliases returns every command alias, sorted.
func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.byAlias))
	for alias := range r.byAlias {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

func normalizeAlias(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}

func overlaps(a, b []contractx.EntityType) bool {
	for _, e := range a {
		if slices.Contains(b, e) {
			return true
		}
	}
	return false
}
