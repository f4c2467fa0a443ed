// Package executor provides the handler-table executor the domain executors
// are built on.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

// Handler performs one operation. Problems the sender can fix are returned
// as reply text; errors are reserved for failures of the executor itself.
type Handler func(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error)

type Executor struct {
	role     string
	handlers map[string]Handler
}

func New(role string, handlers map[string]Handler) *Executor {
	copied := make(map[string]Handler, len(handlers))
	for op, h := range handlers {
		if h != nil {
			copied[op] = h
		}
	}
	return &Executor{role: role, handlers: copied}
}

func (e *Executor) Role() string {
	return e.role
}

func (e *Executor) Invoke(ctx context.Context, operation string, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	h, ok := e.handlers[operation]
	if !ok {
		return "", fmt.Errorf("%w: operation=%s unavailable for executor=%s", contractx.ErrNotFound, operation, e.role)
	}
	return h(ctx, args, ambient)
}

// Operations lists the operations this executor handles, sorted.
func (e *Executor) Operations() []string {
	ops := make([]string, 0, len(e.handlers))
	for op := range e.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Missing returns the names whose argument is empty.
func Missing(args contractx.Arguments, names ...string) []string {
	var missing []string
	for _, name := range names {
		if args.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// UsageReply tells the sender which arguments a command still needs.
func UsageReply(usage string, missing []string) string {
	return fmt.Sprintf("Missing %s. Usage: %s", strings.Join(missing, ", "), usage)
}
