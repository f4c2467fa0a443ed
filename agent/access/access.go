// Package access decides who a sender is for one message and what they may run.
package access

import (
	"fmt"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

// ResolveEntity derives the entity type from where the message arrived and
// the sender's registration status. Message text never takes part.
func ResolveEntity(kind contractx.ChannelKind, status contractx.RegistrationStatus) contractx.EntityType {
	if status == contractx.Unregistered || status == "" {
		return contractx.EntityUnregistered
	}
	if kind == contractx.ChannelLeadership {
		return contractx.EntityAdmin
	}
	return contractx.EntityMember
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func Denied(reason string) Decision {
	return Decision{Reason: reason}
}

type Validator struct {
	registry *capabilityx.Registry
}

func NewValidator(registry *capabilityx.Registry) *Validator {
	return &Validator{registry: registry}
}

// Check allows operation only when its capability lists entity. Unknown
// operations are denied.
func (v *Validator) Check(operation string, entity contractx.EntityType) Decision {
	c, err := v.registry.Lookup(operation)
	if err != nil {
		return Denied(fmt.Sprintf("operation %q is not available", operation))
	}
	if !c.Allows(entity) {
		return Denied(fmt.Sprintf("%s is not permitted for %s", operation, entity))
	}
	return Decision{Allowed: true}
}
