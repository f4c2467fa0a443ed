package contract

import "context"

// Understander is the language-understanding collaborator.
type Understander interface {
	Classify(ctx context.Context, req ClassifyRequest) ([]Candidate, error)
}

// RegistrationStore is the only read the routing core makes on persisted domain data.
type RegistrationStore interface {
	RegistrationStatus(ctx context.Context, tenantID, identity string) (RegistrationStatus, error)
}

// Executor performs the operations of one executor role.
type Executor interface {
	Role() string
	Invoke(ctx context.Context, operation string, args Arguments, ambient Ambient) (string, error)
}

type Outbound interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
