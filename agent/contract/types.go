package contract

import (
	"fmt"
	"strings"
	"time"
)

type ChannelKind string

const (
	ChannelPrimary    ChannelKind = "primary"
	ChannelLeadership ChannelKind = "leadership"
	ChannelDirect     ChannelKind = "direct"
)

func ParseChannelKind(s string) (ChannelKind, error) {
	switch k := ChannelKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ChannelPrimary, ChannelLeadership, ChannelDirect:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown channel kind %q", ErrValidation, s)
	}
}

type RegistrationStatus string

const (
	Unregistered RegistrationStatus = "unregistered"
	Pending      RegistrationStatus = "pending"
	Active       RegistrationStatus = "active"
)

type EntityType string

const (
	EntityMember       EntityType = "MEMBER"
	EntityAdmin        EntityType = "ADMIN"
	EntityUnregistered EntityType = "UNREGISTERED"
)

// AllEntities lists every entity type in display order.
var AllEntities = []EntityType{EntityAdmin, EntityMember, EntityUnregistered}

func ParseEntityType(s string) (EntityType, error) {
	switch e := EntityType(strings.ToUpper(strings.TrimSpace(s))); e {
	case EntityMember, EntityAdmin, EntityUnregistered:
		return e, nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", ErrValidation, s)
	}
}

type ChannelContext struct {
	TenantID string      `json:"tenant_id"`
	Kind     ChannelKind `json:"channel_kind"`
}

type Sender struct {
	TenantID    string             `json:"tenant_id"`
	Identity    string             `json:"external_identity"`
	DisplayName string             `json:"display_name"`
	Status      RegistrationStatus `json:"registration_status"`
}

// InboundMessage is what a channel adapter hands to the dispatcher.
type InboundMessage struct {
	TenantID          string `json:"tenant_id"`
	ChannelKind       string `json:"channel_kind"`
	SenderIdentity    string `json:"sender_identity"`
	SenderDisplayName string `json:"sender_display_name"`
	RawText           string `json:"raw_text"`
}

type DecisionSource string

const (
	SourceCommand    DecisionSource = "command"
	SourceClassified DecisionSource = "classified"
)

// Arguments carry only what the current message said.
type Arguments struct {
	Positional []string          `json:"positional,omitempty"`
	Named      map[string]string `json:"named,omitempty"`
	Raw        string            `json:"raw"`
}

// Get returns a named argument, trimmed.
func (a Arguments) Get(name string) string {
	if a.Named == nil {
		return ""
	}
	return strings.TrimSpace(a.Named[name])
}

type RoutingDecision struct {
	Operation    string         `json:"operation_name"`
	ExecutorRole string         `json:"executor_role"`
	Arguments    Arguments      `json:"arguments"`
	Source       DecisionSource `json:"source"`
	Confidence   float64        `json:"confidence"`
}

// Ambient is the per-task context passed to executors next to the arguments.
type Ambient struct {
	TaskID  string         `json:"task_id"`
	Tenant  string         `json:"tenant_id"`
	Sender  Sender         `json:"sender"`
	Channel ChannelContext `json:"channel"`
	Entity  EntityType     `json:"entity_type"`
}

type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusDenied  ResultStatus = "denied"
	StatusError   ResultStatus = "error"
	StatusTimeout ResultStatus = "timeout"
)

type ExecutionResult struct {
	TaskID    string       `json:"task_id"`
	Status    ResultStatus `json:"status"`
	ReplyText string       `json:"reply_text"`
}

// OutboundMessage is what the outbound adapter delivers.
type OutboundMessage struct {
	TenantID    string       `json:"tenant_id"`
	ChannelKind ChannelKind  `json:"channel_kind"`
	TaskID      string       `json:"task_id"`
	Status      ResultStatus `json:"status"`
	ReplyText   string       `json:"reply_text"`
	SentAt      time.Time    `json:"sent_at"`
}

// Candidate is one ranked guess from a language-understanding service.
type Candidate struct {
	Operation  string  `json:"operation"`
	Confidence float64 `json:"confidence"`
}

// CapabilityView is the slice of a capability shown to a language model.
type CapabilityView struct {
	Operation    string   `json:"operation"`
	ExecutorRole string   `json:"executor_role"`
	Description  string   `json:"description"`
	Params       []string `json:"params,omitempty"`
}

type ClassifyRequest struct {
	Text         string           `json:"text"`
	Channel      ChannelContext   `json:"channel"`
	Entity       EntityType       `json:"entity_type"`
	Capabilities []CapabilityView `json:"capabilities"`
	RecentMemory []string         `json:"recent_memory,omitempty"`
}
