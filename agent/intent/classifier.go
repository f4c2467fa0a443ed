// Package intent routes free text through a language-understanding service.
package intent

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	logx "github.com/tanpawarit/clubhouse/pkg/logger"
)

const DefaultMinConfidence = 0.55

// Request is one free-text message to classify.
type Request struct {
	Text    string
	Channel contractx.ChannelContext
	Entity  contractx.EntityType
	// RecentMemory is shown to the understander as conversational context.
	RecentMemory []string
	// RecentRoles holds executor roles this sender used recently in the
	// session; it breaks confidence ties.
	RecentRoles map[string]bool
}

type Classifier struct {
	understander  contractx.Understander
	registry      *capabilityx.Registry
	minConfidence float64
	logger        zerolog.Logger
}

func NewClassifier(understander contractx.Understander, registry *capabilityx.Registry, minConfidence float64) *Classifier {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultMinConfidence
	}
	return &Classifier{
		understander:  understander,
		registry:      registry,
		minConfidence: minConfidence,
		logger:        logx.Component("intent"),
	}
}

// Classify always returns a decision. Errors from the understander and
// low-confidence results route to the clarify fallback.
func (c *Classifier) Classify(ctx context.Context, req Request) contractx.RoutingDecision {
	if req.Entity == contractx.EntityUnregistered {
		return c.fallback(capabilityx.OpRegistrationGuide, req.Text)
	}

	visible := c.registry.Visible(req.Entity)
	allowed := make(map[string]capabilityx.Capability, len(visible))
	views := make([]contractx.CapabilityView, 0, len(visible))
	for _, capability := range visible {
		allowed[capability.Operation] = capability
		views = append(views, capability.View())
	}

	if c.understander == nil || len(views) == 0 {
		return c.fallback(capabilityx.OpClarify, req.Text)
	}

	candidates, err := c.understander.Classify(ctx, contractx.ClassifyRequest{
		Text:         req.Text,
		Channel:      req.Channel,
		Entity:       req.Entity,
		Capabilities: views,
		RecentMemory: req.RecentMemory,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("tenant_id", req.Channel.TenantID).Msg("classification_failed")
		return c.fallback(capabilityx.OpClarify, req.Text)
	}

	ranked := rank(candidates, allowed, req.RecentRoles)
	if len(ranked) == 0 || !(ranked[0].Confidence >= c.minConfidence) {
		return c.fallback(capabilityx.OpClarify, req.Text)
	}

	best := ranked[0]
	capability := allowed[best.Operation]
	return contractx.RoutingDecision{
		Operation:    capability.Operation,
		ExecutorRole: capability.ExecutorRole,
		Arguments:    contractx.Arguments{Raw: req.Text},
		Source:       contractx.SourceClassified,
		Confidence:   best.Confidence,
	}
}

func (c *Classifier) fallback(operation, text string) contractx.RoutingDecision {
	role := ""
	if capability, err := c.registry.Lookup(operation); err == nil {
		role = capability.ExecutorRole
	}
	return contractx.RoutingDecision{
		Operation:    operation,
		ExecutorRole: role,
		Arguments:    contractx.Arguments{Raw: text},
		Source:       contractx.SourceClassified,
	}
}

type rankedCandidate struct {
	contractx.Candidate
	continuity bool
}

// rank drops candidates outside the visible set or without a finite
// confidence and orders the rest by confidence, then continuity with the
// sender's recent roles, then name.
func rank(candidates []contractx.Candidate, allowed map[string]capabilityx.Capability, recentRoles map[string]bool) []rankedCandidate {
	seen := make(map[string]int, len(candidates))
	out := make([]rankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		candidate.Operation = strings.TrimSpace(candidate.Operation)
		capability, ok := allowed[candidate.Operation]
		if !ok || math.IsNaN(candidate.Confidence) || math.IsInf(candidate.Confidence, 0) {
			continue
		}
		if idx, dup := seen[candidate.Operation]; dup {
			out[idx].Confidence = max(out[idx].Confidence, candidate.Confidence)
			continue
		}
		seen[candidate.Operation] = len(out)
		out = append(out, rankedCandidate{
			Candidate:  candidate,
			continuity: recentRoles[capability.ExecutorRole],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.continuity != b.continuity {
			return a.continuity
		}
		return a.Operation < b.Operation
	})
	return out
}
