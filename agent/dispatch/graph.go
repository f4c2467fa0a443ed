package dispatch

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	commandx "github.com/tanpawarit/clubhouse/agent/command"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	intentx "github.com/tanpawarit/clubhouse/agent/intent"
)

type routeInput struct {
	Text         string
	Channel      contractx.ChannelContext
	Entity       contractx.EntityType
	RecentMemory []string
	RecentRoles  map[string]bool
}

type routeState struct {
	In       routeInput
	Decision contractx.RoutingDecision
	Matched  bool
}

// compileRoutingGraph builds parse_command -> (accept_command | classify_intent) -> END.
// Exactly one of the two branches produces the decision.
func compileRoutingGraph(
	ctx context.Context,
	parser *commandx.Parser,
	classifier *intentx.Classifier,
) (compose.Runnable[routeInput, contractx.RoutingDecision], error) {
	graph := compose.NewGraph[routeInput, contractx.RoutingDecision]()

	if err := graph.AddLambdaNode("parse_command",
		compose.InvokableLambda(func(ctx context.Context, in routeInput) (*routeState, error) {
			decision, ok := parser.Parse(in.Text, in.Entity)
			return &routeState{In: in, Decision: decision, Matched: ok}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add routing parse node: %w", err)
	}

	if err := graph.AddLambdaNode("accept_command",
		compose.InvokableLambda(func(ctx context.Context, s *routeState) (contractx.RoutingDecision, error) {
			if s == nil {
				return contractx.RoutingDecision{}, fmt.Errorf("%w: routing state is nil", contractx.ErrValidation)
			}
			return s.Decision, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add routing command node: %w", err)
	}

	if err := graph.AddLambdaNode("classify_intent",
		compose.InvokableLambda(func(ctx context.Context, s *routeState) (contractx.RoutingDecision, error) {
			if s == nil {
				return contractx.RoutingDecision{}, fmt.Errorf("%w: routing state is nil", contractx.ErrValidation)
			}
			return classifier.Classify(ctx, intentx.Request{
				Text:         s.In.Text,
				Channel:      s.In.Channel,
				Entity:       s.In.Entity,
				RecentMemory: s.In.RecentMemory,
				RecentRoles:  s.In.RecentRoles,
			}), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add routing classify node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, s *routeState) (string, error) {
			if s == nil {
				return "", fmt.Errorf("%w: routing state is nil", contractx.ErrValidation)
			}
			if s.Matched {
				return "accept_command", nil
			}
			return "classify_intent", nil
		},
		map[string]bool{
			"accept_command":  true,
			"classify_intent": true,
		},
	)

	if err := graph.AddBranch("parse_command", branch); err != nil {
		return nil, fmt.Errorf("add routing branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "parse_command"); err != nil {
		return nil, fmt.Errorf("add routing edge start->parse: %w", err)
	}
	if err := graph.AddEdge("accept_command", compose.END); err != nil {
		return nil, fmt.Errorf("add routing edge command->end: %w", err)
	}
	if err := graph.AddEdge("classify_intent", compose.END); err != nil {
		return nil, fmt.Errorf("add routing edge classify->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("dispatch.routing_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile routing graph: %w", err)
	}
	return runner, nil
}
