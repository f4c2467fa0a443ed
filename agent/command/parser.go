// Package command turns marker-prefixed messages into routing decisions
// without consulting any model.
package command

import (
	"regexp"
	"strings"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

const DefaultMarker = "/"

var commandToken = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

type Parser struct {
	registry *capabilityx.Registry
	marker   string
}

func NewParser(registry *capabilityx.Registry, marker string) *Parser {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultMarker
	}
	return &Parser{registry: registry, marker: marker}
}

func (p *Parser) Marker() string {
	return p.marker
}

// Parse returns a command-sourced decision, or false when text should fall
// through to classification. A marker followed by a command-shaped token
// that matches no alias routes to the unknown-command fallback.
func (p *Parser) Parse(text string, entity contractx.EntityType) (contractx.RoutingDecision, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, p.marker) {
		return contractx.RoutingDecision{}, false
	}

	body := strings.TrimPrefix(trimmed, p.marker)
	token, remainder := splitToken(body)
	token = strings.ToLower(token)
	// `/list@clubbot` style mentions address the bot explicitly.
	if at := strings.IndexByte(token, '@'); at > 0 {
		token = token[:at]
	}
	if !commandToken.MatchString(token) {
		return contractx.RoutingDecision{}, false
	}

	c, ok := p.registry.ResolveAlias(token, entity)
	if !ok {
		return p.unknown(token, trimmed, entity), true
	}

	return contractx.RoutingDecision{
		Operation:    c.Operation,
		ExecutorRole: c.ExecutorRole,
		Arguments:    bindArguments(c.Params, Tokenize(remainder), remainder),
		Source:       contractx.SourceCommand,
		Confidence:   1,
	}, true
}

func (p *Parser) unknown(token, raw string, entity contractx.EntityType) contractx.RoutingDecision {
	var visible []string
	for _, alias := range p.registry.Aliases() {
		if c, ok := p.registry.ResolveAlias(alias, entity); ok && c.Allows(entity) {
			visible = append(visible, alias)
		}
	}
	suggestions := suggest(token, visible)

	role := ""
	if c, err := p.registry.Lookup(capabilityx.OpUnknownCommand); err == nil {
		role = c.ExecutorRole
	}
	return contractx.RoutingDecision{
		Operation:    capabilityx.OpUnknownCommand,
		ExecutorRole: role,
		Arguments: contractx.Arguments{
			Positional: append([]string{token}, suggestions...),
			Named: map[string]string{
				"command":     token,
				"suggestions": strings.Join(suggestions, " "),
			},
			Raw: raw,
		},
		Source:     contractx.SourceCommand,
		Confidence: 1,
	}
}

func splitToken(body string) (string, string) {
	idx := strings.IndexFunc(body, isSpace)
	if idx < 0 {
		return body, ""
	}
	return body[:idx], strings.TrimSpace(body[idx:])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// bindArguments maps key=value tokens onto declared parameters and fills the
// remaining parameters from positional tokens in order. Surplus positional
// tokens are folded into the last string parameter so unquoted names work.
func bindArguments(params []capabilityx.Param, tokens []string, raw string) contractx.Arguments {
	args := contractx.Arguments{Raw: raw, Named: map[string]string{}}

	declared := make(map[string]bool, len(params))
	for _, param := range params {
		declared[param.Name] = true
	}

	var positional []string
	for _, tok := range tokens {
		if key, value, ok := strings.Cut(tok, "="); ok && declared[strings.ToLower(key)] {
			args.Named[strings.ToLower(key)] = value
			continue
		}
		positional = append(positional, tok)
	}
	args.Positional = positional

	var free []capabilityx.Param
	for _, param := range params {
		if _, ok := args.Named[param.Name]; !ok {
			free = append(free, param)
		}
	}
	for i, param := range free {
		if i >= len(positional) {
			break
		}
		value := positional[i]
		if i == len(free)-1 && len(positional) > len(free) && param.Type == "string" {
			value = strings.Join(positional[i:], " ")
		}
		args.Named[param.Name] = value
	}

	if len(args.Named) == 0 {
		args.Named = nil
	}
	if len(args.Positional) == 0 {
		args.Positional = nil
	}
	return args
}
