// Package help answers help requests and the routing fallbacks.
package help

import (
	"context"
	"fmt"
	"strings"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	executorx "github.com/tanpawarit/clubhouse/agent/executor"
)

const Role = "help"

type help struct {
	registry *capabilityx.Registry
	marker   string
}

func New(registry *capabilityx.Registry, marker string) *executorx.Executor {
	h := &help{registry: registry, marker: marker}
	return executorx.New(Role, map[string]executorx.Handler{
		capabilityx.OpHelp:              h.help,
		capabilityx.OpClarify:           h.clarify,
		capabilityx.OpUnknownCommand:    h.unknownCommand,
		capabilityx.OpRegistrationGuide: h.registrationGuide,
	})
}

func (h *help) help(_ context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	var b strings.Builder
	b.WriteString("Commands you can use here:")
	for _, c := range h.registry.Visible(ambient.Entity) {
		if usage := c.Usage(h.marker); usage != "" {
			fmt.Fprintf(&b, "\n%s - %s", usage, c.Description)
		}
	}
	if ambient.Entity != contractx.EntityUnregistered {
		b.WriteString("\nYou can also just ask in plain words.")
	}
	return b.String(), nil
}

func (h *help) clarify(_ context.Context, _ contractx.Arguments, _ contractx.Ambient) (string, error) {
	return fmt.Sprintf("Sorry, I'm not sure what you need. Could you rephrase, or send %shelp to see what I can do?", h.marker), nil
}

func (h *help) unknownCommand(_ context.Context, args contractx.Arguments, _ contractx.Ambient) (string, error) {
	reply := fmt.Sprintf("I don't know the command %s%s.", h.marker, args.Get("command"))
	if suggestions := strings.Fields(args.Get("suggestions")); len(suggestions) > 0 {
		for i, s := range suggestions {
			suggestions[i] = h.marker + s
		}
		return fmt.Sprintf("%s Did you mean %s?", reply, strings.Join(suggestions, " or ")), nil
	}
	return fmt.Sprintf("%s Send %shelp to see what you can use.", reply, h.marker), nil
}

func (h *help) registrationGuide(_ context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	greeting := "Hi!"
	if name := strings.TrimSpace(ambient.Sender.DisplayName); name != "" {
		greeting = fmt.Sprintf("Hi %s!", name)
	}
	return fmt.Sprintf("%s You're not registered with this team yet. Send %sregister <your name> to ask to join, and team leadership will approve you.", greeting, h.marker), nil
}
