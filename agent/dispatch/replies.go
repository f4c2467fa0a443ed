package dispatch

import (
	"slices"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

const (
	failedReply  = "Sorry, something went wrong while handling that. Please try again."
	timeoutReply = "Still working on that, but it is taking too long. Please try again in a moment."
)

func (d *Dispatcher) deniedReply(operation string, entity contractx.EntityType) string {
	if entity == contractx.EntityUnregistered {
		return "You need to join the team before you can do that. Send " + d.cfg.CommandMarker + "register <your name> to ask."
	}
	capability, err := d.registry.Lookup(operation)
	if err == nil && slices.Contains(capability.Entities, contractx.EntityAdmin) {
		return "Sorry, only team leadership can do that. Please ask in the leadership chat."
	}
	return "Sorry, you can't do that here."
}
