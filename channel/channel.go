// Package channel defines the surface between transport adapters (Telegram,
// Twilio, HTTP) and the dialogue engine. Adapters normalize inbound messages
// into types.Event, hand them to a Handler, and render the Reply in whatever
// shape their channel needs.
package channel

import (
	"context"

	"github.com/tbxark/onboardagent/types"
)

// Handler is what every adapter drives. The dialogue engine implements it.
type Handler interface {
	Handle(ctx context.Context, ev types.Event) (types.Reply, error)
}

// Adapter is a long-running transport binding.
type Adapter interface {
	Name() string
	// Run blocks until ctx is cancelled or the transport fails.
	Run(ctx context.Context) error
}
