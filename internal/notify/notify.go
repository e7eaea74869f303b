// Package notify delivers ledger events to observers: WebSocket clients,
// a Redis pub/sub channel, or any number of them at once.
//
// Notifiers are invoked synchronously after a mutation has been committed
// and must not block; slow sinks buffer or drop.
package notify

import (
	"context"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// Notifier receives events for committed ledger mutations.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, ev model.Event)

func (f Func) Notify(ctx context.Context, ev model.Event) { f(ctx, ev) }

// Multi fans one event out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev model.Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, model.Event) {}
