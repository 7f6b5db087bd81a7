package events

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledEmitterIsSafe(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil, "shopfront.events", 8, slog.Default())
	assert.False(t, e.Enabled())

	// all of these must be no-ops, not panics
	e.Start(context.Background())
	e.Emit(Event{Type: TypeOrderPlaced, OrderID: 1})
	e.Close()
	e.WaitClosed()
}

func TestNilEmitterIsSafe(t *testing.T) {
	t.Parallel()

	var e *Emitter
	assert.False(t, e.Enabled())
	e.Emit(Event{Type: TypeOrderStatusChanged})
}
