// Package cqrs implements the CQRS Bus (C9): explicit command and query
// registries keyed by message type, dispatched synchronously from the
// caller's perspective. Registration happens once at startup:
// RegisterCommand/RegisterQuery panic when the same message type is
// registered twice, and Dispatch/Query surface InternalError rather than a
// nil-pointer panic if a message type was simply never wired up.
package cqrs

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/telemetry"
)

// CommandHandler executes a command and optionally returns a value.
type CommandHandler func(ctx context.Context, cmd any) (any, error)

// QueryHandler executes a query and returns a value.
type QueryHandler func(ctx context.Context, q any) (any, error)

// Bus holds the command/query handler registries.
type Bus struct {
	commands map[reflect.Type]CommandHandler
	queries  map[reflect.Type]QueryHandler
	metrics  *telemetry.BusMetrics
}

// New creates an empty Bus with no metrics recording.
func New() *Bus {
	return &Bus{
		commands: make(map[reflect.Type]CommandHandler),
		queries:  make(map[reflect.Type]QueryHandler),
	}
}

// WithMetrics attaches metrics to an existing Bus and returns it, so
// dispatch and query calls record instrument observations.
func (b *Bus) WithMetrics(metrics *telemetry.BusMetrics) *Bus {
	b.metrics = metrics
	return b
}

// RegisterCommand binds handler to the concrete type of sample. Panics on
// double-registration of the same type — a startup wiring bug, not a
// runtime condition callers should handle.
func (b *Bus) RegisterCommand(sample any, handler CommandHandler) {
	t := reflect.TypeOf(sample)
	if _, exists := b.commands[t]; exists {
		panic(fmt.Sprintf("cqrs: command handler already registered for %s", t))
	}
	b.commands[t] = handler
}

// RegisterQuery binds handler to the concrete type of sample. Panics on
// double-registration.
func (b *Bus) RegisterQuery(sample any, handler QueryHandler) {
	t := reflect.TypeOf(sample)
	if _, exists := b.queries[t]; exists {
		panic(fmt.Sprintf("cqrs: query handler already registered for %s", t))
	}
	b.queries[t] = handler
}

// Dispatch routes cmd to its registered command handler. A missing handler
// surfaces as apperr.Internal rather than panicking.
func (b *Bus) Dispatch(ctx context.Context, cmd any) (any, error) {
	t := reflect.TypeOf(cmd)
	start := time.Now()

	handler, ok := b.commands[t]
	if !ok {
		err := apperr.Internal("no command handler registered for %T", cmd)
		b.record(ctx, "command", t.String(), start, err)
		return nil, err
	}

	result, err := handler(ctx, cmd)
	b.record(ctx, "command", t.String(), start, err)
	return result, err
}

// Query routes q to its registered query handler. A missing handler
// surfaces as apperr.Internal rather than panicking.
func (b *Bus) Query(ctx context.Context, q any) (any, error) {
	t := reflect.TypeOf(q)
	start := time.Now()

	handler, ok := b.queries[t]
	if !ok {
		err := apperr.Internal("no query handler registered for %T", q)
		b.record(ctx, "query", t.String(), start, err)
		return nil, err
	}

	result, err := handler(ctx, q)
	b.record(ctx, "query", t.String(), start, err)
	return result, err
}

func (b *Bus) record(ctx context.Context, kind, messageType string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordDispatch(ctx, kind, messageType, float64(time.Since(start).Milliseconds()), err)
}
