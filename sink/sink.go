// Package sink models the two side-effect failure policies that coexist
// in the gateway:
//
//   - [BestEffort]: failures are logged and dropped. For audit-style
//     side effects where losing a record is acceptable and blocking the
//     caller is not.
//   - [Durable]: failures are captured in the dead letter queue and
//     replayed later. For writes that must never be silently lost, such
//     as usage accounting.
//
// The policy is chosen per side effect by picking the wrapper type.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/bulwark/dlq"
)

// Sink is a destination for serialized side-effect records.
type Sink interface {
	// Name identifies the sink in logs and DLQ metadata.
	Name() string

	// Write delivers one record. Implementations define their own
	// payload encoding; the wrappers in this package never interpret it.
	Write(ctx context.Context, payload []byte) error
}

// BestEffort wraps a sink with the fire-and-forget policy: Write never
// returns an error; failures are logged and discarded, and are never
// retried.
type BestEffort struct {
	next   Sink
	logger *slog.Logger
}

// NewBestEffort creates a best-effort wrapper around next.
func NewBestEffort(next Sink, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{next: next, logger: logger}
}

// Name returns the wrapped sink's name.
func (b *BestEffort) Name() string { return b.next.Name() }

// Write delivers the record, swallowing any failure.
func (b *BestEffort) Write(ctx context.Context, payload []byte) error {
	if err := b.next.Write(ctx, payload); err != nil {
		b.logger.Warn("best-effort sink write dropped",
			slog.String("sink", b.next.Name()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Durable wraps a sink with the never-lose policy: a failed Write is
// captured in the DLQ under the sink's entry type, preserving the
// payload and the original error for replay. Only a DLQ push failure
// propagates to the caller.
type Durable struct {
	next      Sink
	queue     *dlq.Service
	entryType string
	logger    *slog.Logger
}

// NewDurable creates a durable wrapper around next. Failed writes become
// DLQ entries of the given entry type, which should have a matching
// replay handler registered.
func NewDurable(next Sink, queue *dlq.Service, entryType string, logger *slog.Logger) *Durable {
	if logger == nil {
		logger = slog.Default()
	}
	return &Durable{next: next, queue: queue, entryType: entryType, logger: logger}
}

// Name returns the wrapped sink's name.
func (d *Durable) Name() string { return d.next.Name() }

// Write delivers the record, falling back to the DLQ on failure.
func (d *Durable) Write(ctx context.Context, payload []byte) error {
	writeErr := d.next.Write(ctx, payload)
	if writeErr == nil {
		return nil
	}

	entryID, pushErr := d.queue.Push(ctx, &dlq.Entry{
		EntryType: d.entryType,
		Payload:   payload,
		Error:     writeErr.Error(),
		Metadata:  map[string]string{"sink": d.next.Name()},
	})
	if pushErr != nil {
		return fmt.Errorf("sink %s: write failed (%v) and dlq push failed: %w",
			d.next.Name(), writeErr, pushErr)
	}

	d.logger.Warn("sink write captured in dlq",
		slog.String("sink", d.next.Name()),
		slog.String("entry_id", entryID.String()),
		slog.String("entry_type", d.entryType),
		slog.String("error", writeErr.Error()),
	)
	return nil
}
