package sink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/sink"
	"github.com/xraph/bulwark/store/memory"
)

// flakySink fails until reset.
type flakySink struct {
	name    string
	failing bool
	writes  int
}

func (f *flakySink) Name() string { return f.name }

func (f *flakySink) Write(context.Context, []byte) error {
	if f.failing {
		return errors.New("connection refused")
	}
	f.writes++
	return nil
}

func TestBestEffort_SwallowsFailures(t *testing.T) {
	f := &flakySink{name: "audit", failing: true}
	b := sink.NewBestEffort(f, nil)

	if err := b.Write(context.Background(), []byte("record")); err != nil {
		t.Fatalf("BestEffort.Write returned %v, want nil", err)
	}
}

func TestDurable_SuccessPassesThrough(t *testing.T) {
	svc := dlq.NewService(memory.New())
	f := &flakySink{name: "usage"}
	d := sink.NewDurable(f, svc, "usage_log", nil)
	ctx := context.Background()

	if err := d.Write(ctx, []byte(`{"tokens":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if f.writes != 1 {
		t.Errorf("downstream writes = %d, want 1", f.writes)
	}

	count, err := svc.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if count != 0 {
		t.Errorf("dlq Len = %d, want 0", count)
	}
}

func TestDurable_FailureLandsInDLQ(t *testing.T) {
	svc := dlq.NewService(memory.New())
	f := &flakySink{name: "usage", failing: true}
	d := sink.NewDurable(f, svc, "usage_log", nil)
	ctx := context.Background()

	payload := []byte(`{"tenant":"acme","tokens":5}`)
	if err := d.Write(ctx, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	p, err := svc.List(ctx, dlq.ListParams{EntryType: "usage_log"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(p.Items) != 1 {
		t.Fatalf("dlq holds %d entries, want 1", len(p.Items))
	}

	entry := p.Items[0]
	if string(entry.Payload) != string(payload) {
		t.Errorf("Payload = %q, want %q", entry.Payload, payload)
	}
	if entry.Error != "connection refused" {
		t.Errorf("Error = %q, want %q", entry.Error, "connection refused")
	}
	if entry.Metadata["sink"] != "usage" {
		t.Errorf("Metadata[sink] = %q, want %q", entry.Metadata["sink"], "usage")
	}
}

func TestDurable_ReplayDrainsCapturedWrites(t *testing.T) {
	svc := dlq.NewService(memory.New())
	f := &flakySink{name: "usage", failing: true}
	d := sink.NewDurable(f, svc, "usage_log", nil)
	ctx := context.Background()

	if err := d.Write(ctx, []byte(`{"tokens":5}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Destination recovers; the replayer re-executes the original write.
	f.failing = false
	r := dlq.NewReplayer(svc)
	r.Register(dlq.NewHandler("usage_log", func(ctx context.Context, payload []byte) error {
		return f.Write(ctx, payload)
	}))

	summary, err := r.ReplayAll(ctx, "usage_log")
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if summary.Replayed != 1 {
		t.Errorf("Replayed = %d, want 1", summary.Replayed)
	}
	if f.writes != 1 {
		t.Errorf("downstream writes after replay = %d, want 1", f.writes)
	}

	count, err := svc.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if count != 0 {
		t.Errorf("dlq Len after replay = %d, want 0", count)
	}
}
