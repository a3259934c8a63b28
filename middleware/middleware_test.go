package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/breaker"
	"github.com/xraph/bulwark/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCall() *middleware.Call {
	return &middleware.Call{Provider: "openai", Operation: "chat"}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *middleware.Call, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *middleware.Call, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), newTestCall(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	if err := chain(context.Background(), newTestCall(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called through empty chain")
	}
}

func TestChain_ErrorPropagates(t *testing.T) {
	callErr := errors.New("upstream 503")
	chain := middleware.Chain(middleware.Logging(discardLogger()))

	err := chain(context.Background(), newTestCall(), func(_ context.Context) error {
		return callErr
	})
	if !errors.Is(err, callErr) {
		t.Fatalf("chain returned %v, want the handler's error", err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(discardLogger())

	err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
		panic("connection pool corrupted")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking handler")
	}
	if !strings.Contains(err.Error(), "openai") {
		t.Errorf("panic error %q does not name the provider", err)
	}
}

func TestRecover_PassThroughOnSuccess(t *testing.T) {
	mw := middleware.Recover(discardLogger())
	if err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_EnforcesDeadline(t *testing.T) {
	mw := middleware.Timeout(discardLogger())
	c := &middleware.Call{Provider: "openai", Operation: "chat", Timeout: 10 * time.Millisecond}

	err := mw(context.Background(), c, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestTimeout_ZeroMeansNoDeadline(t *testing.T) {
	mw := middleware.Timeout(discardLogger())

	err := mw(context.Background(), newTestCall(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("deadline set on a call with zero Timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBreaker_ShortCircuitsOpenProvider(t *testing.T) {
	reg, err := breaker.NewRegistry(
		breaker.WithConfig(breaker.Config{FailureThreshold: 1, CoolDown: time.Hour}),
		breaker.WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	mw := middleware.Breaker(reg)

	callErr := errors.New("upstream down")
	err = mw(context.Background(), newTestCall(), func(_ context.Context) error {
		return callErr
	})
	if !errors.Is(err, callErr) {
		t.Fatalf("first call returned %v, want the handler's error", err)
	}

	// The breaker is now open; the handler must not run.
	ran := false
	err = mw(context.Background(), newTestCall(), func(_ context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, bulwark.ErrBreakerOpen) {
		t.Fatalf("second call returned %v, want ErrBreakerOpen", err)
	}
	if ran {
		t.Fatal("handler ran through an open breaker")
	}

	// Other providers keep flowing.
	other := &middleware.Call{Provider: "anthropic", Operation: "chat"}
	if err := mw(context.Background(), other, func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("unaffected provider rejected: %v", err)
	}
}

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	mw := middleware.RateLimit(rate.Limit(1000), 5)

	for i := 0; i < 5; i++ {
		if err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
			return nil
		}); err != nil {
			t.Fatalf("call %d rejected within burst: %v", i, err)
		}
	}
}

func TestRateLimit_ContextCancellation(t *testing.T) {
	// Burst 1 at a glacial refill rate: the second call must block, and
	// the cancelled context must surface as the call error.
	mw := middleware.RateLimit(rate.Limit(0.001), 1)

	if err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := mw(ctx, newTestCall(), func(_ context.Context) error {
		t.Error("handler ran without a token")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error from the cancelled wait")
	}
}

func TestRateLimit_PerProviderIsolation(t *testing.T) {
	mw := middleware.RateLimit(rate.Limit(0.001), 1)

	if err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("openai: %v", err)
	}

	// Exhausting openai's bucket must not touch anthropic's.
	other := &middleware.Call{Provider: "anthropic", Operation: "chat"}
	if err := mw(context.Background(), other, func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("anthropic throttled by openai's bucket: %v", err)
	}
}
