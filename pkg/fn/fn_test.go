package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("Unwrap of Ok")
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err should not be ok")
	}
	if e.UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr fallback")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); !r.IsOk() {
		t.Fatal("FromPair nil error should be Ok")
	}
	if r := FromPair(0, errors.New("x")); !r.IsErr() {
		t.Fatal("FromPair error should be Err")
	}
}

func TestCollect(t *testing.T) {
	all := Collect([]Result[int]{Ok(1), Ok(2), Ok(3)})
	vs, err := all.Unwrap()
	if err != nil || len(vs) != 3 {
		t.Fatal("Collect all ok")
	}

	bad := Collect([]Result[int]{Ok(1), Err[int](errors.New("mid")), Ok(3)})
	if _, err := bad.Unwrap(); err == nil || err.Error() != "mid" {
		t.Fatal("Collect should surface first error")
	}
}

// --- Retry ---

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		attempts++
		if attempts < 3 {
			return Errf[string]("attempt %d", attempts)
		}
		return Ok("done")
	})
	if v, _ := r.Unwrap(); v != "done" || attempts != 3 {
		t.Fatalf("want success on attempt 3, got %d", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		attempts++
		return Err[int](errors.New("always"))
	})
	if r.IsOk() || attempts != 2 {
		t.Fatalf("want 2 failed attempts, got %d", attempts)
	}
}

func TestRetryLinearBackoffWaits(t *testing.T) {
	start := time.Now()
	Retry(context.Background(), RetryOpts{
		MaxAttempts: 3,
		InitialWait: 10 * time.Millisecond,
		Backoff:     BackoffLinear,
	}, func(context.Context) Result[int] {
		return Err[int](errors.New("x"))
	})
	// waits: 10ms then 20ms.
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("linear backoff too fast: %v", elapsed)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Second}, func(context.Context) Result[int] {
		return Err[int](errors.New("x"))
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

// --- Parallel ---

func TestParMapResultPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := ParMapResult(items, 2, func(v int) Result[int] { return Ok(v * 10) })
	for i, r := range results {
		if v, _ := r.Unwrap(); v != items[i]*10 {
			t.Fatalf("order broken at %d", i)
		}
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	out := FanOut(
		func() int { return 1 },
		func() int { return 2 },
		func() int { return 3 },
	)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("FanOut: %v", out)
	}
}

func TestRetryStageRetries(t *testing.T) {
	attempts := 0
	var flaky Stage[int, int] = func(_ context.Context, v int) Result[int] {
		attempts++
		if attempts < 2 {
			return Errf[int]("transient")
		}
		return Ok(v * 2)
	}
	r := RetryStage(RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, flaky)(context.Background(), 21)
	if v, err := r.Unwrap(); err != nil || v != 42 || attempts != 2 {
		t.Fatalf("v=%d err=%v attempts=%d", v, err, attempts)
	}
}

// --- Pipeline ---

func TestThenShortCircuits(t *testing.T) {
	first := func(_ context.Context, s string) Result[int] { return Err[int](errors.New("first")) }
	second := func(_ context.Context, v int) Result[int] {
		t.Fatal("second stage should not run")
		return Ok(v)
	}
	r := Then(first, second)(context.Background(), "x")
	if _, err := r.Unwrap(); err == nil || err.Error() != "first" {
		t.Fatal("Then should short-circuit")
	}
}

// --- Slices ---

func TestUniqueBy(t *testing.T) {
	type c struct{ text string }
	out := UniqueBy([]c{{"a"}, {"b"}, {"a"}}, func(v c) string { return v.text })
	if len(out) != 2 || out[0].text != "a" || out[1].text != "b" {
		t.Fatalf("UniqueBy: %+v", out)
	}
}

func TestBatch(t *testing.T) {
	out := Batch([]int{1, 2, 3, 4, 5}, 2)
	if len(out) != 3 || len(out[2]) != 1 {
		t.Fatalf("Batch: %+v", out)
	}
	if Batch([]int{1}, 0) != nil {
		t.Fatal("Batch with n<=0 should be nil")
	}
}

func TestSortDescAndTop(t *testing.T) {
	items := SortDesc([]float64{0.2, 0.9, 0.5}, func(v float64) float64 { return v })
	if items[0] != 0.9 || items[2] != 0.2 {
		t.Fatalf("SortDesc: %v", items)
	}
	if got := Top(items, 2); len(got) != 2 || got[0] != 0.9 {
		t.Fatalf("Top: %v", got)
	}
	if got := Top(items, 10); len(got) != 3 {
		t.Fatal("Top beyond length should return all")
	}
}

func TestGroupBy(t *testing.T) {
	g := GroupBy([]int{1, 2, 3, 4}, func(v int) int { return v % 2 })
	if len(g[0]) != 2 || len(g[1]) != 2 {
		t.Fatalf("GroupBy: %v", g)
	}
}
