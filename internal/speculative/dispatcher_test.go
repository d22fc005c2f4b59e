package speculative

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFire_RejectsSingleWord(t *testing.T) {
	d := New()
	ok := d.Fire(context.Background(), 1, "open", func(ctx context.Context, s string) (Result, error) {
		return Result{}, nil
	})
	if ok {
		t.Error("expected Fire to reject a single-word partial")
	}
}

func TestFire_RejectsWhenNotIdle(t *testing.T) {
	d := New()
	block := make(chan struct{})
	ok1 := d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		<-block
		return Result{}, nil
	})
	if !ok1 {
		t.Fatal("expected first Fire to succeed")
	}
	ok2 := d.Fire(context.Background(), 1, "open firefox", func(ctx context.Context, s string) (Result, error) {
		return Result{}, nil
	})
	if ok2 {
		t.Error("expected second Fire to be rejected while inflight")
	}
	close(block)
}

func TestFire_RespectsCooldown(t *testing.T) {
	d := New()
	d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		return Result{ToolCalls: 1}, nil
	})
	time.Sleep(10 * time.Millisecond)
	d.Cancel()
	d.Reset()
	ok := d.Fire(context.Background(), 1, "open firefox", func(ctx context.Context, s string) (Result, error) {
		return Result{}, nil
	})
	if ok {
		t.Error("expected Fire to respect the 500ms cooldown")
	}
}

func TestClaim_SucceedsAfterMinProcessingTime(t *testing.T) {
	d := New()
	d.Fire(context.Background(), 42, "open chrome", func(ctx context.Context, s string) (Result, error) {
		time.Sleep(250 * time.Millisecond)
		return Result{Text: "Opening Chrome", ToolCalls: 1}, nil
	})
	time.Sleep(350 * time.Millisecond)
	res, ok := d.Claim(42, "open chrome", "open chrome", false)
	if !ok {
		t.Fatal("expected claim to succeed")
	}
	if res.Text != "Opening Chrome" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestClaim_FailsOnTooFastReady(t *testing.T) {
	d := New()
	d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		return Result{Text: "x", ToolCalls: 1}, nil
	})
	time.Sleep(20 * time.Millisecond)
	_, ok := d.Claim(1, "open chrome", "open chrome", false)
	if ok {
		t.Error("expected claim to fail when ready_at - fired_at < 200ms")
	}
}

func TestClaim_FailsOnUtteranceMismatch(t *testing.T) {
	d := New()
	d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		time.Sleep(250 * time.Millisecond)
		return Result{Text: "x", ToolCalls: 1}, nil
	})
	time.Sleep(350 * time.Millisecond)
	_, ok := d.Claim(2, "open chrome", "open chrome", false)
	if ok {
		t.Error("expected claim to fail on utterance id mismatch")
	}
}

func TestClaim_FailsOnSimilarityMismatch(t *testing.T) {
	d := New()
	d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		time.Sleep(250 * time.Millisecond)
		return Result{Text: "x", ToolCalls: 1}, nil
	})
	time.Sleep(350 * time.Millisecond)
	_, ok := d.Claim(1, "open chrome", "open the settings", false)
	if ok {
		t.Error("expected claim to fail on similarity mismatch")
	}
}

func TestRun_ErrorCancelsSlot(t *testing.T) {
	d := New()
	d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		return Result{}, errors.New("boom")
	})
	time.Sleep(20 * time.Millisecond)
	if d.State() != StateCancelled {
		t.Errorf("state = %v, want Cancelled", d.State())
	}
}

func TestCancel_BumpsGenerationAndIgnoresLateResult(t *testing.T) {
	d := New()
	resultCh := make(chan struct{})
	d.Fire(context.Background(), 1, "open chrome", func(ctx context.Context, s string) (Result, error) {
		<-ctx.Done()
		close(resultCh)
		return Result{Text: "late", ToolCalls: 1}, nil
	})
	d.Cancel()
	<-resultCh
	time.Sleep(20 * time.Millisecond)
	if d.State() != StateCancelled {
		t.Errorf("state = %v, want Cancelled after late callback", d.State())
	}
}

func TestAutoDisable_LowHitRate(t *testing.T) {
	d := New()
	for i := 0; i < 11; i++ {
		d.Fire(context.Background(), i, "open chrome", func(ctx context.Context, s string) (Result, error) {
			time.Sleep(210 * time.Millisecond)
			return Result{Text: "x"}, nil
		})
		time.Sleep(250 * time.Millisecond)
		d.Claim(i, "open chrome", "open the settings instead today", false)
		d.Reset()
		time.Sleep(600 * time.Millisecond) // clear cooldown
	}
	if d.Enabled() {
		t.Error("expected dispatcher to auto-disable after sustained low hit rate")
	}
}

func TestIsSimpleCommand(t *testing.T) {
	cases := map[string]bool{
		"open chrome":               true,
		"actually make it firefox":  false,
		"what did you just do":      false,
		"remember that I like tea":  false,
		"search for flights":        true,
	}
	for input, want := range cases {
		if got := IsSimpleCommand(input); got != want {
			t.Errorf("IsSimpleCommand(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSimilar_ExactMatch(t *testing.T) {
	if !Similar("open chrome", "open chrome") {
		t.Error("expected exact match to be similar")
	}
}

func TestSimilar_PrefixMatch(t *testing.T) {
	if !Similar("open chrome and", "open chrome and search for flights") {
		t.Error("expected prefix match to be similar")
	}
}

func TestSimilar_RejectsVerbMismatch(t *testing.T) {
	if Similar("open chrome", "close chrome") {
		t.Error("expected verb mismatch to be rejected")
	}
}

func TestSimilar_RejectsDifferentRouting(t *testing.T) {
	if Similar("open chrome", "actually open chrome instead please") {
		t.Error("expected routing mismatch (simple vs complex) to be rejected")
	}
}
