package rate

import (
	"net/http"
	"testing"
	"time"
)

func TestGuardTokenBucket(t *testing.T) {
	decl := Provider("test").MaxRequestsPer(Minute, 2)
	guard := NewGuard(decl)

	now := time.Now()
	for i := 0; i < 2; i++ {
		if d := guard.ShouldCall(now); !d.Allowed {
			t.Fatalf("call %d blocked: %s", i, d.Reason)
		}
	}
	if d := guard.ShouldCall(now); d.Allowed {
		t.Fatal("third call within the window should be blocked")
	}
}

func TestGuardHeaderBudgetTakesOver(t *testing.T) {
	decl := Provider("test").MaxRequestsPer(Minute, 100)
	guard := NewGuard(decl)

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining-minute", "1")
	guard.RecordResponse(http.StatusOK, headers)

	now := time.Now()
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("call with remaining budget blocked: %s", d.Reason)
	}
	if d := guard.ShouldCall(now); d.Allowed {
		t.Fatal("call past reported budget should be blocked")
	}
}

func TestGuardRetryAfterCooldown(t *testing.T) {
	decl := Provider("test").MaxRequestsPer(Minute, 100)
	guard := NewGuard(decl)

	headers := http.Header{}
	headers.Set("Retry-After", "60")
	guard.RecordResponse(http.StatusTooManyRequests, headers)

	d := guard.ShouldCall(time.Now())
	if d.Allowed {
		t.Fatal("call during cooldown should be blocked")
	}
	if d.Reason != "cooldown" {
		t.Fatalf("reason = %q, want cooldown", d.Reason)
	}
	if d.RetryAt.IsZero() {
		t.Fatal("expected RetryAt to be set")
	}
}

func TestGuardNoLimitsDisabled(t *testing.T) {
	guard := NewGuard(Provider("test"))
	if d := guard.ShouldCall(time.Now()); d.Allowed {
		t.Fatal("provider without limits should be disabled")
	}
}
