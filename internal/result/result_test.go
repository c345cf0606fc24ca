package result

import (
	"strings"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestClassifyFirstRun(t *testing.T) {
	st, diff := Classify(25.0, nil, time.Now())
	if st != StatusFirstRun {
		t.Fatalf("expected first_run, got %s", st)
	}
	if diff != nil {
		t.Fatalf("expected nil diff on first run, got %v", *diff)
	}

	st, _ = Classify(25.0, &SigninRecord{Time: time.Now()}, time.Now())
	if st != StatusFirstRun {
		t.Fatalf("record without balance should classify as first_run, got %s", st)
	}
}

func TestClassifyNewCredit(t *testing.T) {
	rec := &SigninRecord{Time: time.Now().Add(-25 * time.Hour), Balance: f64(25.0)}
	st, diff := Classify(27.5, rec, time.Now())
	if st != StatusSuccess {
		t.Fatalf("expected success, got %s", st)
	}
	if diff == nil || *diff != 2.5 {
		t.Fatalf("expected diff 2.5, got %v", diff)
	}
}

func TestClassifyCooldown(t *testing.T) {
	now := time.Now()
	rec := &SigninRecord{Time: now.Add(-2 * time.Hour), Balance: f64(25.0)}
	st, diff := Classify(25.0, rec, now)
	if st != StatusCooldown {
		t.Fatalf("expected cooldown inside window, got %s", st)
	}
	if diff == nil || *diff != 0 {
		t.Fatalf("expected zero diff, got %v", diff)
	}
}

func TestClassifyNoChangePastCooldown(t *testing.T) {
	now := time.Now()
	rec := &SigninRecord{Time: now.Add(-30 * time.Hour), Balance: f64(25.0)}
	st, _ := Classify(25.0, rec, now)
	if st != StatusFailed {
		t.Fatalf("unchanged balance past cooldown should fail, got %s", st)
	}
}

func TestClassifyBalanceDropped(t *testing.T) {
	now := time.Now()
	rec := &SigninRecord{Time: now.Add(-1 * time.Hour), Balance: f64(25.0)}
	st, diff := Classify(20.0, rec, now)
	if st != StatusFailed {
		t.Fatalf("dropped balance should fail, got %s", st)
	}
	if diff == nil || *diff != -5.0 {
		t.Fatalf("expected diff -5.0, got %v", diff)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := map[string]float64{"anyrouter_1001": 27.5, "agentrouter_2002": 100}
	b := map[string]float64{"agentrouter_2002": 100, "anyrouter_1001": 27.5}

	fa, fb := Fingerprint(a), Fingerprint(b)
	if fa == "" || fa != fb {
		t.Fatalf("same balances must give same fingerprint: %q vs %q", fa, fb)
	}
	if len(fa) != fingerprintLength {
		t.Fatalf("expected %d chars, got %d", fingerprintLength, len(fa))
	}

	c := map[string]float64{"anyrouter_1001": 30.0, "agentrouter_2002": 100}
	if Fingerprint(c) == fa {
		t.Fatalf("different balances must change the fingerprint")
	}

	if Fingerprint(nil) != "" {
		t.Fatalf("empty balances should give empty fingerprint")
	}
}

func TestSummaryCounts(t *testing.T) {
	var s Summary
	s.Add(SigninResult{AccountKey: "a", Status: StatusSuccess})
	s.Add(SigninResult{AccountKey: "b", Status: StatusCooldown})
	s.Add(SigninResult{AccountKey: "c", Status: StatusFailed, Error: "boom"})
	s.Add(SigninResult{AccountKey: "d", Status: StatusFirstRun})

	if s.Total != 4 || s.Success != 2 || s.Cooldown != 1 || s.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if !s.NeedsNotification() {
		t.Fatalf("summary with failures must notify")
	}
	if s.AllSucceeded() {
		t.Fatalf("summary with failures is not all-success")
	}
}

func TestSummaryNotificationTriggers(t *testing.T) {
	var quiet Summary
	quiet.Add(SigninResult{AccountKey: "a", Status: StatusCooldown})
	if quiet.NeedsNotification() {
		t.Fatalf("cooldown-only run must stay silent")
	}
	if !quiet.AllSucceeded() {
		t.Fatalf("cooldown-only run counts as success")
	}

	changed := quiet
	changed.BalanceChanged = true
	if !changed.NeedsNotification() {
		t.Fatalf("balance change must notify")
	}

	first := quiet
	first.FirstRun = true
	if !first.NeedsNotification() {
		t.Fatalf("first run must always notify")
	}
}

func TestSummaryRender(t *testing.T) {
	var s Summary
	s.Add(SigninResult{
		AccountName: "主力号",
		Status:      StatusSuccess,
		Balance:     &UserBalance{Quota: 27.5, UsedQuota: 2.5},
		BalanceDiff: f64(2.5),
	})
	s.Add(SigninResult{AccountName: "Account 2", Status: StatusFailed, Error: "session 已失效"})

	out := s.Render(time.Date(2026, 8, 30, 8, 0, 0, 0, time.Local))
	for _, want := range []string{"主力号", "$27.50", "+$2.50", "Account 2", "session 已失效", "成功: 1/2", "失败: 1/2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}
