package observer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func observerBody(ts time.Time, account, coin, szi string) string {
	return fmt.Sprintf(`{
		"observer_id": "obs-1",
		"timestamp": %q,
		"positions": {
			%q: {"assetPositions": [{"position": {"coin": %q, "szi": %q}}]}
		}
	}`, ts.Format(time.RFC3339), account, coin, szi)
}

func newTestClient(urls []string) *Client {
	c := NewClient(urls, "0xabc", time.Second, 5*time.Minute, zap.NewNop())
	c.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestPosition_FreshObserverReportsSize(t *testing.T) {
	heartbeat := time.Date(2026, 9, 1, 11, 58, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, observerBody(heartbeat, "0xabc", "BTC", "-0.00030"))
	}))
	defer srv.Close()

	c := newTestClient([]string{srv.URL})
	pos, ok := c.Position(context.Background(), "BTC/USDC:USDC")
	if !ok {
		t.Fatalf("ok=false want true")
	}
	if !pos.Equal(decimal.RequireFromString("-0.0003")) {
		t.Fatalf("pos=%s want -0.0003", pos)
	}
}

func TestPosition_AccountWithoutAssetIsFlat(t *testing.T) {
	heartbeat := time.Date(2026, 9, 1, 11, 59, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, observerBody(heartbeat, "0xabc", "ETH", "1.5"))
	}))
	defer srv.Close()

	c := newTestClient([]string{srv.URL})
	pos, ok := c.Position(context.Background(), "BTC/USDC:USDC")
	if !ok {
		t.Fatalf("ok=false want true: a reported account with no BTC entry is flat")
	}
	if !pos.IsZero() {
		t.Fatalf("pos=%s want 0", pos)
	}
}

func TestPosition_UnknownAccountRejected(t *testing.T) {
	heartbeat := time.Date(2026, 9, 1, 11, 59, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, observerBody(heartbeat, "0xother", "BTC", "1"))
	}))
	defer srv.Close()

	c := newTestClient([]string{srv.URL})
	if _, ok := c.Position(context.Background(), "BTC/USDC:USDC"); ok {
		t.Fatalf("ok=true want false when no observer reports the account")
	}
}

func TestPosition_StaleHeartbeatFallsThrough(t *testing.T) {
	stale := time.Date(2026, 9, 1, 11, 50, 0, 0, time.UTC)
	fresh := time.Date(2026, 9, 1, 11, 59, 0, 0, time.UTC)

	staleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, observerBody(stale, "0xabc", "BTC", "99"))
	}))
	defer staleSrv.Close()
	freshSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, observerBody(fresh, "0xabc", "BTC", "0.0005"))
	}))
	defer freshSrv.Close()

	c := newTestClient([]string{staleSrv.URL, freshSrv.URL})
	pos, ok := c.Position(context.Background(), "BTC/USDC:USDC")
	if !ok {
		t.Fatalf("ok=false want true via second observer")
	}
	if !pos.Equal(decimal.RequireFromString("0.0005")) {
		t.Fatalf("pos=%s want 0.0005 from the fresh observer", pos)
	}
}

func TestPosition_AllObserversFail(t *testing.T) {
	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer errSrv.Close()

	c := newTestClient([]string{errSrv.URL, "http://127.0.0.1:1/status"})
	pos, ok := c.Position(context.Background(), "BTC/USDC:USDC")
	if ok {
		t.Fatalf("ok=true want false when every observer fails")
	}
	if !pos.IsZero() {
		t.Fatalf("pos=%s want 0", pos)
	}
}

func TestParseTimestamp_Formats(t *testing.T) {
	cases := []string{
		"2026-09-01T11:59:00Z",
		"2026-09-01T11:59:00.123456Z",
		"2026-09-01T11:59:00",
	}
	want := time.Date(2026, 9, 1, 11, 59, 0, 0, time.UTC)
	for _, s := range cases {
		ts, err := parseTimestamp(s)
		if err != nil {
			t.Fatalf("parseTimestamp(%q): %v", s, err)
		}
		if !ts.Truncate(time.Second).Equal(want) {
			t.Fatalf("parseTimestamp(%q)=%s want %s", s, ts, want)
		}
	}
	if _, err := parseTimestamp("yesterday"); err == nil {
		t.Fatalf("want error for unrecognized format")
	}
}
