package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Hay.Toolforge.org/toolinfo.json", "hay.toolforge.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{0: "none", 200: "2xx", 304: "3xx", 404: "4xx", 503: "5xx", 700: "other"}
	for code, want := range cases {
		if got := StatusClass(code); got != want {
			t.Errorf("StatusClass(%d) = %q; want %q", code, got, want)
		}
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	Init()

	ObserveFetch("https://metrics-test.example/toolinfo.json", 200, 512, 20*time.Millisecond)
	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics-test.example", "2xx")); val != 1 {
		t.Errorf("expected one 2xx fetch, got %f", val)
	}
	if val := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("metrics-test.example")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}

	before := testutil.ToFloat64(reconcileActionsTotal.WithLabelValues("reject_duplicate"))
	ObserveAction("reject_duplicate")
	if val := testutil.ToFloat64(reconcileActionsTotal.WithLabelValues("reject_duplicate")); val != before+1 {
		t.Errorf("expected action counter to advance, got %f", val)
	}

	ObserveRun(2)
	if val := testutil.ToFloat64(lastRunInvalidTargets); val != 2 {
		t.Errorf("expected 2 invalid targets, got %f", val)
	}
	ObserveRun(0)
	if val := testutil.ToFloat64(lastRunInvalidTargets); val != 0 {
		t.Errorf("expected gauge reset, got %f", val)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://meta.wikimedia.org", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
