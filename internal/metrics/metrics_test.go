package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"host key form", "https://example.com", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlerPagesTotal == nil || pacingDelaySeconds == nil ||
		pacingOutcomesTotal == nil || pacingWaitSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	SetPacingDelay("https://test.example", 500*time.Millisecond)
	if val := testutil.ToFloat64(pacingDelaySeconds.WithLabelValues("test.example")); val != 0.5 {
		t.Errorf("expected pacing delay gauge 0.5, got %f", val)
	}

	ObserveOutcome("overloaded")
	if val := testutil.ToFloat64(pacingOutcomesTotal.WithLabelValues("overloaded")); val != 1 {
		t.Errorf("expected outcome counter 1, got %f", val)
	}

	SetTrackedHosts(3)
	if val := testutil.ToFloat64(pacingTrackedHosts); val != 3 {
		t.Errorf("expected tracked hosts 3, got %f", val)
	}
}

func TestObserversAreNoOpsBeforeInit(t *testing.T) {
	// Helpers must tolerate being called before Init in unit tests.
	saved := pacingDelaySeconds
	pacingDelaySeconds = nil
	defer func() { pacingDelaySeconds = saved }()
	SetPacingDelay("https://test.example", time.Second)
}

// Fuzz test for SanitizeHost.
func FuzzSanitizeHost(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeHost(orig)
		if sanitized == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", orig)
		}
	})
}
