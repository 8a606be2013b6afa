package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounterRecorderCounts(t *testing.T) {
	t.Parallel()

	recorder := NewCounterRecorder()
	recorder.Increment(EventLoginSuccess)
	recorder.Increment(EventLoginSuccess)
	recorder.Increment(EventRefreshFailure)

	if got := recorder.Count(EventLoginSuccess); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := recorder.Count(EventLogout); got != 0 {
		t.Fatalf("expected 0 for unrecorded event, got %d", got)
	}

	snapshot := recorder.Snapshot()
	if snapshot[EventRefreshFailure] != 1 {
		t.Fatalf("unexpected snapshot: %v", snapshot)
	}
	snapshot[EventRefreshFailure] = 99
	if got := recorder.Count(EventRefreshFailure); got != 1 {
		t.Fatalf("expected snapshot to be a copy, got %d", got)
	}
}

func TestCounterRecorderConcurrentIncrements(t *testing.T) {
	t.Parallel()

	recorder := NewCounterRecorder()
	var waitGroup sync.WaitGroup
	for worker := 0; worker < 10; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for i := 0; i < 100; i++ {
				recorder.Increment(EventGuardRedirect)
			}
		}()
	}
	waitGroup.Wait()

	if got := recorder.Count(EventGuardRedirect); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
}

func TestPrometheusRecorderExposesEvents(t *testing.T) {
	t.Parallel()

	recorder := NewPrometheusRecorder()
	recorder.Increment(EventRefreshSuccess)
	recorder.Increment(EventRefreshSuccess)

	response := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder.Handler().ServeHTTP(response, request)

	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.Code)
	}
	body := response.Body.String()
	if !strings.Contains(body, `classgate_session_events_total{event="refresh_success"} 2`) {
		t.Fatalf("expected counter in exposition, got:\n%s", body)
	}
}
