package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"capstan/internal/api"
)

func newTestClient(t *testing.T, serverURL string, attempts int) (*Client, *[]time.Duration) {
	t.Helper()
	sleeps := &[]time.Duration{}
	c, err := New(Config{
		BaseURL:       serverURL,
		Token:         "test-token",
		RetryAttempts: attempts,
		RetryBase:     10 * time.Millisecond,
		RetryMax:      time.Second,
	},
		WithSleeper(func(d time.Duration) { *sleeps = append(*sleeps, d) }),
		WithJitter(func() time.Duration { return 0 }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c, sleeps
}

func writeSuccess(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	_ = json.NewEncoder(w).Encode(api.Envelope{Success: true, Data: raw})
}

func writeFailure(w http.ResponseWriter, status int, code, message string, details any) {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Envelope{
		Success: false,
		Error:   &api.ErrorBody{Code: code, Message: message, Details: raw},
	})
}

func TestDoRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			writeFailure(w, http.StatusServiceUnavailable, "unavailable", "scheduler restarting", nil)
			return
		}
		writeSuccess(t, w, api.Task{ID: "t-1", Status: "queued"})
	}))
	defer server.Close()

	c, sleeps := newTestClient(t, server.URL, 3)
	task, err := c.GetTask(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("GetTask returned error: %v", err)
	}
	if task.ID != "t-1" {
		t.Fatalf("unexpected task id %q", task.ID)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(*sleeps))
	}
	if (*sleeps)[1] < (*sleeps)[0] {
		t.Fatalf("delays decreased: %v then %v", (*sleeps)[0], (*sleeps)[1])
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	for _, tc := range []struct {
		status int
		kind   Kind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusForbidden, KindAuthorization},
		{http.StatusNotFound, KindNotFound},
	} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeFailure(w, tc.status, "nope", "rejected", nil)
		}))

		c, sleeps := newTestClient(t, server.URL, 3)
		err := c.Do(context.Background(), http.MethodGet, "/tasks/t-1", nil, nil)
		server.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if KindOf(err) != tc.kind {
			t.Fatalf("status %d: expected kind %s, got %s", tc.status, tc.kind, KindOf(err))
		}
		if got := calls.Load(); got != 1 {
			t.Fatalf("status %d: expected a single attempt, got %d", tc.status, got)
		}
		if len(*sleeps) != 0 {
			t.Fatalf("status %d: unexpected sleeps %v", tc.status, *sleeps)
		}
		var exhausted *RetriesExhaustedError
		if errors.As(err, &exhausted) {
			t.Fatalf("status %d: client error must not be wrapped as exhaustion", tc.status)
		}
	}
}

func TestDoRateLimitedExposesQuotaAndRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeFailure(w, http.StatusTooManyRequests, "rate_limited", "slow down",
				api.RateLimitDetails{RetryAfter: 1, Limit: 100, Remaining: 0})
			return
		}
		writeSuccess(t, w, api.Task{ID: "t-9"})
	}))
	defer server.Close()

	c, sleeps := newTestClient(t, server.URL, 3)
	if _, err := c.GetTask(context.Background(), "t-9"); err != nil {
		t.Fatalf("GetTask returned error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
		t.Fatalf("expected one 1s sleep from retry-after, got %v", *sleeps)
	}
}

func TestDoRateLimitedErrorCarriesDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusTooManyRequests, "rate_limited", "slow down",
			api.RateLimitDetails{RetryAfter: 2, Limit: 100, Remaining: 0})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 2)
	err := c.Do(context.Background(), http.MethodGet, "/tasks", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", apiErr.Kind)
	}
	if apiErr.RetryAfter != 2*time.Second || apiErr.Limit != 100 || apiErr.Remaining != 0 {
		t.Fatalf("quota details not populated: %+v", apiErr)
	}
}

func TestDoWrapsExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeFailure(w, http.StatusInternalServerError, "boom", "database on fire", nil)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 3)
	err := c.Do(context.Background(), http.MethodGet, "/tasks", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetriesExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if KindOf(exhausted.Last) != KindServer {
		t.Fatalf("expected wrapped server error, got %v", exhausted.Last)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestDoValidationFieldsPopulated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusBadRequest, "invalid_request", "validation failed",
			api.ValidationDetails{Fields: []api.FieldError{
				{Field: "name", Message: "required"},
				{Field: "priority", Message: "must be positive", Value: -3},
			}})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 3)
	_, err := c.CreateTask(context.Background(), api.CreateTaskRequest{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != KindValidation || len(apiErr.Fields) != 2 {
		t.Fatalf("validation details not populated: %+v", apiErr)
	}
	if apiErr.Fields[0].Field != "name" {
		t.Fatalf("unexpected first field %q", apiErr.Fields[0].Field)
	}
}

func TestDoNetworkErrorClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c, _ := newTestClient(t, server.URL, 2)
	err := c.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("network failures should retry to exhaustion, got %T: %v", err, err)
	}
	if KindOf(exhausted.Last) != KindNetwork {
		t.Fatalf("expected network kind, got %s", KindOf(exhausted.Last))
	}
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeFailure(w, http.StatusServiceUnavailable, "unavailable", "down", nil)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(Config{BaseURL: server.URL, RetryAttempts: 5},
		WithSleeper(func(time.Duration) { cancel() }),
		WithJitter(func() time.Duration { return 0 }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	doErr := c.Do(ctx, http.MethodGet, "/tasks", nil, nil)
	if doErr == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected cancellation after first attempt, got %d calls", got)
	}
	if !errors.Is(doErr, context.Canceled) {
		t.Fatalf("expected a cancellation error, got %v", doErr)
	}
	var exhausted *RetriesExhaustedError
	if errors.As(doErr, &exhausted) {
		t.Fatalf("cancellation must not be reported as retry exhaustion, got %v", doErr)
	}
	if !strings.Contains(doErr.Error(), "after 1 attempts") {
		t.Fatalf("expected the actual attempt count in %q", doErr.Error())
	}
}

func TestDoSendsBearerTokenAndDecodesData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if r.URL.Path != "/api/v1/agents" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		writeSuccess(t, w, api.AgentListResponse{Agents: []api.Agent{{ID: "a-1", Name: "builder"}}})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 1)
	agents, err := c.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("ListAgents returned error: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "builder" {
		t.Fatalf("unexpected agents %+v", agents)
	}
}

func TestDoFailureEnvelopeOn200IsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Envelope{
			Success: false,
			Error:   &api.ErrorBody{Code: "weird", Message: "contract violation"},
		})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 1)
	if err := c.Do(context.Background(), http.MethodGet, "/tasks", nil, nil); err == nil {
		t.Fatal("expected error for failure envelope on 200")
	}
}
