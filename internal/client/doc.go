// Package client provides the retrying HTTP client for the orchestrator
// REST API.
//
// # Envelope
//
// Every response is a JSON envelope: {"success":true,"data":...} on success
// and {"success":false,"error":{code,message,details}} on failure. Do decodes
// the envelope and hands callers only the data payload; failures surface as
// classified *Error values.
//
// # Error Taxonomy
//
// Failures are classified into Kind values (network, timeout, authentication,
// authorization, not_found, validation, rate_limited, server) from the HTTP
// status, the failure envelope, and transport errors. Kind-specific fields
// (validation field errors, rate-limit quotas, missing resource ids) are
// populated from the envelope's details object when present.
//
// # Retry Behaviour
//
// Network errors, timeouts, 5xx responses, and 429s retry with exponential
// backoff plus jitter. A server-provided Retry-After hint overrides the
// computed delay, capped at the configured ceiling. 4xx responses other than
// 408/429 never retry. When attempts are exhausted the final error is wrapped
// in RetriesExhaustedError so callers still see the concrete cause. Context
// cancellation stops the loop immediately and surfaces the context error,
// never a RetriesExhaustedError.
//
// # Entry Points
//
// New: construct a client from Config.
// Client.Do: one API call with retries and envelope decoding.
// Typed operations (ListTasks, CreateTask, StartRun, ResolveApproval, ...)
// live in resources.go.
//
// # Testing
//
// The transport is an injected HTTPDoer and sleeps go through an injectable
// sleeper, so tests run against httptest servers with no real delays.
package client
