package api

import "encoding/json"

// Envelope is the wrapper the orchestrator puts around every HTTP response.
// Success responses carry Data; failures carry Error and Success=false.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the structured error payload inside a failure envelope.
type ErrorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ValidationDetails is the details shape used for field-level validation
// failures (HTTP 400).
type ValidationDetails struct {
	Fields []FieldError `json:"fields"`
}

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// NotFoundDetails is the details shape for HTTP 404 responses.
type NotFoundDetails struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

// ForbiddenDetails is the details shape for HTTP 403 responses.
type ForbiddenDetails struct {
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
}

// RateLimitDetails is the details shape for HTTP 429 responses. RetryAfter is
// in seconds.
type RateLimitDetails struct {
	RetryAfter int `json:"retryAfter,omitempty"`
	Limit      int `json:"limit,omitempty"`
	Remaining  int `json:"remaining"`
}

// Task describes a unit of work tracked by the orchestrator.
type Task struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	AgentID       string          `json:"agentId,omitempty"`
	DAGRunID      string          `json:"dagRunId,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
	RetryCount    int             `json:"retryCount,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// CreateTaskRequest is the body for task submission.
type CreateTaskRequest struct {
	Name     string          `json:"name"`
	AgentID  string          `json:"agentId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Priority int             `json:"priority,omitempty"`
}

// Agent describes a worker registered with the orchestrator.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Capacity    int    `json:"capacity,omitempty"`
	ActiveTasks int    `json:"activeTasks"`
	LastSeenAt  string `json:"lastSeenAt,omitempty"`
}

// DAGRun describes one execution of a task graph.
type DAGRun struct {
	ID         string `json:"id"`
	DAGID      string `json:"dagId"`
	Status     string `json:"status"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	TaskCount  int    `json:"taskCount,omitempty"`
}

// Approval describes a pending or resolved human approval gate.
type Approval struct {
	ID          string `json:"id"`
	TaskID      string `json:"taskId"`
	Reason      string `json:"reason,omitempty"`
	Status      string `json:"status"`
	RequestedAt string `json:"requestedAt,omitempty"`
	ResolvedAt  string `json:"resolvedAt,omitempty"`
	ResolvedBy  string `json:"resolvedBy,omitempty"`
	Note        string `json:"note,omitempty"`
}

// ResolveApprovalRequest is the body for resolving an approval gate.
type ResolveApprovalRequest struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

// Health reports orchestrator liveness information.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptimeSeconds,omitempty"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// AgentListResponse wraps a collection of agents.
type AgentListResponse struct {
	Agents []Agent `json:"agents"`
}

// DAGRunListResponse wraps a collection of DAG runs.
type DAGRunListResponse struct {
	Runs []DAGRun `json:"runs"`
}

// ApprovalListResponse wraps a collection of approvals.
type ApprovalListResponse struct {
	Approvals []Approval `json:"approvals"`
}
