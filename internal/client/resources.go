package client

import (
	"context"
	"net/http"
	"net/url"

	"capstan/internal/api"
)

// Health reports whether the orchestrator is reachable and serving.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	var out api.Health
	err := c.Do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// ListTasks returns tasks, optionally filtered by status or agent.
func (c *Client) ListTasks(ctx context.Context, filter map[string]string) ([]api.Task, error) {
	var out api.TaskListResponse
	if err := c.Do(ctx, http.MethodGet, "/tasks"+encodeQuery(filter), nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, id string) (api.Task, error) {
	var out api.Task
	err := c.Do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateTask submits a new task for execution.
func (c *Client) CreateTask(ctx context.Context, req api.CreateTaskRequest) (api.Task, error) {
	var out api.Task
	err := c.Do(ctx, http.MethodPost, "/tasks", req, &out)
	return out, err
}

// CancelTask requests cancellation of a running or queued task.
func (c *Client) CancelTask(ctx context.Context, id string) (api.Task, error) {
	var out api.Task
	err := c.Do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/cancel", nil, &out)
	return out, err
}

// RetryTask requeues a failed task.
func (c *Client) RetryTask(ctx context.Context, id string) (api.Task, error) {
	var out api.Task
	err := c.Do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/retry", nil, &out)
	return out, err
}

// ListAgents returns the registered agents.
func (c *Client) ListAgents(ctx context.Context) ([]api.Agent, error) {
	var out api.AgentListResponse
	if err := c.Do(ctx, http.MethodGet, "/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// GetAgent fetches a single agent by id.
func (c *Client) GetAgent(ctx context.Context, id string) (api.Agent, error) {
	var out api.Agent
	err := c.Do(ctx, http.MethodGet, "/agents/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListRuns returns DAG runs, optionally filtered by status.
func (c *Client) ListRuns(ctx context.Context, filter map[string]string) ([]api.DAGRun, error) {
	var out api.DAGRunListResponse
	if err := c.Do(ctx, http.MethodGet, "/runs"+encodeQuery(filter), nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// GetRun fetches a single DAG run by id.
func (c *Client) GetRun(ctx context.Context, id string) (api.DAGRun, error) {
	var out api.DAGRun
	err := c.Do(ctx, http.MethodGet, "/runs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// StartRun launches a run of the named DAG.
func (c *Client) StartRun(ctx context.Context, dag string) (api.DAGRun, error) {
	var out api.DAGRun
	body := map[string]string{"dag": dag}
	err := c.Do(ctx, http.MethodPost, "/runs", body, &out)
	return out, err
}

// PauseRun suspends scheduling of further tasks in a run.
func (c *Client) PauseRun(ctx context.Context, id string) (api.DAGRun, error) {
	var out api.DAGRun
	err := c.Do(ctx, http.MethodPost, "/runs/"+url.PathEscape(id)+"/pause", nil, &out)
	return out, err
}

// ResumeRun resumes a paused run.
func (c *Client) ResumeRun(ctx context.Context, id string) (api.DAGRun, error) {
	var out api.DAGRun
	err := c.Do(ctx, http.MethodPost, "/runs/"+url.PathEscape(id)+"/resume", nil, &out)
	return out, err
}

// ListApprovals returns approval gates, optionally only the pending ones.
func (c *Client) ListApprovals(ctx context.Context, pendingOnly bool) ([]api.Approval, error) {
	path := "/approvals"
	if pendingOnly {
		path += "?status=pending"
	}
	var out api.ApprovalListResponse
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Approvals, nil
}

// ResolveApproval records a decision on a pending approval gate.
func (c *Client) ResolveApproval(ctx context.Context, id string, req api.ResolveApprovalRequest) (api.Approval, error) {
	var out api.Approval
	err := c.Do(ctx, http.MethodPost, "/approvals/"+url.PathEscape(id)+"/resolve", req, &out)
	return out, err
}

func encodeQuery(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range filter {
		if value != "" {
			values.Set(key, value)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
