package reqmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

const maxRequestString = 50

// Submit creates a Resubmission request for the failed task, applies the
// splitting override and approves it. It returns the new request name.
func (c *Client) Submit(
	ctx context.Context,
	baseURL, task string,
	source *domain.Workflow,
	overrides domain.RecoveryOverrides,
) (string, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	body := c.resubmission(task, source, overrides)

	var out struct {
		Result []struct {
			Request string `json:"request"`
		} `json:"result"`
	}
	// Every accepted POST creates a new request, so creation is never retried.
	if err := c.http.DoOnce(ctx, http.MethodPost, baseURL+requestPath, body, &out); err != nil {
		return "", fmt.Errorf("submit recovery for %s: %w", task, err)
	}
	if len(out.Result) == 0 || out.Result[0].Request == "" {
		return "", nil
	}
	name := out.Result[0].Request
	slog.Debug("Recovery request created", "request", name)

	if err := c.adjustSplitting(ctx, baseURL, name, overrides.Split); err != nil {
		return name, err
	}
	if err := c.setStatus(ctx, baseURL, name, domain.StatusAssignmentApproved); err != nil {
		return name, err
	}
	return name, nil
}

func (c *Client) resubmission(task string, source *domain.Workflow, o domain.RecoveryOverrides) map[string]any {
	body := map[string]any{
		"RequestType":         string(domain.RequestTypeResubmission),
		"OriginalRequestName": source.Name,
		"InitialTaskPath":     task,
		"ACDCServer":          strings.TrimRight(c.acdc.URL, "/"),
		"ACDCDatabase":        c.acdc.Database,
		"RequestString":       requestString(source.Name),
	}
	// Administrative fields are copied when the source carries them.
	for _, key := range []string{"Campaign", "Group", "Requestor", "PrepID", "RequestPriority", "DbsUrl"} {
		if v, ok := source.Raw[key]; ok {
			body[key] = v
		}
	}
	if o.Memory > 0 {
		body["Memory"] = o.Memory
	}
	if cores, err := strconv.Atoi(o.Multicore); err == nil && cores > 0 {
		body["Multicore"] = cores
	}
	if o.TrustSitelists {
		body["TrustSitelists"] = true
	}
	return body
}

type splitting struct {
	TaskName    string         `json:"taskName"`
	TaskType    string         `json:"taskType"`
	SplitAlgo   string         `json:"splitAlgo"`
	SplitParams map[string]any `json:"splitParams"`
}

// adjustSplitting scales the per-job parameters of every processing task.
func (c *Client) adjustSplitting(ctx context.Context, baseURL, name, policy string) error {
	if policy == "" || policy == "Same" {
		return nil
	}
	endpoint := fmt.Sprintf("%s%s/%s", baseURL, splittingPath, url.PathEscape(name))

	var out struct {
		Result []splitting `json:"result"`
	}
	if err := c.http.GetJSON(ctx, endpoint, &out); err != nil {
		return fmt.Errorf("read splitting of %s: %w", name, err)
	}

	var changed []splitting
	for _, s := range out.Result {
		if s.TaskType != "Processing" && s.TaskType != "Production" {
			continue
		}
		if ScaleSplitting(s.SplitParams, policy) {
			changed = append(changed, s)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := c.http.Do(ctx, http.MethodPost, endpoint, changed, nil); err != nil {
		return fmt.Errorf("update splitting of %s: %w", name, err)
	}
	slog.Info("Adjusted splitting", "request", name, "policy", policy, "tasks", len(changed))
	return nil
}

// ScaleSplitting rewrites the *_per_job values of params for a policy of the
// form "Nx" (divide by N) or "max" (one unit per job). Values never drop below 1.
func ScaleSplitting(params map[string]any, policy string) bool {
	divisor := 0
	if policy != "max" {
		n, err := strconv.Atoi(strings.TrimSuffix(policy, "x"))
		if err != nil || n <= 0 {
			return false
		}
		divisor = n
	}

	changed := false
	for k, v := range params {
		if !strings.HasSuffix(k, "_per_job") {
			continue
		}
		f, ok := v.(float64)
		if !ok || f <= 0 {
			continue
		}
		next := 1
		if divisor > 0 {
			next = max(int(f)/divisor, 1)
		}
		params[k] = next
		changed = true
	}
	return changed
}

func (c *Client) setStatus(ctx context.Context, baseURL, name string, status domain.Status) error {
	endpoint := fmt.Sprintf("%s%s/%s", baseURL, requestPath, url.PathEscape(name))
	body := map[string]any{"RequestStatus": string(status)}
	if err := c.http.Do(ctx, http.MethodPut, endpoint, body, nil); err != nil {
		return fmt.Errorf("set status of %s to %s: %w", name, status, err)
	}
	return nil
}

// Assign moves a request to assigned with the given parameters.
func (c *Client) Assign(
	ctx context.Context,
	baseURL, name, team string,
	params *domain.AssignmentParameters,
) (bool, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return false, fmt.Errorf("marshal assignment parameters: %w", err)
	}
	body := make(map[string]any)
	if err := json.Unmarshal(data, &body); err != nil {
		return false, fmt.Errorf("marshal assignment parameters: %w", err)
	}
	body["RequestStatus"] = string(domain.StatusAssigned)
	body["Team"] = team

	endpoint := fmt.Sprintf("%s%s/%s", strings.TrimRight(baseURL, "/"), requestPath, url.PathEscape(name))
	if err := c.http.Do(ctx, http.MethodPut, endpoint, body, nil); err != nil {
		return false, fmt.Errorf("assign %s: %w", name, err)
	}
	return true, nil
}

func requestString(original string) string {
	s := "ACDC0_" + original
	if len(s) > maxRequestString {
		s = s[:maxRequestString]
	}
	return s
}
