package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"neuroassess/common/utils"
	"neuroassess/internal/auth"
	"neuroassess/internal/engine"
	"neuroassess/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// FacadeConfig configures the client of the engine's REST task endpoint.
type FacadeConfig struct {
	// BaseURL is the engine's REST root, e.g. http://127.0.0.1:8080/engine.
	BaseURL  string
	Username string
	Password string
	// Timeout bounds every call. A timeout counts as unreachable.
	Timeout time.Duration
}

// FacadeSource lists and completes tasks through the engine's REST endpoint,
// authenticated with the service credential. The acting user only travels
// as the user= query parameter.
type FacadeSource struct {
	cfg     FacadeConfig
	client  *fiber.Client
	metrics *metrics.Registry
}

// NewFacadeSource creates a facade client. reg may be nil.
func NewFacadeSource(cfg FacadeConfig, reg *metrics.Registry) *FacadeSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &FacadeSource{
		cfg:     cfg,
		client:  fiber.AcquireClient(),
		metrics: reg,
	}
}

func (f *FacadeSource) Name() string { return "facade" }

// WorkItems fetches the instance's task list scoped to p. Any transport
// error, timeout, non-2xx status, empty body or undecodable body is
// reported as ErrFacadeUnavailable.
func (f *FacadeSource) WorkItems(ctx context.Context, processID string, pi engine.ProcessInstance, p auth.Principal) ([]engine.WorkItem, error) {
	query := url.Values{}
	query.Set("user", p.Name)
	for _, role := range p.Roles {
		query.Add("group", role)
	}
	target := fmt.Sprintf("%s/%s/%s/tasks?%s", f.cfg.BaseURL,
		url.PathEscape(processID), url.PathEscape(pi.ID()), query.Encode())

	timeout, err := f.timeout(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	agent := f.client.Get(target)
	agent.BasicAuth(f.cfg.Username, f.cfg.Password)
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	code, body, errs := agent.Bytes()
	f.metrics.Observe(metrics.FacadeDuration, time.Since(start))

	items, err := decodeWorkItems(code, body, errs)
	f.metrics.Pass(metrics.FacadeRequests, err == nil)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Submit posts {payload-key: answers} to the engine's completion endpoint.
func (f *FacadeSource) Submit(ctx context.Context, s Submission) error {
	query := url.Values{}
	query.Set("user", s.User)
	if s.Group != "" {
		query.Set("group", s.Group)
	}
	target := fmt.Sprintf("%s/%s/%s/%s/%s?%s", f.cfg.BaseURL,
		url.PathEscape(s.ProcessID), url.PathEscape(s.InstanceID),
		url.PathEscape(s.TaskName), url.PathEscape(s.TaskID), query.Encode())

	body, err := utils.Marshal(s.Body)
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}

	timeout, err := f.timeout(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	agent := f.client.Post(target)
	agent.BasicAuth(f.cfg.Username, f.cfg.Password)
	agent.Timeout(timeout)
	agent.ContentType(fiber.MIMEApplicationJSON)
	agent.Body(body)
	code, resp, errs := agent.Bytes()
	f.metrics.Observe(metrics.FacadeDuration, time.Since(start))

	if len(errs) > 0 {
		return transportError(errs[0])
	}
	if code < 200 || code >= 300 {
		var er engine.ErrorResponse
		if err := utils.Unmarshal(resp, &er); err == nil && er.Message != "" {
			return fmt.Errorf("engine returned %d: %s", code, er.Message)
		}
		return fmt.Errorf("engine returned %d", code)
	}
	return nil
}

// timeout bounds the configured timeout by ctx's deadline.
func (f *FacadeSource) timeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFacadeUnavailable, err)
	}
	timeout := f.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return 0, fmt.Errorf("%w: %w", ErrFacadeUnavailable, context.DeadlineExceeded)
		}
		if left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}

func decodeWorkItems(code int, body []byte, errs []error) ([]engine.WorkItem, error) {
	if len(errs) > 0 {
		return nil, transportError(errs[0])
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrFacadeUnavailable, code)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty body", ErrFacadeUnavailable)
	}
	var dtos []engine.WorkItemDTO
	if err := utils.Unmarshal(trimmed, &dtos); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrFacadeUnavailable, err)
	}
	items := make([]engine.WorkItem, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, d.ToWorkItem())
	}
	return items, nil
}

func transportError(err error) error {
	if errors.Is(err, fasthttp.ErrTimeout) {
		return fmt.Errorf("%w: timeout: %w", ErrFacadeUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrFacadeUnavailable, err)
}
