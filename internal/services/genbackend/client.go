package genbackend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"scenegen/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
	maxErrorBody          = 512
)

// Config captures the runtime settings required to talk to the backend.
type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// Client talks to the generation backend over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the per-request retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// NewClient constructs a backend client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:          strings.TrimSpace(cfg.Token),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Submit creates a backend job and returns its backend identifier.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "genbackend", "submit", "prompt is required", nil)
	}
	image, err := os.ReadFile(req.FirstFrame)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "genbackend", "submit", "read first frame", err)
	}
	mime := "application/octet-stream"
	if kind, err := filetype.Match(image); err == nil && kind != filetype.Unknown {
		mime = kind.MIME.Value
	}
	payload := submitPayload{
		Prompt:          req.Prompt,
		Image:           base64.StdEncoding.EncodeToString(image),
		ImageMIME:       mime,
		Seed:            req.Seed,
		Steps:           req.Steps,
		Width:           req.Width,
		Height:          req.Height,
		FPS:             req.FPS,
		DurationSeconds: req.DurationSeconds,
	}
	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/jobs", payload, &resp); err != nil {
		return "", classify("submit", err)
	}
	id := strings.TrimSpace(resp.JobID)
	if id == "" {
		id = strings.TrimSpace(resp.ID)
	}
	if id == "" {
		return "", services.Wrap(services.ErrExternalTool, "genbackend", "submit", "backend returned no job id", nil)
	}
	return id, nil
}

// Poll fetches the current status of a backend job.
func (c *Client) Poll(ctx context.Context, jobID string) (Status, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return Status{}, classify("poll", err)
	}
	progress := resp.Progress
	if progress > 0 && progress <= 1 {
		progress *= 100
	}
	ref := strings.TrimSpace(resp.OutputRef)
	if ref == "" {
		ref = strings.TrimSpace(resp.OutputURL)
	}
	return Status{
		State:     normalizeState(resp.Status),
		Progress:  progress,
		OutputRef: ref,
		Error:     strings.TrimSpace(resp.Error),
	}, nil
}

// Cancel asks the backend to abort a job. Backends may ignore the request.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", struct{}{}, nil); err != nil {
		return classify("cancel", err)
	}
	return nil
}

// Download streams the job output referenced by ref into dest.
func (c *Client) Download(ctx context.Context, ref, dest string) error {
	target, err := c.resolve(ref)
	if err != nil {
		return services.Wrap(services.ErrValidation, "genbackend", "download", "invalid output reference", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "genbackend", "download", "create output directory", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "genbackend", "download", "build request", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classify("download", &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	tmp := dest + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "genbackend", "download", "create output file", err)
	}
	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "genbackend", "download", "write output", errors.Join(copyErr, closeErr))
	}
	if written == 0 {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "genbackend", "download", "backend returned empty output", nil)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrConfiguration, "genbackend", "download", "finalize output", err)
	}
	return nil
}

// Health verifies the backend answers on its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return classify("health", err)
	}
	return nil
}

func (c *Client) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty reference")
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	base, err := url.Parse(c.cfg.BaseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(parsed.Path, "/"), RawQuery: parsed.RawQuery}).String(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.doOnce(ctx, method, path, encoded, out)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &httpStatusError{StatusCode: resp.StatusCode, Body: snippet, RetryAfter: retryAfter}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if c.retryMaxDelay > 0 && delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// classify tags a transport error with the matching service sentinel.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrCanceled, "genbackend", op, "request canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "genbackend", op, "request deadline exceeded", err)
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "genbackend", op, "job not found", err)
		case statusErr.StatusCode == http.StatusUnauthorized, statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "genbackend", op, "backend rejected credentials", err)
		case statusErr.StatusCode >= http.StatusInternalServerError, statusErr.StatusCode == http.StatusTooManyRequests:
			return services.Wrap(services.ErrTransient, "genbackend", op, "backend unavailable", err)
		default:
			return services.Wrap(services.ErrExternalTool, "genbackend", op, "backend rejected request", err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "genbackend", op, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "genbackend", op, "request failed", err)
}
