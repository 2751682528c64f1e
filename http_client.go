package chatsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var emptyObject = json.RawMessage("{}")

// TransportError is returned when a request never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPClient performs JSON requests against the REST API, retrying transient
// failures with exponential backoff.
type HTTPClient struct {
	baseURL       string
	client        *http.Client
	timeout       time.Duration
	retryAttempts int
	backoff       BackoffCalculator
	sleep         func(time.Duration) <-chan time.Time
	logger        Logger
	metrics       *Metrics
}

func NewHTTPClient(cfg Config, opts ...Option) *HTTPClient {
	return newHTTPClient(cfg, newOptions(opts))
}

func newHTTPClient(cfg Config, o options) *HTTPClient {
	return &HTTPClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		client:        o.httpClient,
		timeout:       cfg.Timeout,
		retryAttempts: cfg.RetryAttempts,
		backoff:       ExponentialBackoff(cfg.RetryDelay),
		sleep:         o.sleep,
		logger:        o.logger.WithField("type", "http_client"),
		metrics:       o.metrics,
	}
}

// Request sends method to path and returns the response body. body is sent as
// JSON for POST, PUT and PATCH and as query parameters for GET. A response
// without a JSON body yields "{}". Statuses >= 400 come back as *APIError.
func (h *HTTPClient) Request(
	ctx context.Context,
	method, path string,
	body any,
	headers map[string]string,
) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt <= h.retryAttempts; attempt++ {
		data, err := h.do(ctx, method, path, body, headers)
		if err == nil {
			return data, nil
		}

		lastErr = err

		if attempt < h.retryAttempts && h.shouldRetry(ctx, err) {
			ttw := h.backoff(attempt)
			h.logger.Warnf("%s %s failed (attempt %d/%d): %s, retrying in %s",
				method, path, attempt+1, h.retryAttempts+1, err, ttw)

			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "request cancelled during retry")
			case <-h.sleep(ttw):
			}
			continue
		}

		return nil, err
	}

	return nil, lastErr
}

// CloseIdleConnections releases pooled connections.
func (h *HTTPClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}

func (h *HTTPClient) do(
	ctx context.Context,
	method, path string,
	body any,
	headers map[string]string,
) (json.RawMessage, error) {
	method = strings.ToUpper(method)

	u, err := url.Parse(h.baseURL + path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid request path %q", path)
	}

	var reader io.Reader

	if body != nil {
		switch method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			bts, err := json.Marshal(body)
			if err != nil {
				return nil, errors.Wrap(err, "cannot encode request body")
			}
			reader = bytes.NewReader(bts)
		case http.MethodGet:
			if err := mergeQuery(u, body); err != nil {
				return nil, err
			}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.metrics.httpRequest(method, 0)
		return nil, &TransportError{Method: method, URL: u.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.metrics.httpRequest(method, 0)
		return nil, &TransportError{Method: method, URL: u.Path, Err: err}
	}

	h.metrics.httpRequest(method, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseErrorResponse(resp, raw)
	}

	if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
		return emptyObject, nil
	}

	return raw, nil
}

func (h *HTTPClient) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}

	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

type errorEnvelope struct {
	Error *struct {
		Message string          `json:"message"`
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func parseErrorResponse(resp *http.Response, raw []byte) *APIError {
	var (
		status  = resp.StatusCode
		message string
		code    string
		details map[string][]string
		env     errorEnvelope
	)

	if err := json.Unmarshal(raw, &env); err == nil {
		message = fmt.Sprintf("HTTP %d", status)
		if env.Error != nil {
			if env.Error.Message != "" {
				message = env.Error.Message
			}
			code = env.Error.Code
			if len(env.Error.Details) > 0 {
				_ = json.Unmarshal(env.Error.Details, &details)
			}
		}
	} else {
		message = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
		code = strconv.Itoa(status)
	}

	return newAPIError(status, code, message, details, parseRetryAfter(resp.Header.Get("Retry-After")))
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func mergeQuery(u *url.URL, params any) error {
	q := u.Query()

	switch p := params.(type) {
	case url.Values:
		for k, vs := range p {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
	case map[string]string:
		for k, v := range p {
			q.Set(k, v)
		}
	case map[string]any:
		for k, v := range p {
			q.Set(k, fmt.Sprint(v))
		}
	default:
		return errors.Errorf("unsupported query parameters type %T", params)
	}

	u.RawQuery = q.Encode()
	return nil
}
