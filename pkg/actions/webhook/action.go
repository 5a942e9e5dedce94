// Package webhook provides the send_webhook action, which POSTs the trigger
// event (or a templated body) to an operator-supplied URL.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/storeflow/storeflow/pkg/template"
	"github.com/storeflow/storeflow/pkg/triggers"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1024 * 1024
)

var (
	ErrURLRequired    = errors.New("webhook url is required")
	ErrMethodInvalid  = errors.New("invalid webhook method")
	ErrServerRejected = errors.New("webhook endpoint returned an error status")
)

// Action delivers the event to an external HTTP endpoint.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration

	client *http.Client
}

func NewAction(params map[string]any) (*Action, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, ErrURLRequired
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	method = strings.ToUpper(method)

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrMethodInvalid, method)
	}

	headers := make(map[string]string)

	if headersConfig, ok := params["headers"].(map[string]any); ok {
		for key, value := range headersConfig {
			if strVal, ok := value.(string); ok {
				headers[key] = strVal
			}
		}
	}

	body, _ := params["body"].(string)

	timeout := defaultTimeout
	if seconds, ok := params["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (a *Action) Execute(ctx context.Context, event triggers.Event, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "webhook_action")
	logger.InfoContext(ctx, "Executing webhook action", "url", a.URL, "method", a.Method)

	url, err := template.RenderString(a.URL, event)
	if err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}

	body, err := a.buildBody(event)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range a.Headers {
		rendered, err := template.RenderString(value, event)
		if err != nil {
			return nil, fmt.Errorf("invalid header %q template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrServerRejected, resp.StatusCode)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
	}

	var parsed any
	if json.Unmarshal(responseBody, &parsed) == nil {
		result["body"] = parsed
	} else {
		result["body"] = string(responseBody)
	}

	return result, nil
}

// buildBody renders the configured body template, defaulting to the full
// event envelope when none is configured.
func (a *Action) buildBody(event triggers.Event) (string, error) {
	if a.Body == "" {
		encoded, err := json.Marshal(event)
		if err != nil {
			return "", err
		}

		return string(encoded), nil
	}

	return template.RenderString(a.Body, event)
}
