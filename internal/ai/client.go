package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/llmgram/llmgram/internal/logger"
)

// Adapter wraps the actual network call for one provider. Implementations
// own auth header construction and endpoint URLs; they never interpret the
// response body. Every failure leaves Send as a *TransportError.
type Adapter interface {
	ID() string
	Send(ctx context.Context, request ProviderRequest) (*RawResponse, error)
	ModelInfo() *ModelInfo
}

type baseHTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

func newBaseHTTPClient(client *http.Client, baseURL, apiKey string, requestsPerMin int, log logger.Logger) *baseHTTPClient {
	// Outbound smoothing; candidacy is decided upstream by the stats
	// tracker's sliding window.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMin)), requestsPerMin)
	}
	return &baseHTTPClient{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: limiter,
		logger:  log,
	}
}

func (c *baseHTTPClient) logRequest(req *http.Request, body []byte) {
	var bodyData any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &bodyData); err == nil {
			if m, ok := bodyData.(map[string]any); ok {
				truncateLargeFields(m)
			}
		}
	}

	logData := map[string]any{
		"url":    req.URL.String(),
		"method": req.Method,
		"body":   bodyData,
	}

	jsonData, err := json.Marshal(logData)
	if err != nil {
		c.logger.WithError(err).WithField("data", logData).Error("Fail marshal json for request")
	}
	c.logger.WithField("request", string(jsonData)).Debug("HTTP request")
}

func truncateLargeFields(data map[string]any) {
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if (k == "url" || k == "content" || k == "text") && len(val) > 1000 {
				data[k] = val[:1000] + "...[truncated]"
			}
		case map[string]any:
			truncateLargeFields(val)
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					truncateLargeFields(m)
				}
			}
		}
	}
}

func (c *baseHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	if c.baseURL != "" && !strings.HasPrefix(req.URL.String(), "http") {
		req.URL, _ = url.Parse(fmt.Sprintf(
			"%s/%s",
			strings.TrimSuffix(c.baseURL, "/"),
			strings.TrimPrefix(req.URL.String(), "/"),
		))
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	c.logRequest(req, body)

	return c.client.Do(req)
}
