// internal/crm/client.go
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"intake-service/internal/backoff"
	"intake-service/internal/syncerr"
)

// Lead is the flat payload the CRM lead-creation endpoint accepts.
type Lead struct {
	Name         string   `json:"name"`
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Description  string   `json:"description,omitempty"`
	SourceID     int      `json:"source_id,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// ClientOptions configure the CRM client. APIKey and BaseURL are required.
type ClientOptions struct {
	BaseURL  string
	APIKey   string
	SourceID int
	Tags     []string
	Timeout  time.Duration
	Backoff  backoff.Policy
}

// Client creates leads in the CRM over plain REST. It shares the board client's retry
// and classification discipline, parameterized for this API's shapes: HTTP Basic with
// the API key as username, 429 + Retry-After for rate limiting, and X-RateLimit-*
// headers read for observability only.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sourceID   int
	tags       []string
	policy     backoff.Policy
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.APIKey == "" {
		return nil, syncerr.New(syncerr.KindConfiguration, "crm.client", "missing CRM API key")
	}
	if opts.BaseURL == "" {
		return nil, syncerr.New(syncerr.KindConfiguration, "crm.client", "missing CRM base URL")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := opts.Backoff
	if policy.MaxRetries == 0 && policy.Initial == 0 {
		policy = backoff.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		sourceID:   opts.SourceID,
		tags:       opts.Tags,
		policy:     policy,
	}, nil
}

// DefaultSourceID is the configured numeric source/status id stamped on every lead.
func (c *Client) DefaultSourceID() int {
	return c.sourceID
}

// DefaultTags is the configured tag list stamped on every lead.
func (c *Client) DefaultTags() []string {
	return c.tags
}

// CreateLead submits one lead and returns its external id.
func (c *Client) CreateLead(ctx context.Context, lead Lead) (string, error) {
	const op = "crm.create_lead"
	if lead.SourceID == 0 {
		lead.SourceID = c.sourceID
	}
	if len(lead.Tags) == 0 {
		lead.Tags = c.tags
	}
	body, err := json.Marshal(lead)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindValidation, op, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		id, err := c.doOnce(ctx, op, body)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !syncerr.IsTransient(err) || attempt == c.policy.MaxRetries {
			break
		}
		delay := c.policy.Delay(attempt)
		if hint := syncerr.RetryAfterOf(err); hint > 0 {
			delay = hint
			if c.policy.Max > 0 && delay > c.policy.Max {
				delay = c.policy.Max
			}
		}
		log.Printf("⏳ [CRM] %s attempt %d failed (%v) → retrying in %v", op, attempt+1, err, delay)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return "", syncerr.Wrap(syncerr.KindTransient, op, err)
		}
	}
	return "", lastErr
}

func (c *Client) doOnce(ctx context.Context, op string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/leads", bytes.NewReader(body))
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindTransient, op, err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		log.Printf("📊 [CRM] Rate limit remaining: %s (limit %s)", remaining, resp.Header.Get("X-RateLimit-Limit"))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		se := syncerr.New(syncerr.KindTransient, op, "rate limited by CRM API")
		se.StatusCode = resp.StatusCode
		se.RetryAfter = retryAfterHint(resp.Header.Get("Retry-After"))
		return "", se
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindTransient, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := syncerr.New(syncerr.KindRemoteRejection, op, fmt.Sprintf("CRM API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
		se.StatusCode = resp.StatusCode
		return "", se
	}

	var payload struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", syncerr.Wrap(syncerr.KindValidation, op, err)
	}
	if payload.ID.String() == "" {
		return "", syncerr.New(syncerr.KindValidation, op, "response missing lead id")
	}
	return payload.ID.String(), nil
}

func retryAfterHint(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
