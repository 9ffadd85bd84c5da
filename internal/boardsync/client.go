// internal/boardsync/client.go
package boardsync

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

// ClientOptions configure the board API client. Token and APIURL are required; the rest
// fall back to sane defaults.
type ClientOptions struct {
	APIURL     string
	Token      string
	APIVersion string
	AppURL     string // base of human-facing item links
	Timeout    time.Duration
	Backoff    backoff.Policy
}

// Client is the thin RPC layer over the board API's GraphQL-style endpoint. It owns
// response classification, the bounded retry loop, and the single schema-drift repair
// pass; everything above it deals in typed values and typed errors only.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	apiVersion string
	appURL     string
	policy     backoff.Policy
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Token == "" {
		return nil, syncerr.New(syncerr.KindConfiguration, "board.client", "missing board API token")
	}
	if opts.APIURL == "" {
		return nil, syncerr.New(syncerr.KindConfiguration, "board.client", "missing board API URL")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := opts.Backoff
	if policy.MaxRetries == 0 && policy.Initial == 0 {
		policy = backoff.Default()
	}
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-01"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     opts.APIURL,
		token:      opts.Token,
		apiVersion: apiVersion,
		appURL:     strings.TrimSuffix(opts.AppURL, "/"),
		policy:     policy,
	}, nil
}

// Column is one remote board column as reported by the schema listing.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Item is a created or updated board item.
type Item struct {
	ID  string
	URL string
}

// ListColumns fetches the board's current schema. Used by the provisioner to verify
// cached ids and to title-match fields created elsewhere.
func (c *Client) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	const query = `query ($boardID: [ID!]) { boards (ids: $boardID) { columns { id title type } } }`
	data, err := c.execute(ctx, "board.list_columns", query, map[string]any{"boardID": []string{boardID}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Boards []struct {
			Columns []Column `json:"columns"`
		} `json:"boards"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, syncerr.Wrap(syncerr.KindValidation, "board.list_columns", err)
	}
	if len(payload.Boards) == 0 {
		return nil, syncerr.New(syncerr.KindValidation, "board.list_columns", fmt.Sprintf("board %s not found in response", boardID))
	}
	return payload.Boards[0].Columns, nil
}

// CreateColumn provisions a remote column for one catalog field and returns its id.
func (c *Client) CreateColumn(ctx context.Context, boardID string, def FieldDefinition) (string, error) {
	const query = `mutation ($boardID: ID!, $title: String!, $columnType: ColumnType!, $defaults: JSON) {
		create_column (board_id: $boardID, title: $title, column_type: $columnType, defaults: $defaults) { id }
	}`
	vars := map[string]any{
		"boardID":    boardID,
		"title":      def.Title,
		"columnType": columnTypeFor(def.Kind),
	}
	if len(def.Options) > 0 {
		defaults, err := json.Marshal(map[string]any{"labels": def.Options})
		if err != nil {
			return "", syncerr.Wrap(syncerr.KindValidation, "board.create_column", err)
		}
		vars["defaults"] = string(defaults)
	}
	data, err := c.execute(ctx, "board.create_column", query, vars)
	if err != nil {
		return "", err
	}
	var payload struct {
		CreateColumn struct {
			ID string `json:"id"`
		} `json:"create_column"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", syncerr.Wrap(syncerr.KindValidation, "board.create_column", err)
	}
	if payload.CreateColumn.ID == "" {
		return "", syncerr.New(syncerr.KindValidation, "board.create_column", "response missing column id")
	}
	return payload.CreateColumn.ID, nil
}

// CreateItem creates a board item carrying the mapped column values.
func (c *Client) CreateItem(ctx context.Context, boardID, groupID, name string, values map[string]ColumnValue) (Item, error) {
	const query = `mutation ($boardID: ID!, $groupID: String, $name: String!, $columnValues: JSON) {
		create_item (board_id: $boardID, group_id: $groupID, item_name: $name, column_values: $columnValues) { id }
	}`
	vars := map[string]any{"boardID": boardID, "groupID": groupID, "name": name}
	data, err := c.sendWithDriftRepair(ctx, "board.create_item", query, vars, values)
	if err != nil {
		return Item{}, err
	}
	var payload struct {
		CreateItem struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Item{}, syncerr.Wrap(syncerr.KindValidation, "board.create_item", err)
	}
	if payload.CreateItem.ID == "" {
		return Item{}, syncerr.New(syncerr.KindValidation, "board.create_item", "response missing item id")
	}
	return Item{ID: payload.CreateItem.ID, URL: c.ItemURL(boardID, payload.CreateItem.ID)}, nil
}

// UpdateItem replaces the item's column values with the full mapped set.
func (c *Client) UpdateItem(ctx context.Context, boardID, itemID string, values map[string]ColumnValue) error {
	const query = `mutation ($boardID: ID!, $itemID: ID!, $columnValues: JSON!) {
		change_multiple_column_values (board_id: $boardID, item_id: $itemID, column_values: $columnValues) { id }
	}`
	vars := map[string]any{"boardID": boardID, "itemID": itemID}
	_, err := c.sendWithDriftRepair(ctx, "board.update_item", query, vars, values)
	return err
}

// ItemURL builds the human-facing link for a board item.
func (c *Client) ItemURL(boardID, itemID string) string {
	if c.appURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/boards/%s/pulses/%s", c.appURL, boardID, itemID)
}

// sendWithDriftRepair executes an item mutation and, when the remote rejects an option
// label it no longer knows, performs exactly one repair pass: strip every select-valued
// column and resubmit. A failed repair propagates the original error.
func (c *Client) sendWithDriftRepair(ctx context.Context, op, query string, vars map[string]any, values map[string]ColumnValue) (json.RawMessage, error) {
	encoded, err := encodeColumnValues(values)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindValidation, op, err)
	}
	vars["columnValues"] = encoded

	data, origErr := c.execute(ctx, op, query, vars)
	if origErr == nil || !syncerr.IsSchemaDrift(origErr) {
		return data, origErr
	}

	stripped := stripSelectValues(values)
	if len(stripped) == len(values) {
		return nil, origErr
	}
	log.Printf("⚠️ [BOARD] %s rejected a select label that no longer exists; resubmitting without select values (manual correction needed on the board): %v", op, origErr)

	encoded, err = encodeColumnValues(stripped)
	if err != nil {
		return nil, origErr
	}
	vars["columnValues"] = encoded
	data, repairErr := c.execute(ctx, op, query, vars)
	if repairErr != nil {
		return nil, origErr
	}
	return data, nil
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// execute runs one GraphQL call through the retry loop. Transient failures (network,
// 429) are retried with bounded exponential backoff, honoring a Retry-After hint when
// the remote sends one; everything else fails immediately.
func (c *Client) execute(ctx context.Context, op, query string, vars map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindValidation, op, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		data, err := c.doOnce(ctx, op, body)
		if err == nil {
			return data, nil
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
		log.Printf("⏳ [BOARD] %s attempt %d failed (%v) → retrying in %v", op, attempt+1, err, delay)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return nil, syncerr.Wrap(syncerr.KindTransient, op, err)
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, op string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)
	req.Header.Set("API-Version", c.apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindTransient, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		se := syncerr.New(syncerr.KindTransient, op, "rate limited by board API")
		se.StatusCode = resp.StatusCode
		se.RetryAfter = retryAfterHint(resp.Header.Get("Retry-After"))
		return nil, se
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindTransient, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := syncerr.New(syncerr.KindRemoteRejection, op, fmt.Sprintf("board API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
		se.StatusCode = resp.StatusCode
		return nil, se
	}

	var payload struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, syncerr.Wrap(syncerr.KindValidation, op, err)
	}
	// The board API reports failures inside a 200 as an errors array; normalize both
	// transports into the same error type.
	if len(payload.Errors) > 0 {
		msg := payload.Errors[0].Message
		if isDriftMessage(msg) {
			return nil, syncerr.New(syncerr.KindSchemaDrift, op, msg)
		}
		return nil, syncerr.New(syncerr.KindRemoteRejection, op, msg)
	}
	return payload.Data, nil
}

// isDriftMessage recognizes the remote's unknown-select-label rejection. The match is a
// documented error-shape contract with the board API; there is no structured code for it.
func isDriftMessage(msg string) bool {
	l := strings.ToLower(msg)
	if !strings.Contains(l, "label") {
		return false
	}
	return strings.Contains(l, "does not exist") || strings.Contains(l, "doesn't exist")
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
