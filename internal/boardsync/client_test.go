package boardsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-service/internal/backoff"
	"intake-service/internal/syncerr"
)

func fastPolicy() backoff.Policy {
	return backoff.Policy{MaxRetries: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{
		APIURL:  url,
		Token:   "test-token",
		AppURL:  "https://boards.example.com",
		Backoff: fastPolicy(),
	})
	require.NoError(t, err)
	return c
}

type capturedRequest struct {
	query        string
	columnValues map[string]any
	headers      http.Header
}

func decodeRequest(t *testing.T, r *http.Request) capturedRequest {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))

	cr := capturedRequest{query: body.Query, headers: r.Header.Clone()}
	if encoded, ok := body.Variables["columnValues"].(string); ok {
		_ = json.Unmarshal([]byte(encoded), &cr.columnValues)
	}
	return cr
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientOptions{APIURL: "https://api.example.com"})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))

	_, err = NewClient(ClientOptions{Token: "x"})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
}

func TestCreateItemSendsAuthHeaders(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeRequest(t, r)
		fmt.Fprint(w, `{"data": {"create_item": {"id": "123"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item, err := c.CreateItem(context.Background(), "b1", "topics", "Test Item", map[string]ColumnValue{
		"col1": TextValue{Text: "hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "123", item.ID)
	assert.Equal(t, "https://boards.example.com/boards/b1/pulses/123", item.URL)
	assert.Equal(t, "test-token", captured.headers.Get("Authorization"))
	assert.Equal(t, "2024-01", captured.headers.Get("API-Version"))
	assert.Equal(t, "hello", captured.columnValues["col1"])
}

func TestExecuteRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": {"boards": [{"columns": [{"id": "c1", "title": "First Name", "type": "text"}]}]}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	columns, err := c.ListColumns(context.Background(), "b1")
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	require.Len(t, columns, 1)
	assert.Equal(t, "c1", columns[0].ID)
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListColumns(context.Background(), "b1")
	require.Error(t, err)

	// Initial attempt + MaxRetries
	assert.Equal(t, 4, calls)
	assert.True(t, syncerr.IsTransient(err))
}

func TestExecuteDoesNotRetryRemoteRejection(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "bad token"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListColumns(context.Background(), "b1")
	require.Error(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, syncerr.KindRemoteRejection, syncerr.KindOf(err))
}

func TestErrorsArrayInsideOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors": [{"message": "ColumnValueException: something else"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateItem(context.Background(), "b1", "g1", "Item", nil)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindRemoteRejection, syncerr.KindOf(err))
}

func TestDriftRepairStripsSelectValuesOnce(t *testing.T) {
	var requests []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, decodeRequest(t, r))
		if len(requests) == 1 {
			fmt.Fprint(w, `{"errors": [{"message": "Label 'Neighbor' does not exist on this column"}]}`)
			return
		}
		fmt.Fprint(w, `{"data": {"create_item": {"id": "999"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item, err := c.CreateItem(context.Background(), "b1", "g1", "Item", map[string]ColumnValue{
		"text_col":   TextValue{Text: "keep me"},
		"status_col": SelectValue{Label: "Neighbor"},
		"drop_col":   MultiSelectValue{Labels: []string{"A"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "999", item.ID)

	require.Len(t, requests, 2)
	assert.Contains(t, requests[0].columnValues, "status_col")
	// Repair pass resubmits without any option-constrained values.
	assert.Contains(t, requests[1].columnValues, "text_col")
	assert.NotContains(t, requests[1].columnValues, "status_col")
	assert.NotContains(t, requests[1].columnValues, "drop_col")
}

func TestDriftRepairFailurePropagatesOriginalError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"errors": [{"message": "Label 'X' doesn't exist"}]}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.UpdateItem(context.Background(), "b1", "42", map[string]ColumnValue{
		"text_col":   TextValue{Text: "x"},
		"status_col": SelectValue{Label: "X"},
	})
	require.Error(t, err)
	assert.True(t, syncerr.IsSchemaDrift(err), "the original drift error should surface, got: %v", err)
}

func TestDriftWithNothingToStripFailsImmediately(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"errors": [{"message": "Label 'X' does not exist"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.UpdateItem(context.Background(), "b1", "42", map[string]ColumnValue{
		"text_col": TextValue{Text: "no selects here"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no repair pass when nothing can be stripped")
}

func TestIsDriftMessage(t *testing.T) {
	assert.True(t, isDriftMessage(`Label "High" does not exist on the column`))
	assert.True(t, isDriftMessage(`label 'X' doesn't exist`))
	assert.False(t, isDriftMessage("column does not exist"))
	assert.False(t, isDriftMessage("invalid label format"))
}

func TestCreateColumnSendsDefaults(t *testing.T) {
	var captured capturedRequest
	var rawDefaults string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		captured = capturedRequest{query: body.Query}
		rawDefaults, _ = body.Variables["defaults"].(string)
		fmt.Fprint(w, `{"data": {"create_column": {"id": "newcol"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.CreateColumn(context.Background(), "b1", FieldDefinition{
		Slug: "urgency", Title: "Urgency", Kind: KindStatus, Options: []string{"Low", "Medium", "High"},
	})
	require.NoError(t, err)
	assert.Equal(t, "newcol", id)
	assert.Contains(t, captured.query, "create_column")

	var defaults map[string]any
	require.NoError(t, json.Unmarshal([]byte(rawDefaults), &defaults))
	assert.Equal(t, []any{"Low", "Medium", "High"}, defaults["labels"])
}
