package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-service/internal/backoff"
	"intake-service/internal/syncerr"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{
		BaseURL:  url,
		APIKey:   "secret-key",
		SourceID: 9,
		Tags:     []string{"intake", "referral"},
		Backoff:  backoff.Policy{MaxRetries: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseURL: "https://crm.example.com"})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))

	_, err = NewClient(ClientOptions{APIKey: "k"})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
}

func TestCreateLeadSendsBasicAuthAndDefaults(t *testing.T) {
	var gotLead Lead
	var gotUser, gotPass string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotLead))
		fmt.Fprint(w, `{"id": 4711}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.CreateLead(context.Background(), Lead{Name: "Alex Rivera", Email: "alex@example.org"})
	require.NoError(t, err)

	assert.Equal(t, "4711", id)
	assert.Equal(t, "/api/v1/leads", gotPath)
	// API key travels as the Basic username with an empty password.
	assert.Equal(t, "secret-key", gotUser)
	assert.Equal(t, "", gotPass)
	// Configured defaults are stamped onto the lead.
	assert.Equal(t, 9, gotLead.SourceID)
	assert.Equal(t, []string{"intake", "referral"}, gotLead.Tags)
}

func TestCreateLeadKeepsExplicitSourceAndTags(t *testing.T) {
	var gotLead Lead
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotLead))
		fmt.Fprint(w, `{"id": "abc"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.CreateLead(context.Background(), Lead{Name: "X", SourceID: 77, Tags: []string{"priority"}})
	require.NoError(t, err)

	assert.Equal(t, "abc", id)
	assert.Equal(t, 77, gotLead.SourceID)
	assert.Equal(t, []string{"priority"}, gotLead.Tags)
}

func TestCreateLeadRetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.CreateLead(context.Background(), Lead{Name: "X"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, 3, calls)
}

func TestCreateLeadDoesNotRetryRejection(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error": "email invalid"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateLead(context.Background(), Lead{Name: "X"})
	require.Error(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, syncerr.KindRemoteRejection, syncerr.KindOf(err))
	assert.Contains(t, err.Error(), "422")
}

func TestCreateLeadMissingIDIsValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateLead(context.Background(), Lead{Name: "X"})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
}
