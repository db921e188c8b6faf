package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobportal/internal/model"
	"jobportal/internal/portaltest"
)

func newTestClient(t *testing.T, srv *portaltest.Server) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: srv.BaseURL(), Session: NewSession(srv.Token)})
	require.NoError(t, err)
	return c
}

func seedJobs(srv *portaltest.Server, n int, title string) {
	for i := 1; i <= n; i++ {
		srv.SeedJobs("jobs", model.Job{ID: fmt.Sprintf("%s-%d", title, i), Title: title + " " + fmt.Sprint(i), Status: "open"})
	}
}

func TestListJobs_SendsQueryAndDecodesPage(t *testing.T) {
	srv := portaltest.New(t)
	seedJobs(srv, 10, "developer")
	c := newTestClient(t, srv)

	page, err := c.ListJobs(context.Background(), ResourceJobs, model.ListQuery{SearchText: " developer ", StatusFilter: "All", Page: 2, PageSize: 4})
	require.NoError(t, err)

	assert.Len(t, page.Items, 4)
	assert.Equal(t, 10, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, "developer-5", page.Items[0].ID)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/jobs", calls[0].Path)
	assert.Equal(t, "developer", calls[0].Query.Get("search"))
	assert.Equal(t, "", calls[0].Query.Get("status"))
	assert.Equal(t, "2", calls[0].Query.Get("page"))
	assert.Equal(t, "4", calls[0].Query.Get("limit"))
}

func TestMissingToken_FailsBeforeRequest(t *testing.T) {
	srv := portaltest.New(t)
	c, err := New(Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	_, err = c.ListJobs(context.Background(), ResourceJobs, model.ListQuery{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
	assert.Contains(t, err.Error(), "missing bearer token")
	assert.Empty(t, srv.Calls())
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   model.ErrorKind
	}{
		{http.StatusBadRequest, model.KindValidation},
		{http.StatusUnauthorized, model.KindAuth},
		{http.StatusNotFound, model.KindNotFound},
		{http.StatusInternalServerError, model.KindServer},
		{http.StatusBadGateway, model.KindServer},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := portaltest.New(t)
			c := newTestClient(t, srv)
			srv.FailNext(http.MethodGet, "/jobs", tc.status, "boom")

			_, err := c.ListJobs(context.Background(), ResourceJobs, model.ListQuery{})
			require.Error(t, err)
			assert.Equal(t, tc.want, model.KindOf(err))

			var perr *model.Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.status, perr.Status)
			assert.Equal(t, "boom", perr.Message)
		})
	}
}

func TestUnauthorized_ClearsSession(t *testing.T) {
	srv := portaltest.New(t)
	session := NewSession("stale-token")
	cleared := 0
	session.OnClear(func() { cleared++ })
	c, err := New(Options{BaseURL: srv.BaseURL(), Session: session})
	require.NoError(t, err)

	_, err = c.ListApplications(context.Background(), model.ListQuery{})
	require.True(t, model.IsAuth(err))

	_, ok := session.Token()
	assert.False(t, ok)
	assert.Equal(t, 1, cleared)

	_, err = c.ListApplications(context.Background(), model.ListQuery{})
	require.True(t, model.IsAuth(err))
	assert.Equal(t, 1, srv.CallCount(http.MethodGet, "/applications"), "second call must fail before reaching the server")
}

func TestTransportFailures(t *testing.T) {
	t.Run("network", func(t *testing.T) {
		c, err := New(Options{BaseURL: "http://127.0.0.1:1/api", Session: NewSession("t")})
		require.NoError(t, err)
		_, err = c.ListJobs(context.Background(), ResourceJobs, model.ListQuery{})
		assert.Equal(t, model.KindNetwork, model.KindOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer slow.Close()
		defer close(block)

		c, err := New(Options{BaseURL: slow.URL, Session: NewSession("t")})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = c.ListJobs(ctx, ResourceJobs, model.ListQuery{})
		assert.Equal(t, model.KindTimeout, model.KindOf(err))
	})
}

func TestMalformedEnvelope_IsServerError(t *testing.T) {
	bodies := []string{
		`{"data": []}`,
		`{"items": "nope", "total": 3}`,
		`{"items": [], "total": -1}`,
		`not json`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c, err := New(Options{BaseURL: srv.URL, Session: NewSession("t")})
			require.NoError(t, err)
			_, err = c.ListJobs(context.Background(), ResourceJobs, model.ListQuery{})
			assert.Equal(t, model.KindServer, model.KindOf(err))
		})
	}
}

func TestUpdateStatus_SendsInterviewDate(t *testing.T) {
	srv := portaltest.New(t)
	srv.SeedApplications(model.ApplicationRecord{ID: "a-1", CandidateID: "c-1", JobID: "j-1", Status: model.StatusShortlisted})
	c := newTestClient(t, srv)

	when := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	rec, err := c.UpdateStatus(context.Background(), "a-1", model.StatusInterviewScheduled, &when)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInterviewScheduled, rec.Status)
	require.NotNil(t, rec.InterviewDate)
	assert.True(t, rec.InterviewDate.Equal(when))

	_, err = c.UpdateStatus(context.Background(), "missing", model.StatusRejected, nil)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSubResourceRoundTrip(t *testing.T) {
	srv := portaltest.New(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.CreateProfile(ctx, "candidates", map[string]any{"fields": map[string]string{"name": "Ada"}}, &created))
	require.NotEmpty(t, created.ID)

	var raw json.RawMessage
	require.NoError(t, c.CreateSubResource(ctx, "candidates", created.ID, "skills", map[string]string{"name": "Go"}, &raw))

	var entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "Go", entry.Name)
	assert.Len(t, srv.ProfileEntries("candidates", created.ID, "skills"), 1)

	require.NoError(t, c.DeleteSubResource(ctx, "candidates", created.ID, "skills", entry.ID))
	assert.Empty(t, srv.ProfileEntries("candidates", created.ID, "skills"))

	err := c.DeleteSubResource(ctx, "candidates", created.ID, "skills", entry.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestParseBaseURL(t *testing.T) {
	u, err := ParseBaseURL("https://portal.example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/api", u.String())

	for _, bad := range []string{"", "ftp://x", "portal.example.com", "http://"} {
		_, err := ParseBaseURL(bad)
		assert.Error(t, err, bad)
	}
}
