package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_EncodesFiltersAndAuth(t *testing.T) {
	var gotPath, gotQuery, gotKey, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"abc"},{"id":"def"}]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")

	var rows []struct {
		ID string `json:"id"`
	}
	err := client.Select(context.Background(), "scraped_leads", Query{
		Filters: []Filter{Eq("imported", "false")},
		Order:   "created_at.asc",
		Limit:   100,
		Offset:  200,
	}, &rows)

	require.NoError(t, err)
	assert.Equal(t, "/rest/v1/scraped_leads", gotPath)
	assert.Contains(t, gotQuery, "imported=eq.false")
	assert.Contains(t, gotQuery, "order=created_at.asc")
	assert.Contains(t, gotQuery, "limit=100")
	assert.Contains(t, gotQuery, "offset=200")
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	require.Len(t, rows, 2)
	assert.Equal(t, "abc", rows[0].ID)
}

func TestCount_ParsesContentRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "0-24/1234")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")

	count, err := client.Count(context.Background(), "scraped_leads", Eq("imported", "false"))
	require.NoError(t, err)
	assert.Equal(t, 1234, count)
}

func TestCount_RejectsUnknownTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-24/*")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")

	_, err := client.Count(context.Background(), "scraped_leads")
	assert.Error(t, err)
}

func TestInsert_UpsertHeader(t *testing.T) {
	var gotPrefer string
	var gotBody []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")

	rows := []map[string]interface{}{{"id": "x", "owner_name": "Jane"}}
	require.NoError(t, client.Insert(context.Background(), "foreclosure_leads", rows, true))
	assert.Equal(t, "return=minimal,resolution=merge-duplicates", gotPrefer)
	require.Len(t, gotBody, 1)
	assert.Equal(t, "Jane", gotBody[0]["owner_name"])

	require.NoError(t, client.Insert(context.Background(), "foreclosure_leads", rows, false))
	assert.Equal(t, "return=minimal", gotPrefer)
}

func TestUpdate_PatchesFilteredRows(t *testing.T) {
	var gotMethod, gotQuery string
	var gotFields map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotFields)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")

	err := client.Update(context.Background(), "scrape_jobs",
		[]Filter{Eq("id", "job_1")},
		map[string]interface{}{"status": "completed"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Contains(t, gotQuery, "id=eq.job_1")
	assert.Equal(t, "completed", gotFields["status"])
}

func TestRPC_DecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/claim_next_scrape_job", r.URL.Path)

		var args map[string]string
		json.NewDecoder(r.Body).Decode(&args)
		assert.Equal(t, "worker-1", args["p_worker_id"])

		io.WriteString(w, `"job_123"`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")

	var jobID string
	err := client.RPC(context.Background(), "claim_next_scrape_job",
		map[string]interface{}{"p_worker_id": "worker-1"}, &jobID)

	require.NoError(t, err)
	assert.Equal(t, "job_123", jobID)
}

func TestErrorStatusIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"message":"duplicate key"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")

	err := client.Insert(context.Background(), "foreclosure_leads", []map[string]interface{}{{"id": "x"}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestFilterHelpers(t *testing.T) {
	assert.Equal(t, Filter{Column: "imported", Value: "eq.false"}, Eq("imported", false))
	assert.Equal(t, Filter{Column: "next_scheduled_scrape", Value: "is.null"}, Is("next_scheduled_scrape", "null"))
	assert.Equal(t, Filter{Column: "consecutive_failures", Value: "lt.5"}, Lt("consecutive_failures", 5))
	assert.Equal(t, Filter{Column: "status", Value: "in.(pending,running)"}, In("status", "pending", "running"))
	assert.Equal(t, Filter{Column: "states_covered", Value: "cs.{ALL}"}, Contains("states_covered", "ALL"))
	assert.Equal(t, Filter{Column: "or", Value: "(a.is.null,a.lte.now)"}, Or("a.is.null", "a.lte.now"))
}
