package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterServer(t *testing.T, rows [][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-1/values/")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_ = json.NewEncoder(w).Encode(valuesResponse{Range: "liste!A:D", Values: rows})
	}))
}

func newTestClient(baseURL string) *Client {
	cfg := DefaultClientConfig("test-key", "sheet-1")
	cfg.BaseURL = baseURL
	return NewClient(cfg)
}

func TestStudentNameByNumber_Found(t *testing.T) {
	srv := rosterServer(t, [][]string{
		{"no", "sınıf", "ad", "soyad"},
		{"1001", "12-A", " Ada ", " Lovelace "},
		{"1002", "12-B", "Alan", "Turing"},
	})
	defer srv.Close()

	client := newTestClient(srv.URL)
	name, err := client.StudentNameByNumber(context.Background(), " 1001 ")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)
}

func TestStudentNameByNumber_NotFound(t *testing.T) {
	srv := rosterServer(t, [][]string{{"1001", "", "Ada", "Lovelace"}})
	defer srv.Close()

	client := newTestClient(srv.URL)
	name, err := client.StudentNameByNumber(context.Background(), "9999")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestStudentNameByNumber_EmptyNumberShortCircuits(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1") // must never be reached
	name, err := client.StudentNameByNumber(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestStudentNameByNumber_SparseRow(t *testing.T) {
	// Row with the number but no name columns resolves to "".
	srv := rosterServer(t, [][]string{{"1001"}})
	defer srv.Close()

	client := newTestClient(srv.URL)
	name, err := client.StudentNameByNumber(context.Background(), "1001")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestStudentNameByNumber_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(valuesResponse{Values: [][]string{{"1001", "", "Ada", "Lovelace"}}})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	name, err := client.StudentNameByNumber(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStudentNameByNumber_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.StudentNameByNumber(context.Background(), "1001")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
