package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denemerapor/exam-report-hub/internal/application/command"
	"github.com/denemerapor/exam-report-hub/internal/application/query"
	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/auth"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/persistence/jsonstore"
)

const testToken = "12345:TEST-TOKEN"

func signInitData(t *testing.T, userJSON string) string {
	t.Helper()

	fields := map[string]string{
		"auth_date": "1700000000",
		"user":      userJSON,
	}
	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(testToken))
	mac := hmac.New(sha256.New, secretMac.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func adminInitData(t *testing.T) string {
	return signInitData(t, `{"id":42,"first_name":"Ada","last_name":"Lovelace"}`)
}

type noopSender struct{}

func (noopSender) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }

func newTestServer(t *testing.T) (*Server, *jsonstore.Store) {
	t.Helper()

	store, err := jsonstore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	gate := auth.NewGate(testToken, []string{"42"}, false)
	server := NewServer(DefaultConfig(), Dependencies{
		Gate:           gate,
		CreateExam:     command.NewCreateExamHandler(store.Exams()),
		DeleteExam:     command.NewDeleteExamHandler(store.Exams(), store.Reports(), nil),
		Broadcast:      command.NewBroadcastHandler(store.Students(), noopSender{}, nil).WithDelay(0),
		ListExams:      query.NewListExamsHandler(store.Exams(), store.Reports()),
		ExamReports:    query.NewExamReportsHandler(store.Reports()),
		StudentReports: query.NewStudentReportsHandler(store.Reports()),
		StudentStats:   query.NewStudentStatsHandler(store.Students(), store.Reports()),
		AllReports:     query.NewAllReportsHandler(store.Reports()),
		Students:       store.Students(),
	})
	return server, store
}

func postJSON(t *testing.T, server *Server, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAdminAPI_RejectsBadCredentials(t *testing.T) {
	server, _ := newTestServer(t)

	// No initData at all: an absent credential is an authentication
	// failure, not a malformed request.
	rec := postJSON(t, server, "/api/admin/exams/list", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["error"])

	// Explicitly empty credential.
	rec = postJSON(t, server, "/api/admin/exams/list", map[string]any{"initData": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage signature.
	rec = postJSON(t, server, "/api/admin/exams/list", map[string]any{
		"initData": "auth_date=1700000000&hash=deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "unauthorized", body["error"])

	// Valid signature, but the caller is not on the allow-list.
	rec = postJSON(t, server, "/api/admin/exams/list", map[string]any{
		"initData": signInitData(t, `{"id":99,"first_name":"Mallory"}`),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAPI_RejectsOversizedParameters(t *testing.T) {
	server, _ := newTestServer(t)

	rec := postJSON(t, server, "/api/admin/exams", map[string]any{
		"initData": adminInitData(t),
		"title":    strings.Repeat("x", 300),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode(t, rec)["error"])
}

func TestAdminAPI_Bootstrap(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Exams().Append(ctx, exam.Exam{ID: "e1", Title: "Deneme 1", CreatedAt: 100}))
	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "7", StudentNumber: "1001", FullName: "Alan"}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r1", UserID: "7", ExamID: "e1", CreatedAt: 150}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r2", UserID: "7", ExamID: "e1", CreatedAt: 250}))

	rec := postJSON(t, server, "/api/admin/bootstrap", map[string]any{"initData": adminInitData(t)})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	user := body["user"].(map[string]any)
	assert.Equal(t, float64(42), user["id"])
	assert.Equal(t, "Ada Lovelace", user["name"])
	assert.Len(t, body["exams"], 1)

	reports := body["reports"].([]any)
	require.Len(t, reports, 2)
	newest := reports[0].(map[string]any)
	assert.Equal(t, "r2", newest["id"])
}

func TestAdminAPI_CreateListDeleteExam(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	rec := postJSON(t, server, "/api/admin/exams", map[string]any{
		"initData": adminInitData(t),
		"title":    "Deneme 7",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode(t, rec)["exam"].(map[string]any)
	examID := created["id"].(string)
	assert.Equal(t, "Deneme 7", created["title"])

	// Missing title is a 400.
	rec = postJSON(t, server, "/api/admin/exams", map[string]any{"initData": adminInitData(t)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r1", ExamID: examID}))

	rec = postJSON(t, server, "/api/admin/exams/list", map[string]any{"initData": adminInitData(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	exams := decode(t, rec)["exams"].([]any)
	require.Len(t, exams, 1)
	assert.Equal(t, float64(1), exams[0].(map[string]any)["reportCount"])

	rec = postJSON(t, server, "/api/admin/exams/delete", map[string]any{
		"initData": adminInitData(t),
		"examId":   examID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["removedExam"])
	assert.Equal(t, float64(1), body["removedReports"])

	left, err := store.Exams().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestAdminAPI_ExamAndStudentReports(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r1", UserID: "7", ExamID: "e1", CreatedAt: 100}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r2", UserID: "7", ExamID: "e2", CreatedAt: 200}))

	rec := postJSON(t, server, "/api/admin/exams/reports", map[string]any{
		"initData": adminInitData(t),
		"examId":   "e1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["reports"], 1)

	rec = postJSON(t, server, "/api/admin/studentReports", map[string]any{
		"initData": adminInitData(t),
		"userId":   "7",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	reports := decode(t, rec)["reports"].([]any)
	require.Len(t, reports, 2)
	// Newest first.
	assert.Equal(t, "r2", reports[0].(map[string]any)["id"])

	// Missing parameter.
	rec = postJSON(t, server, "/api/admin/exams/reports", map[string]any{"initData": adminInitData(t)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAPI_StudentStats(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "7", StudentNumber: "1001", FullName: "Alan"}))
	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "8", StudentNumber: "1002", FullName: "Grace"}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r1", UserID: "8", ExamID: "e1", CreatedAt: 100}))

	rec := postJSON(t, server, "/api/admin/students", map[string]any{"initData": adminInitData(t)})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	stats := body["stats"].([]any)
	require.Len(t, stats, 2)
	// The student with a report sorts before the one without.
	assert.Equal(t, "8", stats[0].(map[string]any)["userId"])

	directory := body["students"].(map[string]any)
	require.Len(t, directory, 2)
	assert.Equal(t, "Alan", directory["7"].(map[string]any)["fullName"])
}

func TestAdminAPI_Broadcast(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "7", StudentNumber: "1001", FullName: "Alan"}))

	rec := postJSON(t, server, "/api/admin/broadcast", map[string]any{
		"initData": adminInitData(t),
		"message":  "Duyuru",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, float64(0), body["failed"])

	rec = postJSON(t, server, "/api/admin/broadcast", map[string]any{"initData": adminInitData(t)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
