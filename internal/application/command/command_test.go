package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/persistence/jsonstore"
)

func openStore(t *testing.T) *jsonstore.Store {
	t.Helper()
	store, err := jsonstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE EXAM
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateExam(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	at := time.UnixMilli(1_700_000_000_000)
	h := NewCreateExamHandler(store.Exams()).WithClock(func() time.Time { return at })

	result, err := h.Handle(ctx, CreateExamCommand{Title: "  Deneme 7  "})
	require.NoError(t, err)
	assert.Equal(t, "Deneme 7", result.Exam.Title)
	assert.Equal(t, "1700000000000", result.Exam.ID)
	assert.Equal(t, at.UnixMilli(), result.Exam.CreatedAt)

	exams, err := store.Exams().All(ctx)
	require.NoError(t, err)
	assert.Len(t, exams, 1)
}

func TestCreateExam_RejectsEmptyTitle(t *testing.T) {
	ctx := context.Background()
	h := NewCreateExamHandler(openStore(t).Exams())

	_, err := h.Handle(ctx, CreateExamCommand{Title: "   "})
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE EXAM
// ══════════════════════════════════════════════════════════════════════════════

func TestDeleteExam_Cascade(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	uploads := t.TempDir()

	photo1 := filepath.Join(uploads, "p1.jpg")
	photo2 := filepath.Join(uploads, "p2.jpg")
	require.NoError(t, os.WriteFile(photo1, []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(photo2, []byte("jpeg"), 0o644))

	require.NoError(t, store.Exams().Append(ctx, exam.Exam{ID: "e1", Title: "Deneme 1"}))
	require.NoError(t, store.Exams().Append(ctx, exam.Exam{ID: "e2", Title: "Deneme 2"}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r1", ExamID: "e1", PhotoPath: photo1}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r2", ExamID: "e1", PhotoPath: photo2}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r3", ExamID: "e2"}))

	h := NewDeleteExamHandler(store.Exams(), store.Reports(), nil)
	result, err := h.Handle(ctx, DeleteExamCommand{ExamID: "e1"})
	require.NoError(t, err)
	assert.True(t, result.RemovedExam)
	assert.Equal(t, 2, result.RemovedReports)

	exams, _ := store.Exams().All(ctx)
	require.Len(t, exams, 1)
	assert.Equal(t, "e2", exams[0].ID)

	reports, _ := store.Reports().All(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, "r3", reports[0].ID)

	_, err = os.Stat(photo1)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(photo2)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteExam_UnknownExam(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	h := NewDeleteExamHandler(store.Exams(), store.Reports(), nil)
	result, err := h.Handle(ctx, DeleteExamCommand{ExamID: "missing"})
	require.NoError(t, err)
	assert.False(t, result.RemovedExam)
	assert.Zero(t, result.RemovedReports)
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST
// ══════════════════════════════════════════════════════════════════════════════

type fakeSender struct {
	sent   []int64
	texts  []string
	failOn map[int64]bool
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if f.failOn[chatID] {
		return errors.New("blocked")
	}
	f.sent = append(f.sent, chatID)
	f.texts = append(f.texts, text)
	return nil
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "1", StudentNumber: "1001", FullName: "A"}))
	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "2", StudentNumber: "1002", FullName: "B"}))
	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "3", StudentNumber: "1003", FullName: "C"}))

	sender := &fakeSender{failOn: map[int64]bool{2: true}}
	h := NewBroadcastHandler(store.Students(), sender, nil).WithDelay(time.Millisecond)

	result, err := h.Handle(ctx, BroadcastCommand{Message: "Sınav sonuçları açıklandı."})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)

	require.NotEmpty(t, sender.texts)
	assert.Equal(t, "📢 Yönetici duyurusu:\n\nSınav sonuçları açıklandı.", sender.texts[0])
}

func TestBroadcast_RejectsEmptyMessage(t *testing.T) {
	ctx := context.Background()
	h := NewBroadcastHandler(openStore(t).Students(), &fakeSender{}, nil)

	_, err := h.Handle(ctx, BroadcastCommand{Message: " "})
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

// ══════════════════════════════════════════════════════════════════════════════
// SET USERNAME
// ══════════════════════════════════════════════════════════════════════════════

func TestSetUsername(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "42", StudentNumber: "1001", FullName: "Ada"}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r1", UserID: "42", ExamID: "e1"}))
	require.NoError(t, store.Reports().Append(ctx, exam.Report{ID: "r2", UserID: "7", ExamID: "e1"}))

	h := NewSetUsernameHandler(store.Students(), store.Reports(), nil)

	// Explicit argument wins over the platform handle.
	result, err := h.Handle(ctx, SetUsernameCommand{UserID: "42", Explicit: "@ada_l", PlatformHandle: "other"})
	require.NoError(t, err)
	assert.Equal(t, SetUsernameUpdated, result.Status)
	assert.Equal(t, "ada_l", result.Username)
	assert.Equal(t, 1, result.Backfilled)

	stu, err := store.Students().GetByUserID(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, stu.Username)
	assert.Equal(t, "ada_l", *stu.Username)

	// Same value again is a no-op, case-insensitively.
	result, err = h.Handle(ctx, SetUsernameCommand{UserID: "42", Explicit: "@ADA_L"})
	require.NoError(t, err)
	assert.Equal(t, SetUsernameUnchanged, result.Status)

	// Fallback to the platform handle when no argument given.
	result, err = h.Handle(ctx, SetUsernameCommand{UserID: "42", PlatformHandle: "ada_lovelace"})
	require.NoError(t, err)
	assert.Equal(t, SetUsernameUpdated, result.Status)
	assert.Equal(t, "ada_lovelace", result.Username)
	// Past reports already carry a username and stay untouched.
	assert.Zero(t, result.Backfilled)
}

func TestSetUsername_InvalidAndUnregistered(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	h := NewSetUsernameHandler(store.Students(), store.Reports(), nil)

	result, err := h.Handle(ctx, SetUsernameCommand{UserID: "42", Explicit: "x"})
	require.NoError(t, err)
	assert.Equal(t, SetUsernameNotRegistered, result.Status)

	require.NoError(t, store.Students().Save(ctx, student.Student{UserID: "42", StudentNumber: "1001", FullName: "Ada"}))

	// Too short and no platform handle either.
	result, err = h.Handle(ctx, SetUsernameCommand{UserID: "42", Explicit: "ab"})
	require.NoError(t, err)
	assert.Equal(t, SetUsernameInvalid, result.Status)
}
