package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/session"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/persistence/jsonstore"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeTransport struct {
	messages  []string
	keyboards []Keyboard
	answered  []string

	downloadErr error
	downloads   int
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeTransport) SendKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	f.messages = append(f.messages, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeTransport) AnswerCallback(ctx context.Context, callbackID string) error {
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeTransport) DownloadPhoto(ctx context.Context, fileID string) (string, error) {
	f.downloads++
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return filepath.Join("uploads", fileID+".jpg"), nil
}

func (f *fakeTransport) last() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

type fakeLookup struct {
	roster map[string]string
	err    error
}

func (f *fakeLookup) StudentNameByNumber(ctx context.Context, number string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.roster[number], nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type fixture struct {
	engine    *Engine
	transport *fakeTransport
	lookup    *fakeLookup
	sessions  *memory.SessionStore
	store     *jsonstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := jsonstore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	lookup := &fakeLookup{roster: map[string]string{"1001": "Ada Lovelace"}}
	sessions := memory.NewSessionStore()

	engine := NewEngine(Config{
		Sessions:  sessions,
		Students:  store.Students(),
		Exams:     store.Exams(),
		Reports:   store.Reports(),
		Lookup:    lookup,
		Transport: transport,
		Now:       func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})

	return &fixture{
		engine:    engine,
		transport: transport,
		lookup:    lookup,
		sessions:  sessions,
		store:     store,
	}
}

func incoming(text string) Incoming {
	return Incoming{UserID: 42, ChatID: 42, Username: "ada", Text: text}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

func TestRegistration_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.StartRegistration(ctx, incoming("/start")))
	assert.Equal(t, msgAskNumber, f.transport.last())

	require.NoError(t, f.engine.HandleText(ctx, incoming("1001")))
	assert.Contains(t, f.transport.last(), "Ada Lovelace")
	require.Len(t, f.transport.keyboards, 1)

	st, ok := f.sessions.Get(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, session.StepConfirmName, st.Step)

	require.NoError(t, f.engine.HandleCallback(ctx, Incoming{
		UserID: 42, ChatID: 42, Username: "ada",
		CallbackID: "cb1", CallbackData: CallbackConfirmYes,
	}))
	assert.Equal(t, []string{"cb1"}, f.transport.answered)
	assert.Contains(t, f.transport.last(), "Kayıt tamamlandı")

	stu, err := f.store.Students().GetByUserID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "1001", stu.StudentNumber)
	assert.Equal(t, "Ada Lovelace", stu.FullName)
	require.NotNil(t, stu.Username)
	assert.Equal(t, "ada", *stu.Username)

	_, ok = f.sessions.Get(ctx, "42")
	assert.False(t, ok)
}

func TestRegistration_AlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.Students().Save(ctx, student.Student{
		UserID: "42", StudentNumber: "1001", FullName: "Ada Lovelace",
	}))

	require.NoError(t, f.engine.StartRegistration(ctx, incoming("/start")))
	assert.Contains(t, f.transport.last(), "Zaten kayıtlısın")
	_, ok := f.sessions.Get(ctx, "42")
	assert.False(t, ok)
}

func TestRegistration_NumberNotFoundStaysInStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.StartRegistration(ctx, incoming("/start")))
	require.NoError(t, f.engine.HandleText(ctx, incoming("9999")))
	assert.Equal(t, msgNumberNotFound, f.transport.last())

	st, ok := f.sessions.Get(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, session.StepAwaitNumber, st.Step)

	// Retry with a known number continues the flow.
	require.NoError(t, f.engine.HandleText(ctx, incoming("1001")))
	st, _ = f.sessions.Get(ctx, "42")
	assert.Equal(t, session.StepConfirmName, st.Step)
}

func TestRegistration_LookupFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.lookup.err = errors.New("sheets down")

	require.NoError(t, f.engine.StartRegistration(ctx, incoming("/start")))
	require.NoError(t, f.engine.HandleText(ctx, incoming("1001")))
	assert.Equal(t, msgLookupFailed, f.transport.last())

	st, ok := f.sessions.Get(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, session.StepAwaitNumber, st.Step)
}

func TestRegistration_DeclineNameRestarts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.StartRegistration(ctx, incoming("/start")))
	require.NoError(t, f.engine.HandleText(ctx, incoming("1001")))
	require.NoError(t, f.engine.HandleCallback(ctx, Incoming{
		UserID: 42, ChatID: 42, CallbackID: "cb1", CallbackData: CallbackConfirmNo,
	}))
	assert.Equal(t, msgRegistrationNo, f.transport.last())

	st, ok := f.sessions.Get(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, session.StepAwaitNumber, st.Step)

	_, err := f.store.Students().GetByUserID(ctx, "42")
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT FLOW
// ══════════════════════════════════════════════════════════════════════════════

func registerStudent(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.store.Students().Save(context.Background(), student.Student{
		UserID: "42", StudentNumber: "1001", FullName: "Ada Lovelace",
	}))
}

func TestReport_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registerStudent(t, f)
	require.NoError(t, f.store.Exams().Append(ctx, exam.Exam{ID: "e1", Title: "Deneme 1", CreatedAt: 100}))

	require.NoError(t, f.engine.StartReport(ctx, incoming("/rapor")))
	assert.Equal(t, msgChooseExam, f.transport.last())
	require.Len(t, f.transport.keyboards, 1)
	assert.Equal(t, CallbackExamPrefix+"e1", f.transport.keyboards[0][0][0].Data)

	require.NoError(t, f.engine.HandleCallback(ctx, Incoming{
		UserID: 42, ChatID: 42, CallbackID: "cb1", CallbackData: CallbackExamPrefix + "e1",
	}))
	assert.Equal(t, msgSendPhoto, f.transport.last())

	require.NoError(t, f.engine.HandlePhoto(ctx, Incoming{UserID: 42, ChatID: 42, FileID: "photo123"}))
	assert.Equal(t, msgAskReportText, f.transport.last())

	require.NoError(t, f.engine.HandleText(ctx, incoming("3. soru hatalı görünüyor.")))
	assert.Equal(t, msgReportSaved, f.transport.last())

	reports, err := f.store.Reports().All(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	rep := reports[0]
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, "42", rep.UserID)
	assert.Equal(t, "1001", rep.StudentNumber)
	assert.Equal(t, "Ada Lovelace", rep.StudentName)
	assert.Equal(t, "e1", rep.ExamID)
	require.NotNil(t, rep.ExamTitle)
	assert.Equal(t, "Deneme 1", *rep.ExamTitle)
	assert.Equal(t, filepath.Join("uploads", "photo123.jpg"), rep.PhotoPath)
	assert.Equal(t, "3. soru hatalı görünüyor.", rep.ReportText)
	assert.Equal(t, int64(1_700_000_000_000), rep.CreatedAt)
	require.NotNil(t, rep.Username)
	assert.Equal(t, "ada", *rep.Username)

	_, ok := f.sessions.Get(ctx, "42")
	assert.False(t, ok)
}

func TestReport_RequiresRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.StartReport(ctx, incoming("/rapor")))
	assert.Equal(t, msgNotRegistered, f.transport.last())
}

func TestReport_NoExams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registerStudent(t, f)

	require.NoError(t, f.engine.StartReport(ctx, incoming("/rapor")))
	assert.Equal(t, msgNoExams, f.transport.last())
}

func TestReport_MenuShowsFiveNewestExams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registerStudent(t, f)

	for i := 1; i <= 7; i++ {
		require.NoError(t, f.store.Exams().Append(ctx, exam.Exam{
			ID:        string(rune('a' + i)),
			Title:     "Deneme",
			CreatedAt: int64(i * 100),
		}))
	}

	require.NoError(t, f.engine.StartReport(ctx, incoming("/rapor")))
	require.Len(t, f.transport.keyboards, 1)
	kb := f.transport.keyboards[0]
	require.Len(t, kb, menuExamCount)
	// The newest exam (CreatedAt 700) leads the menu.
	assert.Equal(t, CallbackExamPrefix+string(rune('a'+7)), kb[0][0].Data)
}

func TestReport_PhotoDownloadFailureKeepsStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registerStudent(t, f)
	f.transport.downloadErr = errors.New("network")

	f.sessions.Set(ctx, "42", session.State{Step: session.StepAwaitPhoto, ExamID: "e1"})

	require.NoError(t, f.engine.HandlePhoto(ctx, Incoming{UserID: 42, ChatID: 42, FileID: "x"}))
	assert.Equal(t, msgPhotoFailed, f.transport.last())

	st, ok := f.sessions.Get(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, session.StepAwaitPhoto, st.Step)

	// A retry succeeds.
	f.transport.downloadErr = nil
	require.NoError(t, f.engine.HandlePhoto(ctx, Incoming{UserID: 42, ChatID: 42, FileID: "x"}))
	st, _ = f.sessions.Get(ctx, "42")
	assert.Equal(t, session.StepAwaitReport, st.Step)
}

func TestReport_DeletedExamYieldsNullTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registerStudent(t, f)

	f.sessions.Set(ctx, "42", session.State{
		Step:      session.StepAwaitReport,
		ExamID:    "vanished",
		PhotoPath: "uploads/x.jpg",
	})

	require.NoError(t, f.engine.HandleText(ctx, incoming("rapor metni")))

	reports, err := f.store.Reports().All(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "vanished", reports[0].ExamID)
	assert.Nil(t, reports[0].ExamTitle)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH EDGE CASES
// ══════════════════════════════════════════════════════════════════════════════

func TestHandleText_NoSessionIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleText(ctx, incoming("merhaba")))
	assert.Empty(t, f.transport.messages)
}

func TestHandleText_HintsDuringButtonSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.sessions.Set(ctx, "42", session.State{Step: session.StepConfirmName, Candidate: &session.Candidate{
		StudentNumber: "1001", FullName: "Ada Lovelace",
	}})
	require.NoError(t, f.engine.HandleText(ctx, incoming("evet")))
	assert.Equal(t, msgUseButtons, f.transport.last())

	f.sessions.Set(ctx, "42", session.State{Step: session.StepAwaitPhoto, ExamID: "e1"})
	require.NoError(t, f.engine.HandleText(ctx, incoming("iste fotograf yok")))
	assert.Equal(t, msgSendPhoto, f.transport.last())
}

func TestHandleCallback_StaleConfirmIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleCallback(ctx, Incoming{
		UserID: 42, ChatID: 42, CallbackID: "cb1", CallbackData: CallbackConfirmYes,
	}))
	// Acknowledged so the client spinner stops, but nothing else happens.
	assert.Equal(t, []string{"cb1"}, f.transport.answered)
	assert.Empty(t, f.transport.messages)
}

func TestCancel_ResetsAnyStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.sessions.Set(ctx, "42", session.State{Step: session.StepAwaitReport, ExamID: "e1"})
	require.NoError(t, f.engine.Cancel(ctx, incoming("/iptal")))
	assert.Equal(t, msgCancelled, f.transport.last())

	_, ok := f.sessions.Get(ctx, "42")
	assert.False(t, ok)
}
