// Package conversation drives the per-user dialog state machine: student
// registration (/start) and exam report submission (/rapor).
//
// Steps: Idle → AwaitNumber → ConfirmName → Idle (registration) and
// Idle → exam chosen → AwaitPhoto → AwaitReport → Idle (report intake).
// Cancellation returns to Idle from any step. All handling for one user is
// serialized through a per-user lock, so out-of-order delivery of a single
// user's messages cannot corrupt the session.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/session"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Collaborators the engine drives. Implementations live in infrastructure;
// tests substitute fakes.
// ══════════════════════════════════════════════════════════════════════════════

// Transport sends messages back to the user and fetches uploaded photos.
type Transport interface {
	// SendMessage sends plain text to a chat.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// SendKeyboard sends text with an inline keyboard.
	SendKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) error

	// AnswerCallback acknowledges an inline-keyboard press.
	AnswerCallback(ctx context.Context, callbackID string) error

	// DownloadPhoto stores the photo behind fileID locally and returns
	// its path.
	DownloadPhoto(ctx context.Context, fileID string) (string, error)
}

// Keyboard is a transport-neutral inline keyboard: rows of buttons.
type Keyboard [][]Button

// Button is one inline button carrying callback data.
type Button struct {
	Text string
	Data string
}

// NameLookup resolves a student number against the external roster.
// An empty name with a nil error means "number not found".
type NameLookup interface {
	StudentNameByNumber(ctx context.Context, number string) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER-FACING TEXTS
// The deployment serves Turkish-speaking students.
// ══════════════════════════════════════════════════════════════════════════════

const (
	msgAlreadyRegistered = "Zaten kayıtlısın: %s • %s"
	msgAskNumber         = "Öğrenci numaranızı giriniz."
	msgInvalidNumber     = "Geçerli bir numara girin."
	msgNumberNotFound    = "Öğrenci bulunamadı. Numaranızı kontrol edip tekrar girin."
	msgLookupFailed      = "Öğrenci listesine şu anda erişilemiyor. Lütfen biraz sonra tekrar deneyin."
	msgConfirmName       = "Adınız soyadınız bu mu: %s?"
	msgRegistered        = "Kayıt tamamlandı: %s • %s\nRapor girişi için /rapor yazın."
	msgRegistrationNo    = "Kayıt iptal edildi. Öğrenci numaranızı tekrar giriniz."
	msgCandidateLost     = "Öğrenci bulunamadı. Numaranızı tekrar girin."
	msgNotRegistered     = "Öğrenci bulunamadı. Kayıt için /start yazın ve numaranızı doğrulayın."
	msgReportStarted     = "Öğrenci rapor girişi başlatıldı."
	msgNoExams           = "Kayıtlı sınav yok."
	msgChooseExam        = "Hangi sınav hakkında rapor girmek istiyorsunuz?"
	msgSendPhoto         = "Lütfen sorunun fotoğrafını gönderin."
	msgPhotoFailed       = "Fotoğraf indirilemedi. Tekrar deneyin."
	msgAskReportText     = "Teşekkürler. Şimdi soru hakkındaki raporunuzu mesaj olarak yazıp gönderin."
	msgReportSaved       = "Raporunuz eklendi."
	msgCancelled         = "Akış sıfırlandı."
	msgUseButtons        = "Lütfen yukarıdaki Evet / Hayır düğmelerini kullanın."

	btnYes = "Evet"
	btnNo  = "Hayır"
)

// Callback data prefixes shared with the router.
const (
	CallbackConfirmYes = "confirm:yes"
	CallbackConfirmNo  = "confirm:no"
	CallbackExamPrefix = "exam:"
)

// menuExamCount is how many of the most recent exams the report flow offers.
const menuExamCount = 5

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Incoming is one normalized user event handed over by the router.
type Incoming struct {
	// UserID is the Telegram user id of the sender.
	UserID int64

	// ChatID is where replies go.
	ChatID int64

	// Username is the platform-reported username, "" when unset.
	Username string

	// Text is the message text for text events.
	Text string

	// FileID is the photo file id for photo events.
	FileID string

	// CallbackID and CallbackData describe an inline-keyboard press.
	CallbackID   string
	CallbackData string
}

// Engine is the conversation state machine.
type Engine struct {
	sessions  session.Store
	students  student.Repository
	exams     exam.Repository
	reports   exam.ReportRepository
	lookup    NameLookup
	transport Transport
	log       *logger.Logger
	now       func() time.Time

	// userMu serializes all handling for one user.
	mu      sync.Mutex
	userMus map[student.UserID]*sync.Mutex
}

// Config bundles the engine dependencies.
type Config struct {
	Sessions  session.Store
	Students  student.Repository
	Exams     exam.Repository
	Reports   exam.ReportRepository
	Lookup    NameLookup
	Transport Transport
	Logger    *logger.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewEngine creates the conversation engine.
func NewEngine(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		sessions:  cfg.Sessions,
		students:  cfg.Students,
		exams:     cfg.Exams,
		reports:   cfg.Reports,
		lookup:    cfg.Lookup,
		transport: cfg.Transport,
		log:       log.With(logger.Component("conversation")),
		now:       now,
		userMus:   make(map[student.UserID]*sync.Mutex),
	}
}

// lockUser returns the per-user mutex, creating it on first use. The map
// only grows; the entry count is bounded by the number of distinct users.
func (e *Engine) lockUser(id student.UserID) func() {
	e.mu.Lock()
	m, ok := e.userMus[id]
	if !ok {
		m = &sync.Mutex{}
		e.userMus[id] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION FLOW
// ══════════════════════════════════════════════════════════════════════════════

// StartRegistration handles /start. An already registered user is reminded
// of their identity and stays Idle; everyone else enters AwaitNumber.
func (e *Engine) StartRegistration(ctx context.Context, in Incoming) error {
	uid := student.UserIDFromInt64(in.UserID)
	defer e.lockUser(uid)()

	if stu, err := e.students.GetByUserID(ctx, uid); err == nil && stu != nil {
		return e.transport.SendMessage(ctx, in.ChatID, fmt.Sprintf(msgAlreadyRegistered, stu.StudentNumber, stu.FullName))
	}

	e.sessions.Set(ctx, uid, session.State{Step: session.StepAwaitNumber})
	return e.transport.SendMessage(ctx, in.ChatID, msgAskNumber)
}

// handleNumber processes text input in AwaitNumber: resolve the number on
// the roster and move to ConfirmName, or stay put.
func (e *Engine) handleNumber(ctx context.Context, uid student.UserID, in Incoming) error {
	number := strings.TrimSpace(in.Text)
	if number == "" {
		return e.transport.SendMessage(ctx, in.ChatID, msgInvalidNumber)
	}

	fullName, err := e.lookup.StudentNameByNumber(ctx, number)
	if err != nil {
		// Recoverable external failure: the session stays in AwaitNumber
		// so the user can simply retry.
		e.log.Error("roster lookup failed", logger.UserID(uid.String()), logger.Err(err))
		return e.transport.SendMessage(ctx, in.ChatID, msgLookupFailed)
	}

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return e.transport.SendMessage(ctx, in.ChatID, msgNumberNotFound)
	}

	e.sessions.Set(ctx, uid, session.State{
		Step: session.StepConfirmName,
		Candidate: &session.Candidate{
			StudentNumber: number,
			FullName:      fullName,
		},
	})

	kb := Keyboard{{
		{Text: btnYes, Data: CallbackConfirmYes},
		{Text: btnNo, Data: CallbackConfirmNo},
	}}
	return e.transport.SendKeyboard(ctx, in.ChatID, fmt.Sprintf(msgConfirmName, fullName), kb)
}

// handleConfirm processes the yes/no press in ConfirmName.
func (e *Engine) handleConfirm(ctx context.Context, uid student.UserID, in Incoming, st session.State) error {
	if in.CallbackData != CallbackConfirmYes {
		e.sessions.Set(ctx, uid, session.State{Step: session.StepAwaitNumber})
		return e.transport.SendMessage(ctx, in.ChatID, msgRegistrationNo)
	}

	if st.Candidate == nil || !st.Candidate.IsComplete() {
		// Should not happen: ConfirmName is only entered with a complete
		// candidate. Fall back to AwaitNumber rather than persisting junk.
		e.sessions.Set(ctx, uid, session.State{Step: session.StepAwaitNumber})
		return e.transport.SendMessage(ctx, in.ChatID, msgCandidateLost)
	}

	var username *string
	if in.Username != "" {
		u := in.Username
		username = &u
	}

	stu := student.Student{
		UserID:        uid,
		StudentNumber: strings.TrimSpace(st.Candidate.StudentNumber),
		FullName:      strings.TrimSpace(st.Candidate.FullName),
		Username:      username,
	}
	if err := e.students.Save(ctx, stu); err != nil {
		e.log.Error("save student failed", logger.UserID(uid.String()), logger.Err(err))
		return e.transport.SendMessage(ctx, in.ChatID, msgLookupFailed)
	}

	e.sessions.Delete(ctx, uid)
	return e.transport.SendMessage(ctx, in.ChatID, fmt.Sprintf(msgRegistered, stu.StudentNumber, stu.FullName))
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT FLOW
// ══════════════════════════════════════════════════════════════════════════════

// StartReport handles /rapor: requires a complete Student record, clears
// any stray session and offers the most recent exams.
func (e *Engine) StartReport(ctx context.Context, in Incoming) error {
	uid := student.UserIDFromInt64(in.UserID)
	defer e.lockUser(uid)()

	stu, err := e.students.GetByUserID(ctx, uid)
	if err != nil || stu == nil || !stu.IsComplete() {
		return e.transport.SendMessage(ctx, in.ChatID, msgNotRegistered)
	}

	e.sessions.Delete(ctx, uid)
	if err := e.transport.SendMessage(ctx, in.ChatID, msgReportStarted); err != nil {
		return err
	}

	exams, err := e.exams.All(ctx)
	if err != nil {
		return err
	}
	recent := recentExams(exams, menuExamCount)
	if len(recent) == 0 {
		return e.transport.SendMessage(ctx, in.ChatID, msgNoExams)
	}

	kb := make(Keyboard, 0, len(recent))
	for _, ex := range recent {
		kb = append(kb, []Button{{Text: ex.Title, Data: CallbackExamPrefix + ex.ID}})
	}
	return e.transport.SendKeyboard(ctx, in.ChatID, msgChooseExam, kb)
}

// handleExamChosen records the chosen exam and moves to AwaitPhoto.
// Choosing from the menu is what creates the report session, so no prior
// step is required here.
func (e *Engine) handleExamChosen(ctx context.Context, uid student.UserID, in Incoming, examID string) error {
	e.sessions.Set(ctx, uid, session.State{
		Step:   session.StepAwaitPhoto,
		ExamID: examID,
	})
	return e.transport.SendMessage(ctx, in.ChatID, msgSendPhoto)
}

// HandlePhoto processes an uploaded image in AwaitPhoto. Download failure
// keeps the step so the user can retry; success moves to AwaitReport.
func (e *Engine) HandlePhoto(ctx context.Context, in Incoming) error {
	uid := student.UserIDFromInt64(in.UserID)
	defer e.lockUser(uid)()

	st, ok := e.sessions.Get(ctx, uid)
	if !ok || st.Step != session.StepAwaitPhoto {
		// Photos outside the report flow are not ours to comment on.
		return nil
	}

	path, err := e.transport.DownloadPhoto(ctx, in.FileID)
	if err != nil {
		e.log.Error("photo download failed", logger.UserID(uid.String()), logger.Err(err))
		return e.transport.SendMessage(ctx, in.ChatID, msgPhotoFailed)
	}

	st.PhotoPath = path
	st.Step = session.StepAwaitReport
	e.sessions.Set(ctx, uid, st)
	return e.transport.SendMessage(ctx, in.ChatID, msgAskReportText)
}

// handleReportText builds and appends the report in AwaitReport, then
// clears the session.
func (e *Engine) handleReportText(ctx context.Context, uid student.UserID, in Incoming, st session.State) error {
	stu, err := e.students.GetByUserID(ctx, uid)
	if err != nil || stu == nil {
		// The student record vanished mid-flow; restart cleanly.
		e.sessions.Delete(ctx, uid)
		return e.transport.SendMessage(ctx, in.ChatID, msgNotRegistered)
	}

	// Denormalized exam title: null when the exam disappeared meanwhile.
	var examTitle *string
	exams, _ := e.exams.All(ctx)
	for _, ex := range exams {
		if ex.ID == st.ExamID {
			t := ex.Title
			examTitle = &t
			break
		}
	}

	var username *string
	if in.Username != "" {
		u := in.Username
		username = &u
	}

	rep := exam.Report{
		ID:            uuid.NewString(),
		UserID:        uid.String(),
		Username:      username,
		StudentNumber: stu.StudentNumber,
		StudentName:   stu.FullName,
		ExamID:        st.ExamID,
		ExamTitle:     examTitle,
		PhotoPath:     st.PhotoPath,
		ReportText:    strings.TrimSpace(in.Text),
		CreatedAt:     e.now().UnixMilli(),
	}
	if err := e.reports.Append(ctx, rep); err != nil {
		e.log.Error("append report failed", logger.UserID(uid.String()), logger.Err(err))
		return e.transport.SendMessage(ctx, in.ChatID, msgLookupFailed)
	}

	e.sessions.Delete(ctx, uid)
	e.log.Info("report recorded",
		logger.UserID(uid.String()),
		logger.ExamID(st.ExamID),
		logger.ReportID(rep.ID),
	)
	return e.transport.SendMessage(ctx, in.ChatID, msgReportSaved)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// HandleText processes free text according to the current step. Text with
// no active session is ignored: replying to every stray message would make
// the bot unusable in shared chats.
func (e *Engine) HandleText(ctx context.Context, in Incoming) error {
	uid := student.UserIDFromInt64(in.UserID)
	defer e.lockUser(uid)()

	st, ok := e.sessions.Get(ctx, uid)
	if !ok {
		return nil
	}

	switch st.Step {
	case session.StepAwaitNumber:
		return e.handleNumber(ctx, uid, in)
	case session.StepConfirmName:
		return e.transport.SendMessage(ctx, in.ChatID, msgUseButtons)
	case session.StepAwaitPhoto:
		return e.transport.SendMessage(ctx, in.ChatID, msgSendPhoto)
	case session.StepAwaitReport:
		return e.handleReportText(ctx, uid, in, st)
	default:
		// Unknown step can only come from a programming error; reset.
		e.sessions.Delete(ctx, uid)
		return nil
	}
}

// HandleCallback processes an inline-keyboard press. The press is always
// acknowledged so the client spinner stops, even when the press is stale.
func (e *Engine) HandleCallback(ctx context.Context, in Incoming) error {
	uid := student.UserIDFromInt64(in.UserID)
	defer e.lockUser(uid)()

	if in.CallbackID != "" {
		if err := e.transport.AnswerCallback(ctx, in.CallbackID); err != nil {
			e.log.Warn("answer callback failed", logger.Err(err))
		}
	}

	switch {
	case strings.HasPrefix(in.CallbackData, "confirm:"):
		st, ok := e.sessions.Get(ctx, uid)
		if !ok || st.Step != session.StepConfirmName {
			// Stale press from an old keyboard.
			return nil
		}
		return e.handleConfirm(ctx, uid, in, st)

	case strings.HasPrefix(in.CallbackData, CallbackExamPrefix):
		examID := strings.TrimPrefix(in.CallbackData, CallbackExamPrefix)
		if examID == "" {
			return nil
		}
		return e.handleExamChosen(ctx, uid, in, examID)

	default:
		return nil
	}
}

// Cancel handles /iptal: back to Idle from any step.
func (e *Engine) Cancel(ctx context.Context, in Incoming) error {
	uid := student.UserIDFromInt64(in.UserID)
	defer e.lockUser(uid)()

	e.sessions.Delete(ctx, uid)
	return e.transport.SendMessage(ctx, in.ChatID, msgCancelled)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// recentExams returns up to n exams sorted by CreatedAt descending.
func recentExams(exams []exam.Exam, n int) []exam.Exam {
	sorted := make([]exam.Exam, len(exams))
	copy(sorted, exams)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
