// Package session моделирует эфемерное состояние диалога регистрации и
// подачи отчёта. Состояние живёт только в памяти процесса: перезапуск
// обнуляет все диалоги, и это осознанное свойство системы.
package session

import (
	"context"

	"github.com/denemerapor/exam-report-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEPS
// Closed set of conversation steps. Idle is represented by the absence of a
// session, exactly one session exists per user, and explicit cancellation
// deletes it from any step.
// ══════════════════════════════════════════════════════════════════════════════

// Step is a conversation step.
type Step string

const (
	// StepAwaitNumber - ждём ввода студенческого номера.
	StepAwaitNumber Step = "await_number"

	// StepConfirmName - ждём подтверждения имени кнопками да/нет.
	StepConfirmName Step = "confirm_name"

	// StepAwaitPhoto - ждём фотографию вопроса.
	StepAwaitPhoto Step = "await_photo"

	// StepAwaitReport - ждём текст отчёта.
	StepAwaitReport Step = "await_report"
)

// IsValid reports whether the step belongs to the closed set.
func (s Step) IsValid() bool {
	switch s {
	case StepAwaitNumber, StepConfirmName, StepAwaitPhoto, StepAwaitReport:
		return true
	}
	return false
}

// Candidate is the identity pending confirmation during registration.
type Candidate struct {
	StudentNumber string
	FullName      string
}

// IsComplete reports whether both candidate fields are non-empty.
func (c Candidate) IsComplete() bool {
	return c.StudentNumber != "" && c.FullName != ""
}

// State is the per-user conversation state. Fields beyond Step are only
// meaningful for the steps that set them.
type State struct {
	Step Step

	// ExamID is the exam chosen for the report flow (await_photo onwards).
	ExamID string

	// PhotoPath is the downloaded photo location (await_report).
	PhotoPath string

	// Candidate is the pending registration identity (confirm_name).
	Candidate *Candidate
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACE
// Инжектируемый интерфейс вместо глобальной map: тесты подставляют
// изолированный экземпляр на каждый случай.
// ══════════════════════════════════════════════════════════════════════════════

// Store держит не более одной записи на пользователя; Set перезаписывает
// состояние целиком на каждом переходе.
type Store interface {
	// Get возвращает состояние пользователя; ok=false означает Idle.
	Get(ctx context.Context, id student.UserID) (State, bool)

	// Set сохраняет состояние пользователя, затирая предыдущее.
	Set(ctx context.Context, id student.UserID, st State)

	// Delete переводит пользователя в Idle.
	Delete(ctx context.Context, id student.UserID)
}
