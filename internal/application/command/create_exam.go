// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE EXAM COMMAND
// Registers a new exam so students can file reports against it.
// ══════════════════════════════════════════════════════════════════════════════

// CreateExamCommand contains the data needed to create an exam.
type CreateExamCommand struct {
	// Title is the human-readable exam name, e.g. "Deneme 7".
	Title string
}

// Validate validates the command.
func (c CreateExamCommand) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return shared.NewDomainError("exam", "CreateExam", shared.ErrValidation, "title must not be empty")
	}
	return nil
}

// CreateExamResult contains the result of exam creation.
type CreateExamResult struct {
	// Exam is the newly created exam as persisted.
	Exam exam.Exam
}

// CreateExamHandler handles the CreateExamCommand.
type CreateExamHandler struct {
	exams exam.Repository
	now   func() time.Time
}

// NewCreateExamHandler creates a new CreateExamHandler.
func NewCreateExamHandler(exams exam.Repository) *CreateExamHandler {
	return &CreateExamHandler{
		exams: exams,
		now:   time.Now,
	}
}

// WithClock overrides the clock. Used by tests.
func (h *CreateExamHandler) WithClock(now func() time.Time) *CreateExamHandler {
	h.now = now
	return h
}

// Handle executes the create exam command.
func (h *CreateExamHandler) Handle(ctx context.Context, cmd CreateExamCommand) (*CreateExamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ex := exam.NewExam(strings.TrimSpace(cmd.Title), h.now())
	if err := h.exams.Append(ctx, ex); err != nil {
		return nil, fmt.Errorf("create_exam: failed to persist: %w", err)
	}

	return &CreateExamResult{Exam: ex}, nil
}
