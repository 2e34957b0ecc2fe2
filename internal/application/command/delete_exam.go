package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE EXAM COMMAND
// Removes an exam together with everything hanging off it: all reports filed
// against the exam and their photo files on disk. Reports are removed before
// the exam record itself, so a crash mid-way never leaves reports that point
// at a live exam.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteExamCommand identifies the exam to delete.
type DeleteExamCommand struct {
	// ExamID is the id of the exam to remove.
	ExamID string
}

// Validate validates the command.
func (c DeleteExamCommand) Validate() error {
	if strings.TrimSpace(c.ExamID) == "" {
		return shared.NewDomainError("exam", "DeleteExam", shared.ErrValidation, "exam id must not be empty")
	}
	return nil
}

// DeleteExamResult describes what the cascade removed.
type DeleteExamResult struct {
	// RemovedExam is true when an exam with the given id existed.
	RemovedExam bool

	// RemovedReports is how many reports were deleted alongside it.
	RemovedReports int
}

// DeleteExamHandler handles the DeleteExamCommand.
type DeleteExamHandler struct {
	exams   exam.Repository
	reports exam.ReportRepository
	log     *logger.Logger
}

// NewDeleteExamHandler creates a new DeleteExamHandler.
func NewDeleteExamHandler(exams exam.Repository, reports exam.ReportRepository, log *logger.Logger) *DeleteExamHandler {
	if log == nil {
		log = logger.Default()
	}
	return &DeleteExamHandler{
		exams:   exams,
		reports: reports,
		log:     log.With(logger.Component("delete_exam")),
	}
}

// Handle executes the delete exam command.
func (h *DeleteExamHandler) Handle(ctx context.Context, cmd DeleteExamCommand) (*DeleteExamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	removed, err := h.reports.RemoveByExam(ctx, cmd.ExamID)
	if err != nil {
		return nil, fmt.Errorf("delete_exam: failed to remove reports: %w", err)
	}

	// Photo removal is best effort: a missing or locked file must not keep
	// the exam alive.
	for _, rep := range removed {
		if rep.PhotoPath == "" {
			continue
		}
		if err := os.Remove(rep.PhotoPath); err != nil && !os.IsNotExist(err) {
			h.log.Warn("failed to remove report photo",
				logger.ReportID(rep.ID),
				logger.String("path", rep.PhotoPath),
				logger.Err(err),
			)
		}
	}

	existed, err := h.exams.Remove(ctx, cmd.ExamID)
	if err != nil {
		return nil, fmt.Errorf("delete_exam: failed to remove exam: %w", err)
	}

	h.log.Info("exam deleted",
		logger.ExamID(cmd.ExamID),
		logger.Int("removed_reports", len(removed)),
		logger.Bool("exam_existed", existed),
	)

	return &DeleteExamResult{
		RemovedExam:    existed,
		RemovedReports: len(removed),
	}, nil
}
