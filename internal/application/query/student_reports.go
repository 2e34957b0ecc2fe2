package query

import (
	"context"
	"sort"
	"strings"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPORTS QUERY
// Возвращает все отчёты одного студента, от новых к старым.
// ══════════════════════════════════════════════════════════════════════════════

// StudentReportsQuery содержит параметры запроса.
type StudentReportsQuery struct {
	// UserID - строковый идентификатор пользователя Telegram.
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q StudentReportsQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return shared.NewDomainError("student", "StudentReports", shared.ErrValidation, "user id must not be empty")
	}
	return nil
}

// StudentReportsHandler обрабатывает запрос отчётов студента.
type StudentReportsHandler struct {
	reports exam.ReportRepository
}

// NewStudentReportsHandler создаёт новый StudentReportsHandler.
func NewStudentReportsHandler(reports exam.ReportRepository) *StudentReportsHandler {
	return &StudentReportsHandler{reports: reports}
}

// Handle выполняет запрос. Незнакомый пользователь даёт пустой список.
func (h *StudentReportsHandler) Handle(ctx context.Context, q StudentReportsQuery) ([]exam.Report, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	all, err := h.reports.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]exam.Report, 0)
	for _, rep := range all {
		if rep.UserID == q.UserID {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}
