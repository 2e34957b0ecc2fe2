package query

import (
	"context"
	"sort"
	"strings"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXAM REPORTS QUERY
// Возвращает все отчёты по одному экзамену, от новых к старым.
// ══════════════════════════════════════════════════════════════════════════════

// ExamReportsQuery содержит параметры запроса.
type ExamReportsQuery struct {
	// ExamID - идентификатор экзамена.
	ExamID string
}

// Validate проверяет корректность параметров запроса.
func (q ExamReportsQuery) Validate() error {
	if strings.TrimSpace(q.ExamID) == "" {
		return shared.NewDomainError("exam", "ExamReports", shared.ErrValidation, "exam id must not be empty")
	}
	return nil
}

// ExamReportsHandler обрабатывает запрос отчётов по экзамену.
type ExamReportsHandler struct {
	reports exam.ReportRepository
}

// NewExamReportsHandler создаёт новый ExamReportsHandler.
func NewExamReportsHandler(reports exam.ReportRepository) *ExamReportsHandler {
	return &ExamReportsHandler{reports: reports}
}

// Handle выполняет запрос. Несуществующий экзамен даёт пустой список,
// а не ошибку.
func (h *ExamReportsHandler) Handle(ctx context.Context, q ExamReportsQuery) ([]exam.Report, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	all, err := h.reports.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]exam.Report, 0)
	for _, rep := range all {
		if rep.ExamID == q.ExamID {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}
