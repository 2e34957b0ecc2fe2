package query

import (
	"context"
	"sort"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALL REPORTS QUERY
// Возвращает все отчёты без фильтра, от новых к старым. Используется
// панелью администратора при первой загрузке.
// ══════════════════════════════════════════════════════════════════════════════

// AllReportsHandler обрабатывает запрос полного списка отчётов.
type AllReportsHandler struct {
	reports exam.ReportRepository
}

// NewAllReportsHandler создаёт новый AllReportsHandler.
func NewAllReportsHandler(reports exam.ReportRepository) *AllReportsHandler {
	return &AllReportsHandler{reports: reports}
}

// Handle выполняет запрос.
func (h *AllReportsHandler) Handle(ctx context.Context) ([]exam.Report, error) {
	all, err := h.reports.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]exam.Report, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}
