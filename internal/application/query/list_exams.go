// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"sort"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EXAMS QUERY
// Возвращает все экзамены вместе с количеством отчётов по каждому.
// Используется панелью администратора.
// ══════════════════════════════════════════════════════════════════════════════

// ExamWithCountsDTO описывает экзамен со сводкой отчётов.
type ExamWithCountsDTO struct {
	// ID экзамена.
	ID string `json:"id"`

	// Title - название экзамена.
	Title string `json:"title"`

	// CreatedAt - время создания в миллисекундах Unix.
	CreatedAt int64 `json:"createdAt"`

	// ReportCount - сколько отчётов подано по экзамену.
	ReportCount int `json:"reportCount"`

	// LastReportAt - время последнего отчёта, null если отчётов нет.
	LastReportAt *int64 `json:"lastReportAt"`
}

// ListExamsHandler обрабатывает запрос списка экзаменов.
type ListExamsHandler struct {
	exams   exam.Repository
	reports exam.ReportRepository
}

// NewListExamsHandler создаёт новый ListExamsHandler.
func NewListExamsHandler(exams exam.Repository, reports exam.ReportRepository) *ListExamsHandler {
	return &ListExamsHandler{exams: exams, reports: reports}
}

// Handle выполняет запрос. Экзамены сортируются от новых к старым.
func (h *ListExamsHandler) Handle(ctx context.Context) ([]ExamWithCountsDTO, error) {
	exams, err := h.exams.All(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := h.reports.All(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(exams))
	latest := make(map[string]int64, len(exams))
	for _, rep := range reports {
		counts[rep.ExamID]++
		if rep.CreatedAt > latest[rep.ExamID] {
			latest[rep.ExamID] = rep.CreatedAt
		}
	}

	out := make([]ExamWithCountsDTO, 0, len(exams))
	for _, ex := range exams {
		dto := ExamWithCountsDTO{
			ID:          ex.ID,
			Title:       ex.Title,
			CreatedAt:   ex.CreatedAt,
			ReportCount: counts[ex.ID],
		}
		if at, ok := latest[ex.ID]; ok {
			dto.LastReportAt = &at
		}
		out = append(out, dto)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}
