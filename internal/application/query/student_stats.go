package query

import (
	"context"
	"sort"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT STATS QUERY
// Возвращает всех зарегистрированных студентов со сводкой их отчётов.
// Наиболее активные (с самым свежим отчётом) идут первыми, студенты без
// отчётов в конце.
// ══════════════════════════════════════════════════════════════════════════════

// StudentStatDTO описывает студента со сводкой отчётов.
type StudentStatDTO struct {
	// UserID - идентификатор пользователя Telegram.
	UserID string `json:"userId"`

	// StudentNumber - номер студента из реестра.
	StudentNumber string `json:"studentNumber"`

	// FullName - полное имя из реестра.
	FullName string `json:"fullName"`

	// Username - никнейм Telegram, null если не задан.
	Username *string `json:"username"`

	// ReportCount - сколько отчётов подал студент.
	ReportCount int `json:"reportCount"`

	// LastReportAt - время последнего отчёта, null если отчётов нет.
	LastReportAt *int64 `json:"lastReportAt"`
}

// StudentStatsHandler обрабатывает запрос сводки по студентам.
type StudentStatsHandler struct {
	students student.Repository
	reports  exam.ReportRepository
}

// NewStudentStatsHandler создаёт новый StudentStatsHandler.
func NewStudentStatsHandler(students student.Repository, reports exam.ReportRepository) *StudentStatsHandler {
	return &StudentStatsHandler{students: students, reports: reports}
}

// Handle выполняет запрос.
func (h *StudentStatsHandler) Handle(ctx context.Context) ([]StudentStatDTO, error) {
	all, err := h.students.All(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := h.reports.All(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(all))
	latest := make(map[string]int64, len(all))
	for _, rep := range reports {
		counts[rep.UserID]++
		if rep.CreatedAt > latest[rep.UserID] {
			latest[rep.UserID] = rep.CreatedAt
		}
	}

	out := make([]StudentStatDTO, 0, len(all))
	for id, stu := range all {
		dto := StudentStatDTO{
			UserID:        id.String(),
			StudentNumber: stu.StudentNumber,
			FullName:      stu.FullName,
			Username:      stu.Username,
			ReportCount:   counts[id.String()],
		}
		if at, ok := latest[id.String()]; ok {
			dto.LastReportAt = &at
		}
		out = append(out, dto)
	}

	// Свежие отчёты вперёд; студенты без отчётов в конце, между собой
	// упорядочены по идентификатору для детерминизма.
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].LastReportAt, out[j].LastReportAt
		switch {
		case li != nil && lj != nil:
			return *li > *lj
		case li != nil:
			return true
		case lj != nil:
			return false
		default:
			return out[i].UserID < out[j].UserID
		}
	})
	return out, nil
}
