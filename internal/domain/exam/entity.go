// Package exam содержит доменные модели экзамена (деңеме) и отчёта студента.
package exam

import (
	"strconv"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// Timestamps are epoch milliseconds throughout: that is the wire and storage
// format of the collections, and ordering is purely numeric.
// ══════════════════════════════════════════════════════════════════════════════

// Exam is a mock exam administrators create and students report on.
type Exam struct {
	// ID is the creation timestamp in epoch milliseconds, as a string.
	ID string `json:"id"`

	// Title is the display title, trimmed and non-empty.
	Title string `json:"title"`

	// CreatedAt is the creation time in epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// NewExam builds an exam created at the given instant. The id is derived
// from the same instant, so newer exams always sort after older ones by id
// as well as by CreatedAt.
func NewExam(title string, at time.Time) Exam {
	ms := at.UnixMilli()
	return Exam{
		ID:        strconv.FormatInt(ms, 10),
		Title:     title,
		CreatedAt: ms,
	}
}

// Report is a single student report about one exam question.
//
// ExamID and ExamTitle are denormalized snapshots taken at creation time:
// the report stays displayable even if the exam record is later deleted.
// A report is immutable once created, except for a one-time username
// backfill when the field was previously null.
type Report struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	Username      *string `json:"username"`
	StudentNumber string  `json:"studentNumber"`
	StudentName   string  `json:"studentName"`
	ExamID        string  `json:"examId"`
	ExamTitle     *string `json:"examTitle"`
	PhotoPath     string  `json:"photoPath"`
	ReportText    string  `json:"reportText"`
	CreatedAt     int64   `json:"createdAt"`
}
