package jsonstore

import (
	"context"
	"fmt"
	"time"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY
// Students are stored as a JSON object keyed by the stringified Telegram
// user id.
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository over a JSON collection.
type StudentRepository struct {
	col *Collection[map[student.UserID]student.Student]
}

func newStudentRepository(path string, log *logger.Logger) *StudentRepository {
	def := func() map[student.UserID]student.Student {
		return map[student.UserID]student.Student{}
	}
	return &StudentRepository{col: NewCollection("students", path, def, log)}
}

// GetByUserID returns the student keyed by id, or shared.ErrNotFound.
func (r *StudentRepository) GetByUserID(ctx context.Context, id student.UserID) (*student.Student, error) {
	m, _ := r.col.Read()
	s, ok := m[id]
	if !ok {
		return nil, shared.NewDomainError("student", "GetByUserID", shared.ErrNotFound, "student not registered")
	}
	s.UserID = id
	return &s, nil
}

// Save creates or overwrites the record for s.UserID.
func (r *StudentRepository) Save(ctx context.Context, s student.Student) error {
	if !s.UserID.IsValid() {
		return shared.NewDomainError("student", "Save", shared.ErrInvalidInput, "empty user id")
	}
	return r.col.Update(func(m map[student.UserID]student.Student) (map[student.UserID]student.Student, bool, error) {
		if m == nil {
			m = map[student.UserID]student.Student{}
		}
		m[s.UserID] = s
		return m, true, nil
	})
}

// All returns the full student directory.
func (r *StudentRepository) All(ctx context.Context) (map[student.UserID]student.Student, error) {
	m, err := r.col.Read()
	if err != nil {
		// Corrupt file degrades to an empty directory; the warning is
		// already logged by the collection.
		return m, nil
	}
	for id, s := range m {
		s.UserID = id
		m[id] = s
	}
	return m, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ExamRepository implements exam.Repository over a JSON collection.
type ExamRepository struct {
	col *Collection[[]exam.Exam]
}

func newExamRepository(path string, log *logger.Logger) *ExamRepository {
	def := func() []exam.Exam { return []exam.Exam{} }
	return &ExamRepository{col: NewCollection("exams", path, def, log)}
}

// All returns every exam in storage order.
func (r *ExamRepository) All(ctx context.Context) ([]exam.Exam, error) {
	v, _ := r.col.Read()
	return v, nil
}

// Append adds an exam and persists the collection.
func (r *ExamRepository) Append(ctx context.Context, e exam.Exam) error {
	return r.col.Update(func(exams []exam.Exam) ([]exam.Exam, bool, error) {
		return append(exams, e), true, nil
	})
}

// Remove deletes the exam with the given id. Returns false when no exam
// matched; the collection is left untouched in that case.
func (r *ExamRepository) Remove(ctx context.Context, id string) (bool, error) {
	removed := false
	err := r.col.Update(func(exams []exam.Exam) ([]exam.Exam, bool, error) {
		kept := exams[:0:0]
		for _, e := range exams {
			if e.ID == id {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if kept == nil {
			kept = []exam.Exam{}
		}
		return kept, removed, nil
	})
	return removed, err
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ReportRepository implements exam.ReportRepository over a JSON collection.
type ReportRepository struct {
	col *Collection[[]exam.Report]
}

func newReportRepository(path string, log *logger.Logger) *ReportRepository {
	def := func() []exam.Report { return []exam.Report{} }
	return &ReportRepository{col: NewCollection("reports", path, def, log)}
}

// All returns every report in storage order.
func (r *ReportRepository) All(ctx context.Context) ([]exam.Report, error) {
	v, _ := r.col.Read()
	return v, nil
}

// Append adds a report and persists the collection.
func (r *ReportRepository) Append(ctx context.Context, rep exam.Report) error {
	return r.col.Update(func(reports []exam.Report) ([]exam.Report, bool, error) {
		return append(reports, rep), true, nil
	})
}

// RemoveByExam drops every report referencing examID and returns the dropped
// records so the caller can clean up their photo files.
func (r *ReportRepository) RemoveByExam(ctx context.Context, examID string) ([]exam.Report, error) {
	var removed []exam.Report
	err := r.col.Update(func(reports []exam.Report) ([]exam.Report, bool, error) {
		kept := reports[:0:0]
		for _, rep := range reports {
			if rep.ExamID == examID {
				removed = append(removed, rep)
				continue
			}
			kept = append(kept, rep)
		}
		if kept == nil {
			kept = []exam.Report{}
		}
		return kept, len(removed) > 0, nil
	})
	return removed, err
}

// BackfillUsername fills the username into every report of userID whose
// username is still null. A call that changes nothing does not rewrite the
// collection file.
func (r *ReportRepository) BackfillUsername(ctx context.Context, userID, username string) (int, error) {
	touched := 0
	err := r.col.Update(func(reports []exam.Report) ([]exam.Report, bool, error) {
		for i := range reports {
			if reports[i].UserID != userID {
				continue
			}
			if reports[i].Username != nil && *reports[i].Username != "" {
				continue
			}
			u := username
			reports[i].Username = &u
			touched++
		}
		return reports, touched > 0, nil
	})
	return touched, err
}

// ══════════════════════════════════════════════════════════════════════════════
// SEED
// First-startup seeding mirrors the deployed data layout: a non-empty
// default exam set and existing (possibly empty) report/student files.
// ══════════════════════════════════════════════════════════════════════════════

// seedExamCount is how many placeholder exams an empty store receives.
const seedExamCount = 6

// Seed populates an empty exam collection with placeholder exams spaced one
// day apart (newest first) and makes sure the report and student files
// exist.
func (s *Store) Seed(now time.Time) error {
	exams, _ := s.exams.col.Read()
	if len(exams) == 0 {
		seed := make([]exam.Exam, 0, seedExamCount)
		for i := 0; i < seedExamCount; i++ {
			at := now.Add(-time.Duration(i) * 24 * time.Hour)
			seed = append(seed, exam.NewExam(fmt.Sprintf("Deneme %d", i+1), at))
		}
		if err := s.exams.col.Write(seed); err != nil {
			return err
		}
	}

	if err := s.reports.col.Ensure(); err != nil {
		return err
	}
	return s.students.col.Ensure()
}
