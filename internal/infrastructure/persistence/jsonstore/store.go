// Package jsonstore implements the durable document collections backing the
// intake flow: exams, reports and students, each persisted as one
// self-contained JSON file.
//
// Two guarantees shape the design:
//   - Writes go to a temporary file which is then renamed over the target,
//     so a reader can never observe a partially written collection.
//   - Every read-modify-write cycle of one collection runs under that
//     collection's mutex (single writer), so concurrent mutations of the
//     same collection cannot lose updates.
//
// Reads degrade to the collection default: a missing file is a normal empty
// store, while malformed content additionally surfaces shared.ErrCorruptData
// so callers can log loudly instead of silently treating corruption as
// absence.
package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION
// ══════════════════════════════════════════════════════════════════════════════

// Collection is one JSON document collection stored in a single file.
type Collection[T any] struct {
	name string
	path string
	def  func() T
	log  *logger.Logger

	// mu serializes read-modify-write cycles. Plain reads do not take it:
	// the rename-based write makes them safe against torn files.
	mu sync.Mutex
}

// NewCollection creates a collection persisted at path. def produces the
// fallback value returned when the file is absent or unreadable.
func NewCollection[T any](name, path string, def func() T, log *logger.Logger) *Collection[T] {
	if log == nil {
		log = logger.Default()
	}
	return &Collection[T]{
		name: name,
		path: path,
		def:  def,
		log:  log.With(logger.Collection(name)),
	}
}

// Read returns the current collection value. A missing file yields the
// default and a nil error; malformed content yields the default and an
// error matching shared.ErrCorruptData.
func (c *Collection[T]) Read() (T, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c.def(), nil
		}
		c.log.Warn("collection unreadable, using default", logger.Err(err))
		return c.def(), shared.WrapError("jsonstore", "Read", shared.ErrCorruptData, "unreadable collection file", err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.Warn("collection malformed, using default", logger.Err(err))
		return c.def(), shared.WrapError("jsonstore", "Read", shared.ErrCorruptData, "malformed collection file", err)
	}
	return v, nil
}

// Write persists the value atomically (write temp file, then rename).
func (c *Collection[T]) Write(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(v)
}

// Update runs one serialized read-modify-write cycle. fn receives the
// current value (the default when the file is absent or corrupt) and returns
// the new value plus whether it must be persisted. Returning false skips the
// write entirely, keeping no-op mutations from touching the file.
func (c *Collection[T]) Update(fn func(T) (T, bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.Read()
	if err != nil && !errors.Is(err, shared.ErrCorruptData) {
		return err
	}

	next, changed, err := fn(cur)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return c.writeLocked(next)
}

// writeLocked performs the atomic write. Caller holds c.mu.
func (c *Collection[T]) writeLocked(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return shared.WrapError("jsonstore", "Write", shared.ErrStorage, "marshal collection", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return shared.WrapError("jsonstore", "Write", shared.ErrStorage, "write temp file", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return shared.WrapError("jsonstore", "Write", shared.ErrStorage, "rename temp file", err)
	}
	return nil
}

// Ensure writes the default value when the collection file does not exist.
func (c *Collection[T]) Ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return shared.WrapError("jsonstore", "Ensure", shared.ErrStorage, "stat collection file", err)
	}
	return c.writeLocked(c.def())
}

// Path returns the backing file path.
func (c *Collection[T]) Path() string {
	return c.path
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// Aggregates the three collections and owns the data directory layout.
// ══════════════════════════════════════════════════════════════════════════════

// Filenames of the three collections inside the data directory.
const (
	examsFile    = "exams.json"
	reportsFile  = "reports.json"
	studentsFile = "students.json"
)

// Store bundles the exam, report and student collections.
type Store struct {
	dataDir string

	exams    *ExamRepository
	reports  *ReportRepository
	students *StudentRepository
}

// Open prepares the data directory and the three collections. It does not
// seed anything; call Seed afterwards.
func Open(dataDir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Store{dataDir: dataDir}
	s.exams = newExamRepository(filepath.Join(dataDir, examsFile), log)
	s.reports = newReportRepository(filepath.Join(dataDir, reportsFile), log)
	s.students = newStudentRepository(filepath.Join(dataDir, studentsFile), log)
	return s, nil
}

// Exams returns the exam repository.
func (s *Store) Exams() *ExamRepository { return s.exams }

// Reports returns the report repository.
func (s *Store) Reports() *ReportRepository { return s.reports }

// Students returns the student repository.
func (s *Store) Students() *StudentRepository { return s.students }

// DataDir returns the directory holding the collection files.
func (s *Store) DataDir() string { return s.dataDir }
