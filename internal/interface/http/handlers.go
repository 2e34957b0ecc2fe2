package http

import (
	"errors"
	"net/http"

	"github.com/denemerapor/exam-report-hub/internal/application/command"
	"github.com/denemerapor/exam-report-hub/internal/application/query"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/auth"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// Every admin request body carries initData; authentication happens before
// any parameters are looked at. Signature failures are 401, a valid
// signature from a non-admin is 403.
// ══════════════════════════════════════════════════════════════════════════════

// adminRequest is the envelope shared by all admin endpoints. InitData
// carries no validation tag: an absent credential is an authentication
// failure, not a malformed request, so the gate decides its fate.
type adminRequest struct {
	InitData string `json:"initData"`

	// Endpoint-specific parameters. Length caps bound what reaches the
	// command and query handlers.
	Title   string `json:"title,omitempty" validate:"omitempty,max=256"`
	ExamID  string `json:"examId,omitempty" validate:"omitempty,max=64"`
	UserID  string `json:"userId,omitempty" validate:"omitempty,max=32"`
	Message string `json:"message,omitempty" validate:"omitempty,max=4096"`
}

// authenticate decodes the envelope and runs the auth gate. A nil return
// means the response has already been written.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) *authedRequest {
	var req adminRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request")
		return nil
	}

	user, err := s.deps.Gate.Verify(req.InitData)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	if err := s.deps.Gate.Authorize(user); err != nil {
		writeJSONError(w, http.StatusForbidden, "forbidden")
		return nil
	}

	if err := s.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request")
		return nil
	}

	return &authedRequest{adminRequest: req, user: user}
}

type authedRequest struct {
	adminRequest
	user *auth.WebAppUser
}

// handleBootstrap returns everything the panel needs on first load: the
// verified admin identity, all exams with counts and all reports.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	exams, err := s.deps.ListExams.Handle(r.Context())
	if err != nil {
		s.serverError(w, "bootstrap", err)
		return
	}
	reports, err := s.deps.AllReports.Handle(r.Context())
	if err != nil {
		s.serverError(w, "bootstrap", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":   req.user.ID,
			"name": req.user.DisplayName(),
		},
		"exams":   exams,
		"reports": reports,
	})
}

// handleCreateExam registers a new exam.
func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	result, err := s.deps.CreateExam.Handle(r.Context(), command.CreateExamCommand{Title: req.Title})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, "missing_field")
			return
		}
		s.serverError(w, "create exam", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"exam": result.Exam})
}

// handleListExams returns all exams with report counts, newest first.
func (s *Server) handleListExams(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	exams, err := s.deps.ListExams.Handle(r.Context())
	if err != nil {
		s.serverError(w, "list exams", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exams": exams})
}

// handleExamReports returns the reports of one exam, newest first.
func (s *Server) handleExamReports(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	reports, err := s.deps.ExamReports.Handle(r.Context(), query.ExamReportsQuery{ExamID: req.ExamID})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, "missing_field")
			return
		}
		s.serverError(w, "exam reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// handleDeleteExam removes an exam, its reports and their photos.
func (s *Server) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	result, err := s.deps.DeleteExam.Handle(r.Context(), command.DeleteExamCommand{ExamID: req.ExamID})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, "missing_field")
			return
		}
		s.serverError(w, "delete exam", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"removedExam":    result.RemovedExam,
		"removedReports": result.RemovedReports,
	})
}

// handleStudentStats returns all students with their report summaries.
func (s *Server) handleStudentStats(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	stats, err := s.deps.StudentStats.Handle(r.Context())
	if err != nil {
		s.serverError(w, "student stats", err)
		return
	}
	directory, err := s.deps.Students.All(r.Context())
	if err != nil {
		s.serverError(w, "student stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"students": directory,
	})
}

// handleStudentReports returns all reports of one student, newest first.
func (s *Server) handleStudentReports(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	reports, err := s.deps.StudentReports.Handle(r.Context(), query.StudentReportsQuery{UserID: req.UserID})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, "missing_field")
			return
		}
		s.serverError(w, "student reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// handleBroadcast sends an announcement to every registered student.
// Delivery is rate limited and can take a while; the panel waits.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	req := s.authenticate(w, r)
	if req == nil {
		return
	}

	result, err := s.deps.Broadcast.Handle(r.Context(), command.BroadcastCommand{Message: req.Message})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, "missing_field")
			return
		}
		s.serverError(w, "broadcast", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":  result.Total,
		"sent":   result.Sent,
		"failed": result.Failed,
	})
}

// serverError logs and answers a 500.
func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("admin operation failed", logger.Operation(op), logger.Err(err))
	writeJSONError(w, http.StatusInternalServerError, "internal_error")
}
