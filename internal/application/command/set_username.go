package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/denemerapor/exam-report-hub/internal/domain/exam"
	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET USERNAME COMMAND
// Attaches a Telegram username to a registered student. The /ek command lets
// students submit one explicitly; when no argument is given the platform
// handle is used. Past reports of the same user get the username backfilled
// so the admin views show it on historical entries too.
// ══════════════════════════════════════════════════════════════════════════════

// SetUsernameStatus classifies the outcome of the command.
type SetUsernameStatus int

const (
	// SetUsernameNotRegistered means no student record exists for the user.
	SetUsernameNotRegistered SetUsernameStatus = iota

	// SetUsernameInvalid means no valid username could be derived from the
	// explicit argument or the platform handle.
	SetUsernameInvalid

	// SetUsernameUnchanged means the stored username already matches.
	SetUsernameUnchanged

	// SetUsernameUpdated means the username was stored.
	SetUsernameUpdated
)

// SetUsernameCommand contains the username submission.
type SetUsernameCommand struct {
	// UserID is the Telegram id of the submitting student.
	UserID student.UserID

	// Explicit is the argument to /ek, possibly with a leading @. When it
	// normalizes to a valid username it wins over PlatformHandle.
	Explicit string

	// PlatformHandle is the username Telegram reports for the sender.
	PlatformHandle string
}

// Validate validates the command.
func (c SetUsernameCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.NewDomainError("student", "SetUsername", shared.ErrValidation, "user id must not be empty")
	}
	return nil
}

// SetUsernameResult describes what the command did.
type SetUsernameResult struct {
	// Status classifies the outcome.
	Status SetUsernameStatus

	// Username is the normalized username, "" unless Unchanged or Updated.
	Username string

	// Backfilled is how many past reports received the username.
	Backfilled int
}

// SetUsernameHandler handles the SetUsernameCommand.
type SetUsernameHandler struct {
	students student.Repository
	reports  exam.ReportRepository
	log      *logger.Logger
}

// NewSetUsernameHandler creates a new SetUsernameHandler.
func NewSetUsernameHandler(students student.Repository, reports exam.ReportRepository, log *logger.Logger) *SetUsernameHandler {
	if log == nil {
		log = logger.Default()
	}
	return &SetUsernameHandler{
		students: students,
		reports:  reports,
		log:      log.With(logger.Component("set_username")),
	}
}

// Handle executes the set username command.
func (h *SetUsernameHandler) Handle(ctx context.Context, cmd SetUsernameCommand) (*SetUsernameResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	stu, err := h.students.GetByUserID(ctx, cmd.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &SetUsernameResult{Status: SetUsernameNotRegistered}, nil
		}
		return nil, fmt.Errorf("set_username: failed to load student: %w", err)
	}

	// The explicit argument takes priority; the platform handle fills in
	// only when nothing usable was typed.
	username := student.NormalizeUsername(cmd.Explicit)
	if username == "" {
		username = student.NormalizeUsername(cmd.PlatformHandle)
	}
	if username == "" {
		return &SetUsernameResult{Status: SetUsernameInvalid}, nil
	}

	if stu.Username != nil && strings.EqualFold(*stu.Username, username) {
		return &SetUsernameResult{Status: SetUsernameUnchanged, Username: *stu.Username}, nil
	}

	stu.Username = &username
	if err := h.students.Save(ctx, *stu); err != nil {
		return nil, fmt.Errorf("set_username: failed to save student: %w", err)
	}

	backfilled, err := h.reports.BackfillUsername(ctx, cmd.UserID.String(), username)
	if err != nil {
		// The student record already carries the username; report the
		// partial success rather than rolling it back.
		h.log.Warn("username backfill failed", logger.UserID(cmd.UserID.String()), logger.Err(err))
		backfilled = 0
	}

	h.log.Info("username updated",
		logger.UserID(cmd.UserID.String()),
		logger.String("username", username),
		logger.Int("backfilled", backfilled),
	)
	return &SetUsernameResult{
		Status:     SetUsernameUpdated,
		Username:   username,
		Backfilled: backfilled,
	}, nil
}
