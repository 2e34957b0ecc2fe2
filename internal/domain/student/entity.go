// Package student содержит доменную модель зарегистрированного студента.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package student

import (
	"regexp"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// UserID представляет идентификатор пользователя Telegram в строковом виде.
// Хранилище студентов ключуется этим значением.
type UserID string

// UserIDFromInt64 converts a raw Telegram user id to a UserID.
func UserIDFromInt64(id int64) UserID {
	return UserID(strconv.FormatInt(id, 10))
}

// IsValid проверяет, что UserID непустой.
func (u UserID) IsValid() bool {
	return string(u) != ""
}

// String возвращает строковое представление.
func (u UserID) String() string {
	return string(u)
}

// Int64 разбирает UserID обратно в числовой идентификатор Telegram.
func (u UserID) Int64() (int64, error) {
	return strconv.ParseInt(string(u), 10, 64)
}

// usernameRe matches a Telegram username after the leading @ is stripped.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{5,32}$`)

// NormalizeUsername strips a leading @ and surrounding whitespace and
// validates the result against Telegram username rules (alphanumeric or
// underscore, 5-32 characters). Returns "" when the candidate is invalid.
func NormalizeUsername(raw string) string {
	cand := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
	if !usernameRe.MatchString(cand) {
		return ""
	}
	return cand
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Student is a registered student record. Created on confirmed registration
// and never deleted by the intake flow. Username may be backfilled later via
// the username command; the other fields are immutable once set.
type Student struct {
	// UserID is the Telegram user id owning this record.
	UserID UserID `json:"userId"`

	// StudentNumber is the school-issued number confirmed during registration.
	StudentNumber string `json:"studentNumber"`

	// FullName is the name resolved by the external lookup during registration.
	FullName string `json:"fullName"`

	// Username is the Telegram username, nil when never supplied.
	Username *string `json:"username"`
}

// IsComplete reports whether the record carries the mandatory identity
// fields. A stored Student must always be complete; the report flow refuses
// to start otherwise.
func (s Student) IsComplete() bool {
	return strings.TrimSpace(s.StudentNumber) != "" && strings.TrimSpace(s.FullName) != ""
}

// HasUsername reports whether a username is recorded.
func (s Student) HasUsername() bool {
	return s.Username != nil && *s.Username != ""
}
