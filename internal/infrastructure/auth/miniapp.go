// Package auth verifies the signed Telegram Mini-App credential (initData)
// and decides whether the verified caller may use the admin API.
//
// Verification follows the Bot API contract for web apps: the data-check
// string is every key=value pair except hash, sorted and newline-joined;
// the secret is HMAC-SHA256 over the bot token with the literal key
// "WebAppData"; the supplied hash must equal the HMAC-SHA256 hex digest of
// the data-check string under that secret.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
)

// WebAppUser is the caller identity embedded in verified initData.
type WebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName joins the first and last name.
func (u *WebAppUser) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Gate verifies Mini-App credentials and enforces the admin allow-list.
//
// Allow-list semantics are deliberately uniform across every endpoint: an
// empty list means nobody is allowed. Operators who actually want an open
// panel must opt in explicitly through openMode.
type Gate struct {
	botToken string
	allowed  map[string]struct{}
	openMode bool
}

// NewGate builds a gate for the given bot token and admin user ids
// (stringified Telegram ids). openMode skips the allow-list check entirely.
func NewGate(botToken string, allowedIDs []string, openMode bool) *Gate {
	allowed := make(map[string]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &Gate{
		botToken: botToken,
		allowed:  allowed,
		openMode: openMode,
	}
}

// Verify checks the initData signature and returns the embedded user.
// Any parse failure, missing hash, digest mismatch or malformed user JSON
// yields shared.ErrUnauthorized; no identity is ever returned on failure.
func (g *Gate) Verify(initData string) (*WebAppUser, error) {
	if initData == "" {
		return nil, unauthorized("empty initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, unauthorized("unparseable initData")
	}

	suppliedHash := values.Get("hash")
	if suppliedHash == "" {
		return nil, unauthorized("missing hash")
	}
	values.Del("hash")

	pairs := make([]string, 0, len(values))
	for key, vals := range values {
		for _, v := range vals {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmacSHA256([]byte("WebAppData"), []byte(g.botToken))
	computed := hex.EncodeToString(hmacSHA256(secret, []byte(checkString)))

	// Constant-time comparison: the digest must not leak through timing.
	if !hmac.Equal([]byte(computed), []byte(suppliedHash)) {
		return nil, unauthorized("hash mismatch")
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, unauthorized("missing user field")
	}

	var user WebAppUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, unauthorized("malformed user field")
	}

	return &user, nil
}

// Authorize checks the verified caller against the allow-list.
func (g *Gate) Authorize(user *WebAppUser) error {
	if g.openMode {
		return nil
	}
	id := strconv.FormatInt(user.ID, 10)
	if _, ok := g.allowed[id]; !ok {
		return shared.NewDomainError("auth", "Authorize", shared.ErrForbidden, "user not on admin allow-list")
	}
	return nil
}

func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

func unauthorized(msg string) error {
	return shared.NewDomainError("auth", "Verify", shared.ErrUnauthorized, msg)
}
