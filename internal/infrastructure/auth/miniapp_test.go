package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
)

const testBotToken = "12345:TEST-TOKEN"

// signInitData builds initData the way the Telegram client does: sorted
// key=value pairs, newline-joined, HMAC'd with the WebAppData-derived secret.
func signInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()

	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	hash := hex.EncodeToString(mac.Sum(nil))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hash)
	return values.Encode()
}

func validFields() map[string]string {
	return map[string]string{
		"auth_date": "1700000000",
		"query_id":  "AAH",
		"user":      `{"id":42,"first_name":"Ada","last_name":"Lovelace","username":"ada"}`,
	}
}

func TestGate_VerifyValidSignature(t *testing.T) {
	gate := NewGate(testBotToken, nil, false)
	initData := signInitData(t, testBotToken, validFields())

	user, err := gate.Verify(initData)
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "Ada Lovelace", user.DisplayName())
	assert.Equal(t, "ada", user.Username)
}

func TestGate_VerifyRejectsTamperedField(t *testing.T) {
	gate := NewGate(testBotToken, nil, false)

	fields := validFields()
	initData := signInitData(t, testBotToken, fields)

	// Promote the caller to another user id after signing.
	tampered := strings.Replace(initData, "%22id%22%3A42", "%22id%22%3A43", 1)
	require.NotEqual(t, initData, tampered)

	_, err := gate.Verify(tampered)
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
}

func TestGate_VerifyRejectsTamperedHash(t *testing.T) {
	gate := NewGate(testBotToken, nil, false)
	initData := signInitData(t, testBotToken, validFields())

	values, err := url.ParseQuery(initData)
	require.NoError(t, err)
	hash := values.Get("hash")
	flipped := "0"
	if hash[0] == '0' {
		flipped = "1"
	}
	values.Set("hash", flipped+hash[1:])

	_, err = gate.Verify(values.Encode())
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
}

func TestGate_VerifyRejectsWrongToken(t *testing.T) {
	gate := NewGate(testBotToken, nil, false)
	initData := signInitData(t, "999:OTHER-TOKEN", validFields())

	_, err := gate.Verify(initData)
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
}

func TestGate_VerifyRejectsMissingPieces(t *testing.T) {
	gate := NewGate(testBotToken, nil, false)

	_, err := gate.Verify("")
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))

	_, err = gate.Verify("auth_date=1700000000&user=%7B%7D")
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))

	// Valid signature but no user payload.
	fields := map[string]string{"auth_date": "1700000000"}
	_, err = gate.Verify(signInitData(t, testBotToken, fields))
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
}

func TestGate_Authorize(t *testing.T) {
	user := &WebAppUser{ID: 42, FirstName: "Ada"}

	gate := NewGate(testBotToken, []string{"42", " 7 "}, false)
	assert.NoError(t, gate.Authorize(user))
	assert.NoError(t, gate.Authorize(&WebAppUser{ID: 7}))

	err := gate.Authorize(&WebAppUser{ID: 99})
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Empty allow-list locks everyone out.
	closed := NewGate(testBotToken, nil, false)
	err = closed.Authorize(user)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Open mode bypasses the list entirely.
	open := NewGate(testBotToken, nil, true)
	assert.NoError(t, open.Authorize(&WebAppUser{ID: 99}))
}
