package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Magic-link tokens are HMAC signatures over the recipient's identity and
// their last login time, so verifying a link bumps LastLoginAt and thereby
// invalidates every previously issued token (single-use property).

var (
	salt    = []byte("aimasterclass.core.user.token_gen")
	nowFunc = time.Now // mockable

	// set once from config by NewService
	secretKey        []byte
	magicLinkTimeout = 15 * time.Minute

	// errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes the email the link was requested for.
func EncodeUID(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(email))
}

// decodeUID base64 decodes given UID back into an email.
func decodeUID(uid string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// makeToken generates a magic-link token for an email address. usr is the
// zero User when no account exists yet.
func makeToken(email string, usr User) string {
	return makeTokenWithTimestamp(email, usr, numSecondsSince2001(nowFunc()))
}

// verifyToken checks that a magic-link token is genuine and within its
// validity window.
func verifyToken(email string, usr User, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	// check that token has not been tampered with
	newToken := makeTokenWithTimestamp(email, usr, ts)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return ErrInvalidToken
	}

	// check that the timestamp is within limit
	if (numSecondsSince2001(time.Now()) - ts) > int(magicLinkTimeout/time.Second) {
		return ErrTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(email string, usr User, ts int) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig := sign(hashValue(email, usr, ts))
	return fmt.Sprintf("%s-%s", tsB32, sig)
}

func numSecondsSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(ref) / time.Second)
}

func sign(val []byte) string {
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(email string, usr User, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(email)
	val.WriteString(usr.ID)
	if !usr.LastLoginAt.IsZero() {
		val.WriteString(usr.LastLoginAt.String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
