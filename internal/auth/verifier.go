package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Verifier checks the editor credential sent as a bearer token. With a
// bcrypt hash configured the plain password is ignored.
type Verifier struct {
	password string
	hash     []byte
}

func NewVerifier(password, bcryptHash string) (*Verifier, error) {
	if password == "" && bcryptHash == "" {
		return nil, errors.New("an editor password or password hash is required")
	}
	v := &Verifier{password: password}
	if bcryptHash != "" {
		if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
			return nil, fmt.Errorf("parse password hash: %w", err)
		}
		v.hash = []byte(bcryptHash)
	}
	return v, nil
}

// Verify reports ErrMissingCredential or ErrInvalidCredential on failure.
func (v *Verifier) Verify(credential string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	if v.hash != nil {
		if err := bcrypt.CompareHashAndPassword(v.hash, []byte(credential)); err != nil {
			return ErrInvalidCredential
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(v.password), []byte(credential)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// Check adapts Verify to the editor's gate.
func (v *Verifier) Check(_ context.Context, candidate string) (bool, error) {
	err := v.Verify(candidate)
	if err != nil && !errors.Is(err, ErrInvalidCredential) && !errors.Is(err, ErrMissingCredential) {
		return false, err
	}
	return err == nil, nil
}

// HashPassword produces a bcrypt hash suitable for EDIT_MODE_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Fingerprint identifies a credential in logs without revealing it.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("%x", sum[:6])
}
