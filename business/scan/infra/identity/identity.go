// Package identity verifies API tokens for scan requests and resolves
// the user behind each token.
package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/teuchmannluca/storefront-scanner/business/scan/app"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
)

var _ app.IdentityVerifier = (*StaticVerifier)(nil)

// Credential binds one bearer token to the user id it authenticates.
type Credential struct {
	UserID string
	Token  string
}

// ParseCredentials parses "user:token" entries as configured.
func ParseCredentials(entries []string) ([]Credential, error) {
	creds := make([]Credential, 0, len(entries))
	for _, entry := range entries {
		user, token, ok := strings.Cut(entry, ":")
		if !ok || user == "" || token == "" {
			return nil, fmt.Errorf("malformed api token entry, want user:token")
		}
		creds = append(creds, Credential{UserID: user, Token: token})
	}
	return creds, nil
}

// StaticVerifier checks bearer tokens against a configured credential
// list. Comparison is constant time.
type StaticVerifier struct {
	creds []Credential
}

// NewStaticVerifier creates a verifier for the given credentials. An
// empty list rejects everything.
func NewStaticVerifier(creds []Credential) *StaticVerifier {
	return &StaticVerifier{creds: creds}
}

// Verify checks the presented token and returns the owning user id.
func (v *StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	for _, cred := range v.creds {
		if subtle.ConstantTimeCompare([]byte(cred.Token), []byte(token)) == 1 {
			return cred.UserID, nil
		}
	}
	return "", apperror.Unauthorized("unknown token")
}
