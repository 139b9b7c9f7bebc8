package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/cm-auto/shoppinglist/pkg/storage"
)

// Verdict is the outcome of verifying credentials for a user that exists.
// Matched is false when the password did not match the stored hash.
type Verdict struct {
	UserID  int64
	Matched bool
}

// Verifier checks a username/password pair against the user store. It
// performs exactly one store lookup and one bcrypt comparison per call.
type Verifier struct {
	store storage.Store
}

// NewVerifier creates a Verifier backed by the given store.
func NewVerifier(store storage.Store) *Verifier {
	return &Verifier{store: store}
}

// Verify looks up the user by username and compares the secret against the
// stored bcrypt hash. An unknown username returns (nil, nil); a wrong
// password returns a Verdict with Matched false. Only store failures and
// corrupted hashes are errors. The secret is never logged or retained.
func (v *Verifier) Verify(ctx context.Context, username, secret string) (*Verdict, error) {
	user, err := v.store.FindUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return &Verdict{UserID: user.ID, Matched: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("comparing password hash: %w", err)
	}

	return &Verdict{UserID: user.ID, Matched: true}, nil
}
