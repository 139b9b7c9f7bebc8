// Package authz answers the two resource-access questions of the
// shoppinglist service: may a principal touch an entry, and is a principal
// a member of a group. Both are plain store-backed predicates; there is no
// rule language and no caching, every check re-queries the store.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/cm-auto/shoppinglist/pkg/storage"
)

// Authorizer evaluates entry access and group membership against the store.
type Authorizer struct {
	store storage.Store
}

// New creates an Authorizer backed by the given store.
func New(store storage.Store) *Authorizer {
	return &Authorizer{store: store}
}

// CanModifyEntry reports whether the principal may modify the entry.
//
// An entry without a group is accessible to its owner only. Once a group
// is attached, membership in that group is the sole criterion: the owner
// loses access if they leave the group. This is intentional, not a gap.
//
// An absent entry is false, not an error; callers answer not-found either
// way so existence is never confirmed to callers who cannot see the row.
func (a *Authorizer) CanModifyEntry(ctx context.Context, principal, entryID int64) (bool, error) {
	facts, err := a.store.EntryAccessFacts(ctx, entryID, principal)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetching entry access facts: %w", err)
	}

	if facts.GroupID == nil {
		return facts.OwnerID == principal, nil
	}
	return facts.IsMember, nil
}

// CanReadEntry reports whether the principal may read the entry. Reading
// and modifying currently share one predicate; the separate name keeps
// call sites stable if they ever diverge.
func (a *Authorizer) CanReadEntry(ctx context.Context, principal, entryID int64) (bool, error) {
	return a.CanModifyEntry(ctx, principal, entryID)
}

// IsGroupMember reports whether the principal belongs to the group. Used to
// gate member listings and entry creation against a target group.
func (a *Authorizer) IsGroupMember(ctx context.Context, principal, groupID int64) (bool, error) {
	ok, err := a.store.IsMember(ctx, principal, groupID)
	if err != nil {
		return false, fmt.Errorf("checking group membership: %w", err)
	}
	return ok, nil
}
