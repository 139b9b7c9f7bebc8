package storage

import (
	"context"

	"github.com/cm-auto/shoppinglist/pkg/api"
)

// UserAuth carries the two columns credential verification needs. The
// password hash never travels further than the verifier.
type UserAuth struct {
	ID           int64
	PasswordHash string
}

// AccessFacts holds everything needed to decide entry visibility for one
// principal in a single round trip: the entry's owner, its optional group,
// and whether the principal is a member of that group.
type AccessFacts struct {
	OwnerID  int64
	GroupID  *int64
	IsMember bool
}

// CreateEntryParams are the caller-supplied columns of a new entry.
type CreateEntryParams struct {
	Product string
	Amount  float32
	Unit    string
	Note    *string
	GroupID *int64
}

// UpdateEntryParams describe a partial entry update. Nil pointers leave the
// column untouched. Note uses NullableText so an explicit null clears the
// column. Bought is a tri-state: nil keeps, true stamps now(), false clears.
type UpdateEntryParams struct {
	Product *string
	Amount  *float32
	Unit    *string
	Note    api.NullableText
	Bought  *bool
}

// Store is the persistence contract consumed by the auth core and the HTTP
// handlers. Scoped reads take the calling principal and embed the
// visibility predicate in the query; they return ErrNotFound both for rows
// that do not exist and rows the principal cannot see.
type Store interface {
	// FindUserByUsername returns the id and password hash for credential
	// verification. Absence is reported as ErrNotFound, not a failure.
	FindUserByUsername(ctx context.Context, username string) (*UserAuth, error)

	// GetUserScoped resolves an id-or-username identifier, restricted to
	// the principal's own row.
	GetUserScoped(ctx context.Context, identifier string, principal int64) (*api.User, error)

	// ListGroups returns the groups the principal is a member of.
	ListGroups(ctx context.Context, principal int64) ([]api.Group, error)

	// GetGroupScoped returns one group if the principal is a member.
	GetGroupScoped(ctx context.Context, groupID, principal int64) (*api.Group, error)

	// ListGroupUsers returns the members of a group. Callers must gate this
	// with IsMember; the query itself is not principal-scoped.
	ListGroupUsers(ctx context.Context, groupID int64) ([]api.User, error)

	// ListUserGroups returns the groups of the user named by identifier,
	// intersected with the principal's own memberships.
	ListUserGroups(ctx context.Context, identifier string, principal int64) ([]api.Group, error)

	// ListEntries returns all entries visible to the principal: personal
	// entries without a group, plus entries of groups the principal is a
	// member of.
	ListEntries(ctx context.Context, principal int64) ([]api.Entry, error)

	// GetEntryScoped returns one entry under the same visibility predicate
	// as ListEntries.
	GetEntryScoped(ctx context.Context, entryID, principal int64) (*api.Entry, error)

	// CreateEntry inserts an entry owned by the principal and returns the
	// stored row. Group membership must be checked by the caller first.
	CreateEntry(ctx context.Context, principal int64, params CreateEntryParams) (*api.Entry, error)

	// UpdateEntry applies a partial update and returns the stored row.
	// Access must be checked by the caller first.
	UpdateEntry(ctx context.Context, entryID int64, params UpdateEntryParams) (*api.Entry, error)

	// DeleteEntry removes an entry. Access must be checked by the caller
	// first.
	DeleteEntry(ctx context.Context, entryID int64) error

	// EntryAccessFacts fetches owner, group, and membership-for-principal
	// of one entry in a single query. Absent entry returns ErrNotFound.
	EntryAccessFacts(ctx context.Context, entryID, principal int64) (*AccessFacts, error)

	// IsMember reports whether the principal belongs to the group.
	IsMember(ctx context.Context, principal, groupID int64) (bool, error)

	// Close releases the underlying resources.
	Close()
}
