// Package memory provides an in-memory implementation of storage.Store.
// It is used by tests and by deployments that don't need persistence.
// All methods are safe for concurrent use; a single RWMutex guards the
// maps, mirroring the freshness guarantee of the database-backed store
// (every check sees the latest membership state).
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cm-auto/shoppinglist/pkg/api"
	"github.com/cm-auto/shoppinglist/pkg/storage"
)

// user is the internal user record including the password hash.
type user struct {
	api.User
	passwordHash string
}

// membershipKey identifies one (user, group) relation.
type membershipKey struct {
	userID  int64
	groupID int64
}

// Store is an in-memory storage.Store.
type Store struct {
	mu          sync.RWMutex
	users       map[int64]*user
	groups      map[int64]*api.Group
	memberships map[membershipKey]struct{}
	entries     map[int64]*api.Entry
	nextUser    int64
	nextGroup   int64
	nextEntry   int64
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:       make(map[int64]*user),
		groups:      make(map[int64]*api.Group),
		memberships: make(map[membershipKey]struct{}),
		entries:     make(map[int64]*api.Entry),
	}
}

// Close implements storage.Store; there is nothing to release.
func (s *Store) Close() {}

// AddUser registers a user with the given bcrypt password hash and
// returns the assigned id. Intended for seeding and tests.
func (s *Store) AddUser(username, displayName, passwordHash string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	s.users[s.nextUser] = &user{
		User:         api.User{ID: s.nextUser, Username: username, DisplayName: displayName},
		passwordHash: passwordHash,
	}
	return s.nextUser
}

// AddGroup registers a group and returns the assigned id.
func (s *Store) AddGroup(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGroup++
	s.groups[s.nextGroup] = &api.Group{ID: s.nextGroup, Name: name}
	return s.nextGroup
}

// AddMember adds a user to a group.
func (s *Store) AddMember(userID, groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey{userID, groupID}] = struct{}{}
}

// RemoveMember removes a user from a group. Entries the user assigned to
// the group stay with the group; the user loses access to them.
func (s *Store) RemoveMember(userID, groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, membershipKey{userID, groupID})
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*storage.UserAuth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return &storage.UserAuth{ID: u.ID, PasswordHash: u.passwordHash}, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetUserScoped(_ context.Context, identifier string, principal int64) (*api.User, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		if id != principal {
			return nil, storage.ErrNotFound
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[principal]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if identifier != strconv.FormatInt(u.ID, 10) && identifier != u.Username {
		return nil, storage.ErrNotFound
	}
	out := u.User
	return &out, nil
}

// memberLocked reports membership. Callers hold at least a read lock.
func (s *Store) memberLocked(userID, groupID int64) bool {
	_, ok := s.memberships[membershipKey{userID, groupID}]
	return ok
}

func (s *Store) groupsOfLocked(userID int64) []api.Group {
	groups := []api.Group{}
	for key := range s.memberships {
		if key.userID != userID {
			continue
		}
		if g, ok := s.groups[key.groupID]; ok {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

func (s *Store) ListGroups(_ context.Context, principal int64) ([]api.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupsOfLocked(principal), nil
}

func (s *Store) GetGroupScoped(_ context.Context, groupID, principal int64) (*api.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok || !s.memberLocked(principal, groupID) {
		return nil, storage.ErrNotFound
	}
	out := *g
	return &out, nil
}

func (s *Store) ListGroupUsers(_ context.Context, groupID int64) ([]api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []api.User{}
	for key := range s.memberships {
		if key.groupID != groupID {
			continue
		}
		if u, ok := s.users[key.userID]; ok {
			users = append(users, u.User)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) ListUserGroups(_ context.Context, identifier string, principal int64) ([]api.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// The listing is intersected with the principal's own memberships, so
	// it is non-empty only when the identifier names the principal.
	u, ok := s.users[principal]
	if !ok {
		return []api.Group{}, nil
	}
	if identifier != strconv.FormatInt(u.ID, 10) && identifier != u.Username {
		return []api.Group{}, nil
	}
	return s.groupsOfLocked(principal), nil
}

// visibleLocked applies the entry visibility invariant.
func (s *Store) visibleLocked(e *api.Entry, principal int64) bool {
	if e.GroupID == nil {
		return e.UserID == principal
	}
	return s.memberLocked(principal, *e.GroupID)
}

func (s *Store) ListEntries(_ context.Context, principal int64) ([]api.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := []api.Entry{}
	for _, e := range s.entries {
		if s.visibleLocked(e, principal) {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *Store) GetEntryScoped(_ context.Context, entryID, principal int64) (*api.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID]
	if !ok || !s.visibleLocked(e, principal) {
		return nil, storage.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *Store) CreateEntry(_ context.Context, principal int64, params storage.CreateEntryParams) (*api.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEntry++
	e := &api.Entry{
		ID:      s.nextEntry,
		Product: params.Product,
		Amount:  params.Amount,
		Unit:    params.Unit,
		Note:    params.Note,
		Created: time.Now().UTC(),
		UserID:  principal,
		GroupID: params.GroupID,
	}
	s.entries[e.ID] = e
	out := *e
	return &out, nil
}

func (s *Store) UpdateEntry(_ context.Context, entryID int64, params storage.UpdateEntryParams) (*api.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if params.Product != nil {
		e.Product = *params.Product
	}
	if params.Amount != nil {
		e.Amount = *params.Amount
	}
	if params.Unit != nil {
		e.Unit = *params.Unit
	}
	if params.Note.Set {
		e.Note = params.Note.Value
	}
	if params.Bought != nil {
		if *params.Bought {
			now := time.Now().UTC()
			e.Bought = &now
		} else {
			e.Bought = nil
		}
	}
	out := *e
	return &out, nil
}

func (s *Store) DeleteEntry(_ context.Context, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entryID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.entries, entryID)
	return nil
}

func (s *Store) EntryAccessFacts(_ context.Context, entryID, principal int64) (*storage.AccessFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	facts := &storage.AccessFacts{OwnerID: e.UserID, GroupID: e.GroupID}
	if e.GroupID != nil {
		facts.IsMember = s.memberLocked(principal, *e.GroupID)
	}
	return facts, nil
}

func (s *Store) IsMember(_ context.Context, principal, groupID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberLocked(principal, groupID), nil
}
