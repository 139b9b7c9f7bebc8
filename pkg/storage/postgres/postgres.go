// Package postgres provides the PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and pushes every visibility rule
// into the queries themselves, so scoped reads only ever return rows the
// calling principal may see.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cm-auto/shoppinglist/pkg/api"
	"github.com/cm-auto/shoppinglist/pkg/storage"
)

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// FindUserByUsername returns the id and password hash of one user.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*storage.UserAuth, error) {
	var ua storage.UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT id, password FROM users WHERE username = $1`,
		username,
	).Scan(&ua.ID, &ua.PasswordHash)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}
	return &ua, nil
}

// parseID interprets an identifier as a numeric id, returning nil when it
// is a username instead.
func parseID(identifier string) *int64 {
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// GetUserScoped resolves an id-or-username identifier to the principal's
// own row only. A numeric identifier that is not the principal's id is
// rejected before touching the database.
func (s *Store) GetUserScoped(ctx context.Context, identifier string, principal int64) (*api.User, error) {
	idArg := parseID(identifier)
	if idArg != nil && *idArg != principal {
		return nil, storage.ErrNotFound
	}

	var u api.User
	err := s.pool.QueryRow(ctx,
		// The final id check keeps username lookups from exposing other
		// users' rows.
		`SELECT id, username, display_name FROM users
		 WHERE (username = $1 OR id = $2) AND id = $3`,
		identifier, idArg, principal,
	).Scan(&u.ID, &u.Username, &u.DisplayName)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// ListGroups returns the groups the principal is a member of.
func (s *Store) ListGroups(ctx context.Context, principal int64) ([]api.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM groups
		 INNER JOIN users_groups_relations AS ugr
		     ON ugr.group_id = id AND ugr.user_id = $1
		 ORDER BY id`,
		principal,
	)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	return collectGroups(rows)
}

// GetGroupScoped returns one group if the principal is a member.
func (s *Store) GetGroupScoped(ctx context.Context, groupID, principal int64) (*api.Group, error) {
	var g api.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM groups
		 INNER JOIN users_groups_relations AS ugr
		     ON ugr.group_id = id AND ugr.user_id = $1
		 WHERE id = $2`,
		principal, groupID,
	).Scan(&g.ID, &g.Name)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying group: %w", err)
	}
	return &g, nil
}

// ListGroupUsers returns the members of a group.
func (s *Store) ListGroupUsers(ctx context.Context, groupID int64) ([]api.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, display_name FROM users
		 INNER JOIN users_groups_relations AS ugr ON users.id = ugr.user_id
		 WHERE ugr.group_id = $1`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying group users: %w", err)
	}
	defer rows.Close()

	users := []api.User{}
	for rows.Next() {
		var u api.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading user rows: %w", err)
	}
	return users, nil
}

// ListUserGroups returns the groups of the user named by identifier,
// intersected with the principal's own memberships.
func (s *Store) ListUserGroups(ctx context.Context, identifier string, principal int64) ([]api.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM groups
		 INNER JOIN users_groups_relations AS ugr
		     ON groups.id = ugr.group_id AND ugr.user_id = $1
		 WHERE ugr.user_id = $2
		    OR ugr.user_id IN (SELECT id FROM users WHERE username = $3)`,
		principal, parseID(identifier), identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("querying user groups: %w", err)
	}
	return collectGroups(rows)
}

// entryColumns is the select list shared by all entry reads.
const entryColumns = `e.id, e.product, e.amount, e.unit, e.note, e.created, e.bought, e.user_id, e.group_id`

// entryVisibility joins entries against the principal's memberships so a
// row survives only when it is a personal entry of the principal or
// belongs to a group the principal is in. An entry whose owner left its
// group drops out: ownership stops counting once a group is attached.
const entryVisibility = `
	FROM entries AS e
	LEFT OUTER JOIN users_groups_relations AS ugr
	    ON ugr.group_id = e.group_id AND ugr.user_id = $1
	WHERE (ugr.group_id IS NULL AND e.user_id = $1
	    OR ugr.group_id IS NOT NULL)`

// ListEntries returns all entries visible to the principal.
func (s *Store) ListEntries(ctx context.Context, principal int64) ([]api.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+entryVisibility+` ORDER BY e.id`,
		principal,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	entries := []api.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entry rows: %w", err)
	}
	return entries, nil
}

// GetEntryScoped returns one entry under the same visibility predicate as
// ListEntries.
func (s *Store) GetEntryScoped(ctx context.Context, entryID, principal int64) (*api.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+entryVisibility+` AND e.id = $2`,
		principal, entryID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return e, err
}

// CreateEntry inserts an entry owned by the principal.
func (s *Store) CreateEntry(ctx context.Context, principal int64, params storage.CreateEntryParams) (*api.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO entries (product, amount, unit, note, user_id, group_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, product, amount, unit, note, created, bought, user_id, group_id`,
		params.Product, params.Amount, params.Unit, params.Note, principal, params.GroupID,
	)
	return scanEntry(row)
}

// UpdateEntry applies a partial update. The statement is built column by
// column so untouched fields keep their values; Bought true stamps now()
// and false clears the timestamp.
func (s *Store) UpdateEntry(ctx context.Context, entryID int64, params storage.UpdateEntryParams) (*api.Entry, error) {
	var sets []string
	var args []any

	bind := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if params.Product != nil {
		bind("product = $%d", *params.Product)
	}
	if params.Amount != nil {
		bind("amount = $%d", *params.Amount)
	}
	if params.Unit != nil {
		bind("unit = $%d", *params.Unit)
	}
	if params.Note.Set {
		bind("note = $%d", params.Note.Value)
	}
	if params.Bought != nil {
		if *params.Bought {
			sets = append(sets, "bought = now()")
		} else {
			sets = append(sets, "bought = NULL")
		}
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("update without fields")
	}

	args = append(args, entryID)
	query := fmt.Sprintf(
		`UPDATE entries SET %s WHERE id = $%d
		 RETURNING id, product, amount, unit, note, created, bought, user_id, group_id`,
		strings.Join(sets, ", "), len(args),
	)

	e, err := scanEntry(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return e, err
}

// DeleteEntry removes an entry.
func (s *Store) DeleteEntry(ctx context.Context, entryID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// EntryAccessFacts fetches owner, group, and membership-for-principal of
// one entry in a single round trip.
func (s *Store) EntryAccessFacts(ctx context.Context, entryID, principal int64) (*storage.AccessFacts, error) {
	var facts storage.AccessFacts
	err := s.pool.QueryRow(ctx,
		`SELECT entries.user_id, entries.group_id,
		        CASE WHEN ugr.group_id IS NULL THEN false ELSE true END AS is_member
		 FROM entries
		 LEFT OUTER JOIN users_groups_relations AS ugr
		     ON entries.group_id = ugr.group_id AND ugr.user_id = $1
		 WHERE entries.id = $2`,
		principal, entryID,
	).Scan(&facts.OwnerID, &facts.GroupID, &facts.IsMember)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry access facts: %w", err)
	}
	return &facts, nil
}

// IsMember reports whether the principal belongs to the group.
func (s *Store) IsMember(ctx context.Context, principal, groupID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM users_groups_relations
		     WHERE user_id = $1 AND group_id = $2
		 )`,
		principal, groupID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying membership: %w", err)
	}
	return exists, nil
}

// scanEntry reads one entry row from a pgx.Row or pgx.Rows.
func scanEntry(row pgx.Row) (*api.Entry, error) {
	var e api.Entry
	err := row.Scan(&e.ID, &e.Product, &e.Amount, &e.Unit, &e.Note,
		&e.Created, &e.Bought, &e.UserID, &e.GroupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entry row: %w", err)
	}
	return &e, nil
}

// collectGroups drains a group result set.
func collectGroups(rows pgx.Rows) ([]api.Group, error) {
	defer rows.Close()

	groups := []api.Group{}
	for rows.Next() {
		var g api.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading group rows: %w", err)
	}
	return groups, nil
}
