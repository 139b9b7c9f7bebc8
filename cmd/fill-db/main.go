// Command fill-db seeds the database with demo users, groups, and entries.
// It is idempotent: when the demo data is already present the tool exits
// without touching anything.
//
// The PostgreSQL DSN comes from the same configuration layering as the
// server (SHOPPINGLIST_DATABASE_URL or DATABASE_URL).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cm-auto/shoppinglist/pkg/config"
)

// seedUser describes one demo account. Passwords are bcrypt-hashed before
// they reach the database.
type seedUser struct {
	username    string
	displayName string
	password    string
}

var seedUsers = []seedUser{
	{"alice", "Alice", "alice and the wonderful password"},
	{"bob", "Bob", "bob's burger password"},
	{"charlie", "Charlie", "charlie and the password factory"},
}

func main() {
	if err := run(); err != nil {
		slog.Error("fill-db failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("a PostgreSQL DSN is required (set SHOPPINGLIST_DATABASE_URL)")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	// The first seeded user doubles as the idempotence marker.
	var existing int64
	err = conn.QueryRow(ctx,
		`SELECT id FROM users WHERE username = $1`, seedUsers[0].username,
	).Scan(&existing)
	if err == nil {
		slog.Info("demo data already present, nothing to do")
		return nil
	}
	if err != pgx.ErrNoRows {
		return fmt.Errorf("checking for existing data: %w", err)
	}

	return seed(ctx, conn)
}

// seed inserts the demo users, two groups, memberships, and a handful of
// entries inside a single transaction.
func seed(ctx context.Context, conn *pgx.Conn) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userIDs := make(map[string]int64, len(seedUsers))
	for _, u := range seedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", u.username, err)
		}
		var id int64
		err = tx.QueryRow(ctx,
			`INSERT INTO users (username, display_name, password)
			 VALUES ($1, $2, $3) RETURNING id`,
			u.username, u.displayName, string(hash),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting user %s: %w", u.username, err)
		}
		userIDs[u.username] = id
	}
	slog.Info("inserted users", "count", len(seedUsers))

	groupIDs := make(map[string]int64)
	for _, name := range []string{"household", "office"} {
		var id int64
		err = tx.QueryRow(ctx,
			`INSERT INTO groups (name) VALUES ($1) RETURNING id`, name,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting group %s: %w", name, err)
		}
		groupIDs[name] = id
	}
	slog.Info("inserted groups", "count", len(groupIDs))

	memberships := []struct {
		user  string
		group string
	}{
		{"alice", "household"},
		{"bob", "household"},
		{"bob", "office"},
		{"charlie", "office"},
	}
	for _, m := range memberships {
		_, err = tx.Exec(ctx,
			`INSERT INTO users_groups_relations (user_id, group_id) VALUES ($1, $2)`,
			userIDs[m.user], groupIDs[m.group],
		)
		if err != nil {
			return fmt.Errorf("inserting membership %s/%s: %w", m.user, m.group, err)
		}
	}
	slog.Info("inserted memberships", "count", len(memberships))

	entries := []struct {
		product string
		amount  float32
		unit    string
		note    string
		owner   string
		group   string // empty for personal entries
	}{
		{"milk", 1, "l", "", "alice", "household"},
		{"bread", 2, "pieces", "whole grain", "bob", "household"},
		{"coffee", 500, "g", "", "bob", "office"},
		{"notebook", 1, "pieces", "for the retro", "charlie", "office"},
		{"chocolate", 3, "bars", "", "alice", ""},
	}
	for _, e := range entries {
		var note *string
		if e.note != "" {
			note = &e.note
		}
		var groupID *int64
		if e.group != "" {
			id := groupIDs[e.group]
			groupID = &id
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO entries (product, amount, unit, note, user_id, group_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.product, e.amount, e.unit, note, userIDs[e.owner], groupID,
		)
		if err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.product, err)
		}
	}
	slog.Info("inserted entries", "count", len(entries))

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing seed data: %w", err)
	}
	return nil
}
