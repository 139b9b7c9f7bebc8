package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/cm-auto/shoppinglist/pkg/api"
	"github.com/cm-auto/shoppinglist/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	// Verify podman is running.
	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("shoppinglist_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func insertUser(t *testing.T, s *Store, username, password string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	var id int64
	err = s.pool.QueryRow(context.Background(),
		`INSERT INTO users (username, display_name, password) VALUES ($1, $2, $3) RETURNING id`,
		username, username, string(hash),
	).Scan(&id)
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	return id
}

func insertGroup(t *testing.T, s *Store, name string, members ...int64) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	if err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id); err != nil {
		t.Fatalf("inserting group: %v", err)
	}
	for _, member := range members {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO users_groups_relations (user_id, group_id) VALUES ($1, $2)`,
			member, id,
		); err != nil {
			t.Fatalf("inserting membership: %v", err)
		}
	}
	return id
}

func TestPostgres_FindUserByUsername(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	id := insertUser(t, store, "alice", "secret")

	ua, err := store.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername failed: %v", err)
	}
	if ua.ID != id {
		t.Errorf("ID = %d, want %d", ua.ID, id)
	}
	if bcrypt.CompareHashAndPassword([]byte(ua.PasswordHash), []byte("secret")) != nil {
		t.Error("stored hash does not verify the password")
	}

	_, err = store.FindUserByUsername(ctx, "mallory")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_GetUserScoped(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	bob := insertUser(t, store, "bob", "secret")

	u, err := store.GetUserScoped(ctx, "alice", alice)
	if err != nil {
		t.Fatalf("GetUserScoped failed: %v", err)
	}
	if u.ID != alice || u.Username != "alice" {
		t.Errorf("got %+v, want alice", u)
	}

	if _, err := store.GetUserScoped(ctx, "alice", bob); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign username: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetUserScoped(ctx, "999999", alice); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign id: expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_GroupScoping(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	bob := insertUser(t, store, "bob", "secret")
	carol := insertUser(t, store, "carol", "secret")
	household := insertGroup(t, store, "household", alice, bob)

	groups, err := store.ListGroups(ctx, alice)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != household {
		t.Errorf("groups = %v, want [household]", groups)
	}

	if _, err := store.GetGroupScoped(ctx, household, carol); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("non-member: expected ErrNotFound, got %v", err)
	}

	users, err := store.ListGroupUsers(ctx, household)
	if err != nil {
		t.Fatalf("ListGroupUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("len(users) = %d, want 2", len(users))
	}

	ok, err := store.IsMember(ctx, alice, household)
	if err != nil || !ok {
		t.Errorf("IsMember(alice) = %v, %v, want true", ok, err)
	}
	ok, err = store.IsMember(ctx, carol, household)
	if err != nil || ok {
		t.Errorf("IsMember(carol) = %v, %v, want false", ok, err)
	}
}

func TestPostgres_EntryVisibility(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	bob := insertUser(t, store, "bob", "secret")
	carol := insertUser(t, store, "carol", "secret")
	household := insertGroup(t, store, "household", alice, bob)

	personal, err := store.CreateEntry(ctx, alice, storage.CreateEntryParams{
		Product: "milk", Amount: 1, Unit: "l",
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	shared, err := store.CreateEntry(ctx, alice, storage.CreateEntryParams{
		Product: "eggs", Amount: 12, Unit: "pcs", GroupID: &household,
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	entries, err := store.ListEntries(ctx, alice)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("alice sees %d entries, want 2", len(entries))
	}

	entries, err = store.ListEntries(ctx, bob)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != shared.ID {
		t.Errorf("bob sees %v, want only the shared entry", entries)
	}

	entries, err = store.ListEntries(ctx, carol)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("carol sees %d entries, want 0", len(entries))
	}

	if _, err := store.GetEntryScoped(ctx, personal.ID, bob); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign personal entry: expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_OwnerLeftGroup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	household := insertGroup(t, store, "household", alice)

	shared, err := store.CreateEntry(ctx, alice, storage.CreateEntryParams{
		Product: "eggs", Amount: 12, Unit: "pcs", GroupID: &household,
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	if _, err := store.pool.Exec(ctx,
		`DELETE FROM users_groups_relations WHERE user_id = $1 AND group_id = $2`,
		alice, household,
	); err != nil {
		t.Fatalf("removing membership: %v", err)
	}

	if _, err := store.GetEntryScoped(ctx, shared.ID, alice); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("after leaving group: expected ErrNotFound, got %v", err)
	}

	facts, err := store.EntryAccessFacts(ctx, shared.ID, alice)
	if err != nil {
		t.Fatalf("EntryAccessFacts failed: %v", err)
	}
	if facts.IsMember {
		t.Error("IsMember = true after leaving the group")
	}
	if facts.OwnerID != alice {
		t.Errorf("OwnerID = %d, want %d", facts.OwnerID, alice)
	}
}

func TestPostgres_UpdateEntry(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	e, err := store.CreateEntry(ctx, alice, storage.CreateEntryParams{
		Product: "milk", Amount: 1, Unit: "l",
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	product := "oat milk"
	bought := true
	updated, err := store.UpdateEntry(ctx, e.ID, storage.UpdateEntryParams{
		Product: &product,
		Bought:  &bought,
	})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if updated.Product != "oat milk" {
		t.Errorf("Product = %q, want %q", updated.Product, "oat milk")
	}
	if updated.Bought == nil {
		t.Error("Bought not stamped")
	}

	note := "organic"
	updated, err = store.UpdateEntry(ctx, e.ID, storage.UpdateEntryParams{
		Note: api.NullableText{Set: true, Value: &note},
	})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if updated.Note == nil || *updated.Note != "organic" {
		t.Errorf("Note = %v, want organic", updated.Note)
	}

	unbought := false
	updated, err = store.UpdateEntry(ctx, e.ID, storage.UpdateEntryParams{
		Note:   api.NullableText{Set: true, Value: nil},
		Bought: &unbought,
	})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if updated.Note != nil {
		t.Errorf("Note = %q, want cleared", *updated.Note)
	}
	if updated.Bought != nil {
		t.Error("Bought not cleared")
	}

	if _, err := store.UpdateEntry(ctx, 999999, storage.UpdateEntryParams{Product: &product}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("absent entry: expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_DeleteEntry(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	e, err := store.CreateEntry(ctx, alice, storage.CreateEntryParams{
		Product: "milk", Amount: 1, Unit: "l",
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	if err := store.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if err := store.DeleteEntry(ctx, e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_GroupDeleteDetachesEntries(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alice := insertUser(t, store, "alice", "secret")
	household := insertGroup(t, store, "household", alice)

	e, err := store.CreateEntry(ctx, alice, storage.CreateEntryParams{
		Product: "eggs", Amount: 12, Unit: "pcs", GroupID: &household,
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	if _, err := store.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, household); err != nil {
		t.Fatalf("deleting group: %v", err)
	}

	// group_id is ON DELETE SET NULL, so the entry falls back to personal.
	got, err := store.GetEntryScoped(ctx, e.ID, alice)
	if err != nil {
		t.Fatalf("GetEntryScoped failed: %v", err)
	}
	if got.GroupID != nil {
		t.Errorf("GroupID = %v, want NULL after group delete", got.GroupID)
	}
}
