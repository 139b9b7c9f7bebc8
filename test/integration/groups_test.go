package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGroups_List(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/v1/groups", "", "alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var groups []map[string]any
	decodeJSON(t, resp, &groups)
	if len(groups) != 1 || groups[0]["name"] != "household" {
		t.Errorf("groups = %v, want [household]", groups)
	}
	if _, ok := groups[0]["_links"]; !ok {
		t.Error("group carries no _links")
	}

	resp = doRequest(t, http.MethodGet, "/api/v1/groups", "", "carol")
	decodeJSON(t, resp, &groups)
	if len(groups) != 0 {
		t.Errorf("groups = %v, want empty for carol", groups)
	}
}

func TestGroups_Get(t *testing.T) {
	path := fmt.Sprintf("/api/v1/groups/%d", testEnv.Household)

	resp := doRequest(t, http.MethodGet, path, "", "bob")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member: status = %d, want 200", resp.StatusCode)
	}
	var group map[string]any
	decodeJSON(t, resp, &group)
	if group["name"] != "household" {
		t.Errorf("name = %v, want household", group["name"])
	}

	// Non-membership and nonexistence are the same answer.
	resp = doRequest(t, http.MethodGet, path, "", "carol")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("non-member: status = %d, want 404", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodGet, "/api/v1/groups/999999", "", "bob")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("nonexistent: status = %d, want 404", resp.StatusCode)
	}
}

func TestGroups_Members(t *testing.T) {
	path := fmt.Sprintf("/api/v1/groups/%d/users", testEnv.Household)

	resp := doRequest(t, http.MethodGet, path, "", "alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var users []map[string]any
	decodeJSON(t, resp, &users)
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	if users[0]["username"] != "alice" || users[1]["username"] != "bob" {
		t.Errorf("users = %v, want alice and bob", users)
	}

	resp = doRequest(t, http.MethodGet, path, "", "carol")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("non-member: status = %d, want 404", resp.StatusCode)
	}
}

func TestUsers_Get(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/v1/users/alice", "", "alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var user map[string]any
	decodeJSON(t, resp, &user)
	if user["username"] != "alice" {
		t.Errorf("username = %v, want alice", user["username"])
	}
	if _, ok := user["password"]; ok {
		t.Error("password field leaked into the response")
	}

	// Other users' rows are uniformly invisible.
	resp = doRequest(t, http.MethodGet, "/api/v1/users/bob", "", "alice")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign user: status = %d, want 404", resp.StatusCode)
	}
}

func TestUsers_Groups(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/v1/users/bob/groups", "", "bob")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var groups []map[string]any
	decodeJSON(t, resp, &groups)
	if len(groups) != 1 || groups[0]["name"] != "household" {
		t.Errorf("groups = %v, want [household]", groups)
	}

	// A foreign identifier intersects with the caller's memberships to
	// nothing.
	resp = doRequest(t, http.MethodGet, "/api/v1/users/alice/groups", "", "carol")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	decodeJSON(t, resp, &groups)
	if len(groups) != 0 {
		t.Errorf("groups = %v, want empty", groups)
	}
}
