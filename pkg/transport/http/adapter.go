// Package http serves the shoppinglist REST API. The adapter owns the
// route table and the handlers; credential gating happens in the mounted
// auth middleware, resource authorization in pkg/authz before any
// mutation touches the store.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cm-auto/shoppinglist/pkg/api"
	"github.com/cm-auto/shoppinglist/pkg/auth"
	"github.com/cm-auto/shoppinglist/pkg/authz"
	"github.com/cm-auto/shoppinglist/pkg/storage"
	"github.com/cm-auto/shoppinglist/pkg/transport"
)

// Adapter routes API requests to the appropriate handler and serializes
// responses in the hypermedia envelope format.
type Adapter struct {
	store  storage.Store
	authz  *authz.Authorizer
	mux    *http.ServeMux
	config Config
	logger *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	BaseURL     string // externally visible origin for _links; empty derives it per request
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":3030",
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// NewAdapter creates the API adapter and mounts all routes. The index is
// guarded by an Optional gate, every resource route by a Required gate;
// each route passes through exactly one of the two.
func NewAdapter(store storage.Store, verifier *auth.Verifier, authorizer *authz.Authorizer, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		store:  store,
		authz:  authorizer,
		mux:    http.NewServeMux(),
		config: cfg,
		logger: logger,
	}

	optional := auth.Gate(auth.Optional, verifier, logger)
	required := auth.Gate(auth.Required, verifier, logger)

	mount := func(pattern string, gate func(http.Handler) http.Handler, h http.HandlerFunc) {
		a.mux.Handle(pattern, gate(h))
	}

	mount("GET "+apiPrefix, optional, a.handleIndex)
	mount("OPTIONS "+apiPrefix, optional, allowHandler("GET, HEAD, OPTIONS"))

	mount("GET "+apiPrefix+"/users/{identifier}", required, a.handleGetUser)
	mount("OPTIONS "+apiPrefix+"/users/{identifier}", required, allowHandler("GET, HEAD, OPTIONS"))
	mount("GET "+apiPrefix+"/users/{identifier}/groups", required, a.handleGetUserGroups)
	mount("OPTIONS "+apiPrefix+"/users/{identifier}/groups", required, allowHandler("GET, HEAD, OPTIONS"))

	mount("GET "+apiPrefix+"/groups", required, a.handleListGroups)
	mount("OPTIONS "+apiPrefix+"/groups", required, allowHandler("GET, HEAD, OPTIONS"))
	mount("GET "+apiPrefix+"/groups/{id}", required, a.handleGetGroup)
	mount("OPTIONS "+apiPrefix+"/groups/{id}", required, allowHandler("GET, HEAD, OPTIONS"))
	mount("GET "+apiPrefix+"/groups/{id}/users", required, a.handleGetGroupUsers)
	mount("OPTIONS "+apiPrefix+"/groups/{id}/users", required, allowHandler("GET, HEAD, OPTIONS"))

	mount("GET "+apiPrefix+"/entries", required, a.handleListEntries)
	mount("POST "+apiPrefix+"/entries", required, a.handleCreateEntry)
	mount("OPTIONS "+apiPrefix+"/entries", required, allowHandler("GET, HEAD, POST, OPTIONS"))
	mount("GET "+apiPrefix+"/entries/{id}", required, a.handleGetEntry)
	mount("PATCH "+apiPrefix+"/entries/{id}", required, a.handlePatchEntry)
	mount("DELETE "+apiPrefix+"/entries/{id}", required, a.handleDeleteEntry)
	mount("OPTIONS "+apiPrefix+"/entries/{id}", required, allowHandler("GET, HEAD, PATCH, DELETE, OPTIONS"))

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// allowHandler answers an OPTIONS preflight with the allowed method set.
func allowHandler(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusNoContent)
	}
}

// principal extracts the verified user id and answers not-found when it is
// absent. A request can reach a Required-gated handler without a principal
// when a known username carried a wrong password, so every handler that
// needs one enforces it here.
func (a *Adapter) principal(w http.ResponseWriter, r *http.Request) (int64, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		transport.WriteAPIError(w, api.NewNotFoundError("resource not found"))
		return 0, false
	}
	return principal, true
}

// pathID parses a numeric path segment. A non-numeric value names no
// resource, so the answer is not-found rather than a syntax error.
func pathID(w http.ResponseWriter, r *http.Request, segment string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(segment), 10, 64)
	if err != nil {
		transport.WriteAPIError(w, api.NewNotFoundError("resource not found"))
		return 0, false
	}
	return id, true
}

// serverError logs the cause and answers with a generic body.
func (a *Adapter) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.String("request_id", transport.RequestIDFromContext(r.Context())),
	)
	transport.WriteAPIError(w, api.NewServerError("internal server error"))
}

// handleIndex lists the resource collections and their URLs. Mounted under
// the Optional gate, so it also answers anonymous requests.
func (a *Adapter) handleIndex(w http.ResponseWriter, r *http.Request) {
	base := a.baseURL(r) + apiPrefix
	// A struct keeps the key order stable.
	index := struct {
		Entries string `json:"entries"`
		Groups  string `json:"groups"`
	}{
		Entries: base + "/entries",
		Groups:  base + "/groups",
	}
	transport.WriteJSON(w, http.StatusOK, index)
}

// handleGetUser serves one user by id or username. Only the caller's own
// row is visible; everything else is a uniform not-found.
func (a *Adapter) handleGetUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	user, err := a.store.GetUserScoped(r.Context(), r.PathValue("identifier"), principal)
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("user not found"))
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resource, err := a.userResource(r, user)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resource)
}

// handleGetUserGroups lists the groups of a user, intersected with the
// caller's own memberships.
func (a *Adapter) handleGetUserGroups(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	groups, err := a.store.ListUserGroups(r.Context(), r.PathValue("identifier"), principal)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.writeGroupCollection(w, r, groups)
}

// handleListGroups lists the caller's groups.
func (a *Adapter) handleListGroups(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	groups, err := a.store.ListGroups(r.Context(), principal)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.writeGroupCollection(w, r, groups)
}

func (a *Adapter) writeGroupCollection(w http.ResponseWriter, r *http.Request, groups []api.Group) {
	resources := make([]map[string]any, 0, len(groups))
	for i := range groups {
		resource, err := a.groupResource(r, &groups[i])
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		resources = append(resources, resource)
	}
	transport.WriteJSON(w, http.StatusOK, resources)
}

// handleGetGroup serves one group, membership-scoped.
func (a *Adapter) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	group, err := a.store.GetGroupScoped(r.Context(), groupID, principal)
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("group not found"))
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resource, err := a.groupResource(r, group)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resource)
}

// handleGetGroupUsers lists the members of a group the caller belongs to.
func (a *Adapter) handleGetGroupUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	member, err := a.authz.IsGroupMember(r.Context(), principal, groupID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if !member {
		transport.WriteAPIError(w, api.NewNotFoundError("group not found"))
		return
	}

	users, err := a.store.ListGroupUsers(r.Context(), groupID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resources := make([]map[string]any, 0, len(users))
	for i := range users {
		resource, err := a.userResource(r, &users[i])
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		resources = append(resources, resource)
	}
	transport.WriteJSON(w, http.StatusOK, resources)
}

// handleListEntries lists all entries visible to the caller. Authorization
// happens inside the query: personal entries plus entries of groups the
// caller is a member of, and nothing else, ever reach the result set.
func (a *Adapter) handleListEntries(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	entries, err := a.store.ListEntries(r.Context(), principal)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resources := make([]map[string]any, 0, len(entries))
	for i := range entries {
		resource, err := a.entryResource(r, &entries[i])
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		resources = append(resources, resource)
	}
	transport.WriteJSON(w, http.StatusOK, resources)
}

// decodeBody decodes a JSON request body with a size cap.
func (a *Adapter) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError(fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("invalid JSON body"))
		return false
	}
	return true
}

// handleCreateEntry creates an entry owned by the caller. When the payload
// targets a group, membership is verified first; a non-member gets the
// same not-found a nonexistent group would produce, and nothing is stored.
func (a *Adapter) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	var req api.CreateEntryRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if apiErr := api.ValidateCreateEntry(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if req.GroupID != nil {
		member, err := a.authz.IsGroupMember(r.Context(), principal, *req.GroupID)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		if !member {
			transport.WriteAPIError(w, api.NewNotFoundError("group not found"))
			return
		}
	}

	entry, err := a.store.CreateEntry(r.Context(), principal, storage.CreateEntryParams{
		Product: req.Product,
		Amount:  req.Amount,
		Unit:    req.Unit,
		Note:    req.Note,
		GroupID: req.GroupID,
	})
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resource, err := a.entryResource(r, entry)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusCreated, resource)
}

// handleGetEntry serves one entry under the read predicate.
func (a *Adapter) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	canRead, err := a.authz.CanReadEntry(r.Context(), principal, entryID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if !canRead {
		transport.WriteAPIError(w, api.NewNotFoundError("entry not found"))
		return
	}

	entry, err := a.store.GetEntryScoped(r.Context(), entryID, principal)
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("entry not found"))
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resource, err := a.entryResource(r, entry)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resource)
}

// handlePatchEntry applies a partial update under the modify predicate.
func (a *Adapter) handlePatchEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.PatchEntryRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if apiErr := api.ValidatePatchEntry(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	canModify, err := a.authz.CanModifyEntry(r.Context(), principal, entryID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if !canModify {
		transport.WriteAPIError(w, api.NewNotFoundError("entry not found"))
		return
	}

	entry, err := a.store.UpdateEntry(r.Context(), entryID, storage.UpdateEntryParams{
		Product: req.Product,
		Amount:  req.Amount,
		Unit:    req.Unit,
		Note:    req.Note,
		Bought:  req.Bought,
	})
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("entry not found"))
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resource, err := a.entryResource(r, entry)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resource)
}

// handleDeleteEntry removes an entry under the modify predicate.
func (a *Adapter) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	canModify, err := a.authz.CanModifyEntry(r.Context(), principal, entryID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if !canModify {
		transport.WriteAPIError(w, api.NewNotFoundError("entry not found"))
		return
	}

	if err := a.store.DeleteEntry(r.Context(), entryID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
