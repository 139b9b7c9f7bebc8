package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cm-auto/shoppinglist/pkg/api"
)

// apiPrefix is the mount point of the versioned API.
const apiPrefix = "/api/v1"

// baseURL reconstructs the externally visible origin of a request. The
// configured base URL wins when set; otherwise scheme and host come from
// the request itself.
func (a *Adapter) baseURL(r *http.Request) string {
	if a.config.BaseURL != "" {
		return a.config.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// restResource flattens a resource and decorates it with _links and
// optional _sub_resources, the hypermedia envelope every collection and
// detail endpoint responds with.
func restResource(resource any, links, subResources []string) (map[string]any, error) {
	raw, err := json.Marshal(resource)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	flattened := map[string]any{}
	if err := json.Unmarshal(raw, &flattened); err != nil {
		return nil, fmt.Errorf("flattening resource: %w", err)
	}
	flattened["_links"] = links
	if subResources != nil {
		flattened["_sub_resources"] = subResources
	}
	return flattened, nil
}

// userResource builds the envelope for a user. Users are addressable both
// by id and by username, so both variants appear in the links.
func (a *Adapter) userResource(r *http.Request, u *api.User) (map[string]any, error) {
	base := a.baseURL(r) + apiPrefix
	id := strconv.FormatInt(u.ID, 10)
	return restResource(u,
		[]string{
			base + "/users/" + id,
			base + "/users/" + u.Username,
		},
		[]string{
			base + "/users/" + id + "/groups",
			base + "/users/" + u.Username + "/groups",
		},
	)
}

// groupResource builds the envelope for a group.
func (a *Adapter) groupResource(r *http.Request, g *api.Group) (map[string]any, error) {
	base := a.baseURL(r) + apiPrefix
	id := strconv.FormatInt(g.ID, 10)
	return restResource(g,
		[]string{base + "/groups/" + id},
		[]string{base + "/groups/" + id + "/users"},
	)
}

// entryResource builds the envelope for an entry.
func (a *Adapter) entryResource(r *http.Request, e *api.Entry) (map[string]any, error) {
	base := a.baseURL(r) + apiPrefix
	return restResource(e,
		[]string{base + "/entries/" + strconv.FormatInt(e.ID, 10)},
		nil,
	)
}
