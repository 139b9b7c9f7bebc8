package api

import (
	"encoding/json"
	"time"
)

// User is a registered account. The password hash never leaves the storage
// layer; this type only carries the fields exposed over the API.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Group is a named collection of users. Membership in a group grants
// visibility over the entries assigned to it.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Entry is a single shopping list item. It always has exactly one owner
// (UserID) and optionally an associated group. When GroupID is set,
// visibility is determined by group membership alone; ownership is no
// longer sufficient.
type Entry struct {
	ID      int64      `json:"id"`
	Product string     `json:"product"`
	Amount  float32    `json:"amount"`
	Unit    string     `json:"unit"`
	Note    *string    `json:"note"`
	Created time.Time  `json:"created"`
	Bought  *time.Time `json:"bought"`
	UserID  int64      `json:"user_id"`
	GroupID *int64     `json:"group_id"`
}

// CreateEntryRequest is the payload for POST /api/v1/entries.
type CreateEntryRequest struct {
	Product string  `json:"product"`
	Amount  float32 `json:"amount"`
	Unit    string  `json:"unit"`
	Note    *string `json:"note"`
	GroupID *int64  `json:"group_id"`
}

// PatchEntryRequest is the payload for PATCH /api/v1/entries/{id}.
// All fields are optional; a patch with no fields at all is rejected.
type PatchEntryRequest struct {
	Product *string      `json:"product"`
	Amount  *float32     `json:"amount"`
	Unit    *string      `json:"unit"`
	Note    NullableText `json:"note"`
	Bought  *bool        `json:"bought"`
}

// IsEmpty reports whether the patch carries no fields.
func (r *PatchEntryRequest) IsEmpty() bool {
	return r.Product == nil && r.Amount == nil && r.Unit == nil &&
		!r.Note.Set && r.Bought == nil
}

// NullableText distinguishes three JSON states for a string field:
// absent, explicit null, and a value. An explicit null clears the field,
// absence leaves it untouched.
type NullableText struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only invoked when the field is present, so Set
// records presence and Value records null versus text.
func (n *NullableText) UnmarshalJSON(data []byte) error {
	n.Set = true
	return json.Unmarshal(data, &n.Value)
}

// MarshalJSON round-trips the value; an unset field marshals as null.
func (n NullableText) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Value)
}
