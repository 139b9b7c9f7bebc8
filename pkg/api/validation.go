package api

import "strings"

// ValidateCreateEntry checks a CreateEntryRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request is
// valid. Group membership is not checked here; that is an authorization
// concern handled against the store.
func ValidateCreateEntry(req *CreateEntryRequest) *APIError {
	if strings.TrimSpace(req.Product) == "" {
		return NewInvalidRequestError("product is required")
	}
	if req.Amount <= 0 {
		return NewInvalidRequestError("amount must be positive")
	}
	if strings.TrimSpace(req.Unit) == "" {
		return NewInvalidRequestError("unit is required")
	}
	return nil
}

// ValidatePatchEntry checks a PatchEntryRequest. An empty patch is rejected
// so a PATCH request always changes at least one column.
func ValidatePatchEntry(req *PatchEntryRequest) *APIError {
	if req.IsEmpty() {
		return NewInvalidRequestError("specify at least one field!")
	}
	if req.Product != nil && strings.TrimSpace(*req.Product) == "" {
		return NewInvalidRequestError("product must not be empty")
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return NewInvalidRequestError("amount must be positive")
	}
	if req.Unit != nil && strings.TrimSpace(*req.Unit) == "" {
		return NewInvalidRequestError("unit must not be empty")
	}
	return nil
}
