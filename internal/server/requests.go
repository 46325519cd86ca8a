package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"civiq/internal/core"
)

var validate = validator.New()

// createComplaintRequest is the payload for POST /api/complaints.
type createComplaintRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Category    string `json:"category" validate:"required,oneof=roads lighting waste water parks noise other"`
	Location    string `json:"location" validate:"max=500"`
}

// updateStatusRequest is the payload for PATCH /api/complaints/:id/status.
type updateStatusRequest struct {
	Status   string `json:"status" validate:"required"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

// assignRequest is the payload for PATCH /api/complaints/:id/assign.
type assignRequest struct {
	AssigneeID string `json:"assignee_id" validate:"max=128"`
}

// addNoteRequest is the payload for POST /api/complaints/:id/notes.
type addNoteRequest struct {
	Body     string `json:"body" validate:"required,min=1,max=5000"`
	Internal bool   `json:"internal"`
}

// decodeAndValidate unmarshals body into req and runs struct validation.
// The raw body is read by the handler beforehand so the coordinator can
// fingerprint it for idempotency.
func decodeAndValidate(body []byte, req interface{}) error {
	if err := json.Unmarshal(body, req); err != nil {
		return core.NewValidationError("invalid request body: "+err.Error(), err)
	}
	if err := validate.Struct(req); err != nil {
		return core.NewValidationError(validationMessage(err), err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
