// Package server provides the HTTP surface of the complaint API: handlers,
// authentication and rate-limit middleware, and server setup.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"civiq/internal/complaints"
	"civiq/internal/core"
	"civiq/internal/protect"
)

const jsonContentType = "application/json"

// Handler holds the HTTP handlers. Every route runs through the coordinator
// so its protection policy is applied uniformly.
type Handler struct {
	svc      *complaints.Service
	coord    *protect.Coordinator
	policies map[string]protect.Policy
}

// NewHandler creates a handler over the complaint service and coordinator.
func NewHandler(svc *complaints.Service, coord *protect.Coordinator, policies map[string]protect.Policy) *Handler {
	return &Handler{svc: svc, coord: coord, policies: policies}
}

// ListComplaints handles GET /api/complaints.
func (h *Handler) ListComplaints(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return handleError(c, err)
	}

	filter, err := parseFilter(c)
	if err != nil {
		return handleError(c, err)
	}

	err = h.coord.CachedRead(c, h.policy("complaints.list"), func(ctx context.Context) (*protect.Result, error) {
		out, err := h.svc.List(ctx, identity, filter)
		if err != nil {
			return nil, err
		}
		return jsonResult(http.StatusOK, map[string]interface{}{"complaints": out, "count": len(out)})
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// GetComplaint handles GET /api/complaints/:id.
func (h *Handler) GetComplaint(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return handleError(c, err)
	}

	id := c.Param("id")
	err = h.coord.CachedRead(c, h.policy("complaints.get"), func(ctx context.Context) (*protect.Result, error) {
		out, err := h.svc.Get(ctx, identity, id)
		if err != nil {
			return nil, err
		}
		return jsonResult(http.StatusOK, out)
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// CreateComplaint handles POST /api/complaints.
func (h *Handler) CreateComplaint(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return handleError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return handleError(c, err)
	}
	var req createComplaintRequest
	if err := decodeAndValidate(body, &req); err != nil {
		return handleError(c, err)
	}

	err = h.coord.Mutate(c, h.policy("complaints.create"), "", body, func(ctx context.Context) (*protect.Result, error) {
		out, err := h.svc.Create(ctx, identity, complaints.CreateInput{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Location:    req.Location,
		})
		if err != nil {
			return nil, err
		}
		return jsonResult(http.StatusCreated, out)
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// UpdateStatus handles PATCH /api/complaints/:id/status.
func (h *Handler) UpdateStatus(c echo.Context) error {
	identity, err := requireStaff(c)
	if err != nil {
		return handleError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return handleError(c, err)
	}
	var req updateStatusRequest
	if err := decodeAndValidate(body, &req); err != nil {
		return handleError(c, err)
	}

	id := c.Param("id")
	err = h.coord.Mutate(c, h.policy("complaints.status"), id, body, func(ctx context.Context) (*protect.Result, error) {
		out, err := h.svc.UpdateStatus(ctx, identity, id, complaints.Status(req.Status), complaints.Priority(req.Priority))
		if err != nil {
			return nil, err
		}
		return jsonResult(http.StatusOK, out)
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// Assign handles PATCH /api/complaints/:id/assign.
func (h *Handler) Assign(c echo.Context) error {
	identity, err := requireStaff(c)
	if err != nil {
		return handleError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return handleError(c, err)
	}
	var req assignRequest
	if err := decodeAndValidate(body, &req); err != nil {
		return handleError(c, err)
	}

	id := c.Param("id")
	err = h.coord.Mutate(c, h.policy("complaints.assign"), id, body, func(ctx context.Context) (*protect.Result, error) {
		out, err := h.svc.Assign(ctx, identity, id, req.AssigneeID)
		if err != nil {
			return nil, err
		}
		return jsonResult(http.StatusOK, out)
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// AddNote handles POST /api/complaints/:id/notes.
func (h *Handler) AddNote(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return handleError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return handleError(c, err)
	}
	var req addNoteRequest
	if err := decodeAndValidate(body, &req); err != nil {
		return handleError(c, err)
	}

	id := c.Param("id")
	err = h.coord.Mutate(c, h.policy("complaints.note"), id, body, func(ctx context.Context) (*protect.Result, error) {
		note, parent, err := h.svc.AddNote(ctx, identity, id, req.Body, req.Internal)
		if err != nil {
			return nil, err
		}
		// The parent's owner identifiers ride along so invalidation can reach
		// the citizen's and assignee's cached views.
		return jsonResult(http.StatusCreated, map[string]interface{}{
			"note":        note,
			"citizen_id":  parent.CitizenID,
			"assignee_id": parent.AssigneeID,
		})
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// ListNotes handles GET /api/complaints/:id/notes.
func (h *Handler) ListNotes(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return handleError(c, err)
	}

	id := c.Param("id")
	err = h.coord.CachedRead(c, h.policy("complaints.get"), func(ctx context.Context) (*protect.Result, error) {
		notes, err := h.svc.ListNotes(ctx, identity, id)
		if err != nil {
			return nil, err
		}
		return jsonResult(http.StatusOK, map[string]interface{}{"notes": notes, "count": len(notes)})
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) policy(name string) protect.Policy {
	return h.policies[name]
}

func parseFilter(c echo.Context) (complaints.Filter, error) {
	f := complaints.Filter{
		Status:     complaints.Status(c.QueryParam("status")),
		Category:   c.QueryParam("category"),
		AssigneeID: c.QueryParam("assignee_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, core.NewValidationError(fmt.Sprintf("unknown status %q", f.Status), nil)
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, core.NewValidationError("limit must be a non-negative integer", err)
		}
		f.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, core.NewValidationError("offset must be a non-negative integer", err)
		}
		f.Offset = n
	}
	return f, nil
}

// readBody slurps the request body so the coordinator can fingerprint it for
// idempotency before the handler decodes it.
func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, core.NewValidationError("unable to read request body", err)
	}
	return body, nil
}

func jsonResult(status int, v interface{}) (*protect.Result, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &protect.Result{Status: status, Payload: payload, ContentType: jsonContentType}, nil
}

// handleError converts API errors to the appropriate HTTP responses.
func handleError(c echo.Context, err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
	}

	// Fallback for unexpected errors
	slog.Error("unhandled error", "path", c.Request().URL.Path, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
