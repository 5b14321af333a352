package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/identity"
)

type todoRequest struct {
	Task string `json:"task"`
}

func (req todoRequest) validate() error {
	if strings.TrimSpace(req.Task) == "" {
		return domain.NewValidationError("task", "is required")
	}
	return nil
}

func todoID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("id", "must be an integer")
	}
	return id, nil
}

// ListTodos returns the caller's todos.
func (h *Handler) ListTodos(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())
	todos, err := h.Repo.ListTodos(r.Context(), phone)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"todos": todos})
}

// AddTodo creates a todo and returns the full list.
func (h *Handler) AddTodo(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	var req todoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, err)
		return
	}

	if _, err := h.Repo.AddTodo(r.Context(), phone, req.Task); err != nil {
		WriteError(w, err)
		return
	}
	todos, err := h.Repo.ListTodos(r.Context(), phone)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"message": "Todo added", "todos": todos})
}

// UpdateTodo replaces a todo's text.
func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())
	id, err := todoID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req todoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, err)
		return
	}

	todo, err := h.Repo.UpdateTodo(r.Context(), phone, id, req.Task)
	if errors.Is(err, domain.ErrNotFound) {
		Error(w, http.StatusNotFound, "Invalid id")
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Updated todo %d", id),
		"todo":    todo,
	})
}

// DeleteTodo removes a todo and returns the remaining list.
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())
	id, err := todoID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	removed, err := h.Repo.DeleteTodo(r.Context(), phone, id)
	if errors.Is(err, domain.ErrNotFound) {
		Error(w, http.StatusNotFound, "Invalid id")
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	todos, err := h.Repo.ListTodos(r.Context(), phone)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Removed '%s'", removed.Task),
		"todos":   todos,
	})
}
