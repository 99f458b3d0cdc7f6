package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/bananaclick/internal/api/middleware"
	"github.com/mcoot/bananaclick/internal/api/request"
	"github.com/mcoot/bananaclick/internal/api/response"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/services/users"
)

// UsersHandler handles user administration endpoints
type UsersHandler struct {
	users *users.Service
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(usersService *users.Service) *UsersHandler {
	return &UsersHandler{
		users: usersService,
	}
}

func userID(r *http.Request) model.UserID {
	return model.UserID(mux.Vars(r)["id"])
}

// List handles GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UsersFromModel(list))
}

// Create handles POST /api/v1/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	user, err := h.users.Create(r.Context(), users.CreateParams{
		Username: req.Username,
		Password: req.Password,
		Role:     model.Role(req.Role),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.UserFromModel(user))
}

// Get handles GET /api/v1/users/{id}. Players may only read themselves.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetUser(r.Context())
	id := userID(r)

	if !caller.IsAdmin() && caller.ID != id {
		WriteError(w, model.ErrForbidden)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

// Update handles PUT /api/v1/users/{id}
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	params := users.UpdateParams{
		Username: req.Username,
		Password: req.Password,
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		params.Role = &role
	}

	user, err := h.users.Update(r.Context(), userID(r), params)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

// Delete handles DELETE /api/v1/users/{id}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetUser(r.Context())
	id := userID(r)

	if caller.ID == id {
		WriteError(w, NewInvalidRequestError("cannot delete yourself"))
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// SetBlocked handles PUT /api/v1/users/{id}/block
func (h *UsersHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	var req request.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.IsBlocked == nil {
		WriteError(w, NewInvalidRequestError("isBlocked is required"))
		return
	}

	user, err := h.users.SetBlocked(r.Context(), userID(r), *req.IsBlocked)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

// Reset handles POST /api/v1/users/{id}/reset
func (h *UsersHandler) Reset(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.ResetCounter(r.Context(), userID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}
