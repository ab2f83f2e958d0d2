package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"staffhub/internal/models"
)

// ListUsers returns every account. Admins and the training department only.
// GET /api/v1/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, users)
}

// GET /api/v1/profiles
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, profiles)
}

// UpdateMe changes the caller's names, position or password.
// PUT /api/v1/users/me
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateMeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateMe(r.Context(), UserFromContext(r.Context()), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, user)
}

// PUT /api/v1/admin/users/{id}/admin-status
func (h *Handlers) SetAdminStatus(w http.ResponseWriter, r *http.Request) {
	var req models.AdminStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.SetAdminStatus(r.Context(), UserFromContext(r.Context()), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// AssignSpecialRole sets or clears a user's special role. A missing or
// empty special_role clears it.
// PUT /api/v1/admin/users/{id}/special-role
func (h *Handlers) AssignSpecialRole(w http.ResponseWriter, r *http.Request) {
	var req models.SpecialRoleRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.AssignSpecialRole(r.Context(), UserFromContext(r.Context()), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, user)
}

// DeleteUser removes an account. Its posts, likes and notifications stay.
// DELETE /api/v1/admin/users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), UserFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, &models.MessageResponse{Message: "User deleted"})
}
