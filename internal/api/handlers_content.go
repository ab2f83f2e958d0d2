package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"staffhub/internal/models"
)

// ListAnnouncements returns announcements newest first.
// GET /api/v1/announcements
func (h *Handlers) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAnnouncements(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, list)
}

// CreateAnnouncement publishes an announcement and triggers the notification
// fan-out. Only publishers may call it.
// POST /api/v1/announcements
func (h *Handlers) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAnnouncementRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.CreateAnnouncement(r.Context(), UserFromContext(r.Context()), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, a)
}

// DeleteAnnouncement removes an announcement by either identifier.
// DELETE /api/v1/announcements/{id}
func (h *Handlers) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["id"]
	if err := h.service.DeleteAnnouncement(r.Context(), UserFromContext(r.Context()), ref); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, &models.MessageResponse{Message: "Announcement deleted"})
}

// GET /api/v1/posts
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPosts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, list)
}

// POST /api/v1/posts
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.CreatePost(r.Context(), UserFromContext(r.Context()), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, p)
}

// DeletePost removes a post with its comments and likes. Notifications that
// mention it are left alone.
// DELETE /api/v1/posts/{id}
func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["id"]
	if err := h.service.DeletePost(r.Context(), UserFromContext(r.Context()), ref); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, &models.MessageResponse{Message: "Post deleted"})
}

// GET /api/v1/posts/{id}/comments
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, list)
}

// POST /api/v1/posts/{id}/comments
func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCommentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.CreateComment(r.Context(), UserFromContext(r.Context()), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, c)
}

// ToggleLike returns a handler that flips the caller's like on a target of
// the given type.
// POST /api/v1/announcements/{id}/like, POST /api/v1/posts/{id}/like
func (h *Handlers) ToggleLike(targetType models.TargetType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.service.ToggleLike(r.Context(), UserFromContext(r.Context()), targetType, mux.Vars(r)["id"])
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, res)
	}
}
