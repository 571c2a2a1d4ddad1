package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"scoreboard-service/internal/app"
	"scoreboard-service/internal/domain"
)

// AdminHandler exposes the scoreboard query plus the admin CRUD surface:
// tasks, teams, answer keys, contest status, and reset. When a token is
// configured, admin routes require it as a bearer token.
type AdminHandler struct {
	service *app.ContestService
	token   string
}

func NewAdminHandler(service *app.ContestService, token string) *AdminHandler {
	return &AdminHandler{service: service, token: token}
}

// Register attaches all routes to mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /scoreboard", h.getScoreboard)

	mux.HandleFunc("POST /admin/teams", h.authorized(h.addTeam))
	mux.HandleFunc("PUT /admin/teams/{id}", h.authorized(h.renameTeam))
	mux.HandleFunc("DELETE /admin/teams/{id}", h.authorized(h.deleteTeam))

	mux.HandleFunc("POST /admin/tasks", h.authorized(h.addTask))
	mux.HandleFunc("PUT /admin/tasks/{id}", h.authorized(h.updateTask))
	mux.HandleFunc("DELETE /admin/tasks/{id}", h.authorized(h.deleteTask))
	mux.HandleFunc("PUT /admin/tasks/{id}/key", h.authorized(h.uploadKey))
	mux.HandleFunc("POST /admin/master-key", h.authorized(h.uploadMasterKey))

	mux.HandleFunc("PUT /admin/status", h.authorized(h.setStatus))
	mux.HandleFunc("POST /admin/reset", h.authorized(h.reset))
}

func (h *AdminHandler) authorized(next http.HandlerFunc) http.HandlerFunc {
	if h.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if bearer != h.token {
			writeError(w, http.StatusUnauthorized, errors.New("admin token required"))
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) getScoreboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

func (h *AdminHandler) addTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("team name required"))
		return
	}
	team, err := h.service.AddTeam(r.Context(), body.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": team.ID, "name": team.Name})
}

func (h *AdminHandler) renameTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("team name required"))
		return
	}
	if err := h.service.RenameTeam(r.Context(), r.PathValue("id"), body.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) deleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTeam(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) addTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("task name required"))
		return
	}
	task, err := h.service.AddTask(r.Context(), body.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *AdminHandler) updateTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name          string               `json:"name"`
		KeyVisibility domain.KeyVisibility `json:"keyVisibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid task payload"))
		return
	}
	task, err := h.service.UpdateTask(r.Context(), r.PathValue("id"), body.Name, body.KeyVisibility)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *AdminHandler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) uploadKey(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("unreadable request body"))
		return
	}
	if err := h.service.UploadKey(r.Context(), r.PathValue("id"), string(raw)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) uploadMasterKey(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("unreadable request body"))
		return
	}
	if err := h.service.UploadMasterKey(r.Context(), string(raw)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.ContestStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid status payload"))
		return
	}
	if err := h.service.SetStatus(r.Context(), body.Status); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrTeamNotFound), errors.Is(err, domain.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrContestNotLive):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
