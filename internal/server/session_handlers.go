package server

import (
	"errors"
	"net/http"

	"legato/internal/session"

	"github.com/sirupsen/logrus"
)

// sessionHeader names the player session a request acts on. EventSource
// cannot set headers, so the "session" query parameter is accepted too.
const sessionHeader = "X-Session-ID"

type sessionInfo struct {
	*session.Session
	Current bool `json:"current,omitempty"`
}

func (ms *MusicServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceName string `json:"deviceName"`
	}
	if r.ContentLength != 0 && !ms.decodeBody(w, r, &req) {
		return
	}

	s, err := ms.sessions.Create(ownerFrom(r), r.UserAgent(), r.RemoteAddr, sanitizeInput(req.DeviceName))
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	ms.respondJSON(w, http.StatusCreated, map[string]any{
		"session": s,
		"state":   s.Player().Store.Read(),
	})
}

func (ms *MusicServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	current := sessionID(r)

	out := []sessionInfo{}
	for _, s := range ms.sessions.Sessions() {
		if s.Owner == owner {
			out = append(out, sessionInfo{Session: s, Current: s.ID == current})
		}
	}
	ms.respondJSON(w, http.StatusOK, out)
}

func (ms *MusicServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := ms.sessions.Get(id)
	if err != nil || s.Owner != ownerFrom(r) {
		ms.respondWithError(w, r, http.StatusNotFound, "Session not found", nil)
		return
	}
	if err := ms.sessions.Remove(id); err != nil && !errors.Is(err, session.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("session")
}

// playerSession returns the caller's session, writing an error response when
// there is none.
func (ms *MusicServer) playerSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := sessionID(r)
	if id == "" {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "session",
			Message: "A player session is required",
			Code:    "MISSING_SESSION",
		})
		return nil, false
	}

	s, err := ms.sessions.Get(id)
	if err != nil || s.Owner != ownerFrom(r) {
		ms.logger.WithFields(logrus.Fields{
			"session": id,
			"owner":   ownerFrom(r),
		}).Debug("Unknown player session")
		ms.respondWithError(w, r, http.StatusNotFound, "Session not found", err)
		return nil, false
	}
	return s, true
}
