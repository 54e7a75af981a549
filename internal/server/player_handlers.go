package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"legato/internal/player"
	"legato/internal/session"

	"github.com/sirupsen/logrus"
)

const eventsKeepAlive = 25 * time.Second

func (ms *MusicServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	s, ok := ms.playerSession(w, r)
	if !ok {
		return
	}
	ms.respondJSON(w, http.StatusOK, s.Player().Store.Read())
}

// handlePlayerCommand decodes a {type, payload} command and emits it on the
// session's bus. Commands whose preconditions do not hold are accepted and
// leave the state unchanged.
func (ms *MusicServer) handlePlayerCommand(w http.ResponseWriter, r *http.Request) {
	s, ok := ms.playerSession(w, r)
	if !ok || !ms.allowCommand(w, r, s) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		ms.respondWithError(w, r, http.StatusRequestEntityTooLarge, "Command too large", err)
		return
	}
	cmd, err := player.DecodeCommand(body)
	if err != nil {
		ms.respondWithValidationError(w, r, commandError(err))
		return
	}

	s.Player().Emit(cmd)

	ms.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"command": cmd.Tag(),
	}).Debug("Command emitted")
	ms.respondJSON(w, http.StatusAccepted, s.Player().Store.Read())
}

func commandError(err error) ValidationError {
	switch {
	case player.IsUnknownCommand(err):
		return ValidationError{Field: "type", Message: err.Error(), Code: "UNKNOWN_COMMAND"}
	case errors.Is(err, player.ErrInvalidPayload):
		return ValidationError{Field: "payload", Message: err.Error(), Code: "INVALID_PAYLOAD"}
	default:
		return ValidationError{Field: "body", Message: "Command must be a JSON object with a type", Code: "INVALID_COMMAND"}
	}
}

// allowCommand applies the session's command rate, answering 429 when it is
// exhausted.
func (ms *MusicServer) allowCommand(w http.ResponseWriter, r *http.Request, s *session.Session) bool {
	if s.Allow() {
		return true
	}
	w.Header().Set("Retry-After", "1")
	ms.respondWithError(w, r, http.StatusTooManyRequests, "Too many commands", nil)
	return false
}

// handleSyncPlayerState merges a partial state sent by the client.
func (ms *MusicServer) handleSyncPlayerState(w http.ResponseWriter, r *http.Request) {
	s, ok := ms.playerSession(w, r)
	if !ok || !ms.allowCommand(w, r, s) {
		return
	}

	var patch player.Patch
	if !ms.decodeBody(w, r, &patch) {
		return
	}
	s.Player().Emit(player.SyncPlayerState{Patch: patch})
	ms.respondJSON(w, http.StatusOK, s.Player().Store.Read())
}

// handlePlayerTimes records the position reported by the client's audio
// element. It does not count against the command rate.
func (ms *MusicServer) handlePlayerTimes(w http.ResponseWriter, r *http.Request) {
	s, ok := ms.playerSession(w, r)
	if !ok {
		return
	}

	var req struct {
		CurrentTime *float64 `json:"currentTime"`
		Duration    float64  `json:"duration"`
		Ended       bool     `json:"ended"`
	}
	if !ms.decodeBody(w, r, &req) {
		return
	}
	if req.CurrentTime == nil {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "currentTime",
			Message: "currentTime is required",
			Code:    "MISSING_CURRENT_TIME",
		})
		return
	}

	s.Player().ReportTimes(*req.CurrentTime, req.Duration)
	if req.Ended {
		s.Player().Emit(player.SoundEnded{})
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePlayerEvents streams state snapshots as server-sent events. The
// first event is the current state; slow readers only see the latest one.
func (ms *MusicServer) handlePlayerEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := ms.playerSession(w, r)
	if !ok {
		return
	}

	updates := make(chan player.State, 1)
	unobserve := s.Player().Store.Observe(func(st player.State) {
		for {
			select {
			case updates <- st:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unobserve()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(st player.State) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(s.Player().Store.Read()); err != nil {
		return
	}

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.Done():
			ms.logger.WithField("session", s.ID).Debug("Session ended, closing event stream")
			return
		case st := <-updates:
			if err := send(st); err != nil {
				ms.logger.WithError(err).WithField("session", s.ID).Debug("Event stream closed")
				return
			}
		case <-keepAlive.C:
			// an open stream keeps its session alive
			if _, err := ms.sessions.Get(s.ID); err != nil {
				return
			}
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
