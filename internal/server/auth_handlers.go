package server

import (
	"errors"
	"net/http"

	"legato/internal/auth"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (ms *MusicServer) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	if !ms.decodeBody(w, r, &c) {
		return c, false
	}
	c.Username = sanitizeInput(c.Username)
	if c.Username == "" || c.Password == "" {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "username",
			Message: "Username and password required",
			Code:    "MISSING_CREDENTIALS",
		})
		return c, false
	}
	return c, true
}

func (ms *MusicServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !ms.auth.IsEnabled() {
		ms.respondWithError(w, r, http.StatusNotFound, "Authentication is disabled", nil)
		return
	}
	c, ok := ms.readCredentials(w, r)
	if !ok {
		return
	}

	login, err := ms.auth.Login(c.Username, c.Password)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		ms.respondWithError(w, r, status, "Invalid credentials", err)
		return
	}

	ms.auth.Logins().SetCookie(w, login)
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"username":  login.Username,
		"expiresAt": login.ExpiresAt,
	})
}

// handleLogout ends the login and the player sessions it opened.
func (ms *MusicServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !ms.auth.IsEnabled() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		if owner, ok := ms.auth.Logout(cookie.Value); ok {
			for _, s := range ms.sessions.Sessions() {
				if s.Owner == owner {
					if err := ms.sessions.Remove(s.ID); err != nil {
						ms.logger.WithError(err).WithField("session", s.ID).Warn("Failed to close session on logout")
					}
				}
			}
			ms.logger.WithField("username", owner).Info("User logged out")
		}
	}
	ms.auth.Logins().ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (ms *MusicServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !ms.auth.RegistrationAllowed() {
		ms.respondWithError(w, r, http.StatusForbidden, "Registration is disabled", nil)
		return
	}
	c, ok := ms.readCredentials(w, r)
	if !ok {
		return
	}

	err := ms.auth.Register(c.Username, c.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrUserExists):
		ms.respondWithError(w, r, http.StatusConflict, "User already exists", nil)
		return
	case errors.Is(err, auth.ErrInvalidUsername):
		ms.respondWithValidationError(w, r, ValidationError{Field: "username", Message: err.Error(), Code: "INVALID_USERNAME"})
		return
	case errors.Is(err, auth.ErrWeakPassword):
		ms.respondWithValidationError(w, r, ValidationError{Field: "password", Message: err.Error(), Code: "WEAK_PASSWORD"})
		return
	default:
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to register", err)
		return
	}

	ms.respondJSON(w, http.StatusCreated, map[string]string{"username": c.Username})
}

func (ms *MusicServer) handleMe(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	me := map[string]any{
		"username":    owner,
		"authEnabled": ms.auth.IsEnabled(),
	}
	if users := ms.auth.Users(); users != nil {
		if u, ok := users.GetUser(owner); ok {
			me["role"] = u.Role
		}
	}
	ms.respondJSON(w, http.StatusOK, me)
}
