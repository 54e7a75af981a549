package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxSearchLength      = 1000
	maxListNameLength    = 255
	maxDescriptionLength = 1000
	maxBodyBytes         = 1 << 20
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult is the body of a 400 response.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (ms *MusicServer) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Debug("Failed to write response")
	}
}

func (ms *MusicServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errs ...ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errs,
	}).Warn("Validation failed")

	ms.respondJSON(w, http.StatusBadRequest, ValidationResult{Valid: false, Errors: errs})
}

// respondWithError logs 5xx at error and 4xx at warn, then writes a JSON error.
func (ms *MusicServer) respondWithError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	entry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": status,
		"message":     message,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if status >= http.StatusInternalServerError {
		entry.Error("Server error")
	} else {
		entry.Warn("Client error")
	}

	ms.respondJSON(w, status, map[string]any{
		"error":   message,
		"code":    status,
		"success": false,
	})
}

// decodeBody reads a JSON body of at most maxBodyBytes into v.
func (ms *MusicServer) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "body",
			Message: "Request body must be valid JSON",
			Code:    "INVALID_JSON",
		})
		return false
	}
	return true
}

// validateHash checks a sound or list identity taken from the URL.
func validateHash(field, value string) *ValidationError {
	upper := strings.ToUpper(field)
	if value == "" {
		return &ValidationError{
			Field:   field,
			Message: "Hash is required",
			Code:    "MISSING_" + upper,
		}
	}
	if _, err := uuid.Parse(value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "Hash must be a UUID",
			Code:    "INVALID_" + upper + "_FORMAT",
		}
	}
	return nil
}

func validateSearchQuery(query string) *ValidationError {
	if len(query) > maxSearchLength {
		return &ValidationError{
			Field:   "search",
			Message: fmt.Sprintf("Search query too long (max %d characters)", maxSearchLength),
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}
	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   "search",
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}
	return nil
}

func validateListName(name string) *ValidationError {
	switch {
	case name == "":
		return &ValidationError{Field: "name", Message: "List name is required", Code: "MISSING_LIST_NAME"}
	case len(name) > maxListNameLength:
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("List name too long (max %d characters)", maxListNameLength),
			Code:    "LIST_NAME_TOO_LONG",
		}
	case strings.ContainsAny(name, "\x00\n\r"):
		return &ValidationError{Field: "name", Message: "List name contains invalid characters", Code: "INVALID_LIST_NAME_CHARACTERS"}
	}
	return nil
}

func validateListDescription(description string) *ValidationError {
	if len(description) > maxDescriptionLength {
		return &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("List description too long (max %d characters)", maxDescriptionLength),
			Code:    "LIST_DESCRIPTION_TOO_LONG",
		}
	}
	return nil
}

// validateFilePath ensures path resolves inside root.
func validateFilePath(root, path string) *ValidationError {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return &ValidationError{Field: "file_path", Message: "Invalid file path", Code: "INVALID_FILE_PATH"}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return &ValidationError{Field: "file_path", Message: "Server configuration error", Code: "CONFIG_ERROR"}
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &ValidationError{Field: "file_path", Message: "File path outside allowed directory", Code: "PATH_TRAVERSAL_DENIED"}
	}
	return nil
}

// sanitizeInput drops NUL bytes and surrounding whitespace.
func sanitizeInput(input string) string {
	return strings.TrimSpace(strings.ReplaceAll(input, "\x00", ""))
}
