// Package auth handles user accounts and login sessions.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"legato/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Anonymous owns the player of every client when authentication is off.
const Anonymous = "anonymous"

var (
	ErrDisabled             = errors.New("authentication is disabled")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRegistrationDisabled = errors.New("registration is disabled")
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidUsername      = errors.New("username must be 3-32 letters, digits, dots, dashes or underscores")
	ErrWeakPassword         = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// Service authenticates requests. A disabled service lets every request
// through as Anonymous.
type Service struct {
	cfg    config.AuthConfig
	users  *UserStore
	logins *Logins
	logger logrus.FieldLogger
}

// NewService creates the service described by cfg.
func NewService(cfg config.AuthConfig, logger logrus.FieldLogger) (*Service, error) {
	return newService(cfg, afero.NewOsFs(), 12, logger)
}

func newService(cfg config.AuthConfig, fs afero.Fs, cost int, logger logrus.FieldLogger) (*Service, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{cfg: cfg, logger: logger.WithField("component", "auth")}
	if !cfg.Enabled {
		return s, nil
	}

	users, err := newUserStore(fs, cfg.UsersFile, cost, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}
	s.users = users
	s.logins = NewLogins(time.Duration(cfg.SessionHours)*time.Hour, false)
	return s, nil
}

// IsEnabled reports whether logins are required.
func (s *Service) IsEnabled() bool {
	return s.cfg.Enabled
}

// RegistrationAllowed reports whether new accounts may be created.
func (s *Service) RegistrationAllowed() bool {
	return s.cfg.Enabled && s.cfg.AllowRegistering
}

// Login checks credentials and issues a login.
func (s *Service) Login(username, password string) (*Login, error) {
	if !s.cfg.Enabled {
		return nil, ErrDisabled
	}
	if !s.users.Authenticate(username, password) {
		s.logger.WithField("username", username).Warn("Failed login attempt")
		return nil, ErrInvalidCredentials
	}
	login, err := s.logins.Create(username)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("username", username).Info("User logged in")
	return login, nil
}

// Logout drops the login behind token and returns whose it was.
func (s *Service) Logout(token string) (string, bool) {
	if !s.cfg.Enabled {
		return Anonymous, true
	}
	login, ok := s.logins.Get(token)
	if !ok {
		return "", false
	}
	s.logins.Delete(token)
	return login.Username, true
}

// Register creates an account.
func (s *Service) Register(username, password string) error {
	if !s.RegistrationAllowed() {
		return ErrRegistrationDisabled
	}
	if err := s.users.Register(username, password); err != nil {
		return err
	}
	s.logger.WithField("username", username).Info("User registered")
	return nil
}

// Owner returns the user a request acts for. It fails when authentication is
// on and the request carries no valid login.
func (s *Service) Owner(r *http.Request) (string, bool) {
	if !s.cfg.Enabled {
		return Anonymous, true
	}
	login, ok := s.logins.FromRequest(r)
	if !ok {
		return "", false
	}
	s.logins.Refresh(login.Token)
	return login.Username, true
}

// Logins returns the login table, nil when disabled.
func (s *Service) Logins() *Logins {
	return s.logins
}

// Users returns the user store, nil when disabled.
func (s *Service) Users() *UserStore {
	return s.users
}

// Close stops background expiry.
func (s *Service) Close() {
	if s.logins != nil {
		s.logins.Close()
	}
}
