// Package ngrok shares the local server through a public ngrok endpoint.
package ngrok

import (
	"context"
	"errors"
	"fmt"
	"os"

	"legato/internal/config"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// TokenEnv is read when the config carries no auth token.
const TokenEnv = "NGROK_AUTHTOKEN"

// ErrNoToken is returned when neither the config nor the environment has a token.
var ErrNoToken = errors.New("ngrok auth token not found, set " + TokenEnv + " in .env or auth_token in config")

// Service owns the agent and the endpoint forwarding to the local server.
type Service struct {
	cfg    config.NgrokConfig
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
	logger logrus.FieldLogger
}

// NewService returns nil when the tunnel is disabled. envFile, when it
// exists, is loaded into the environment before the token is looked up.
func NewService(cfg config.NgrokConfig, envFile string, logger logrus.FieldLogger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "ngrok")

	token, err := resolveToken(cfg, envFile, logger)
	if err != nil {
		return nil, err
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}
	return &Service{cfg: cfg, agent: agent, logger: logger}, nil
}

func resolveToken(cfg config.NgrokConfig, envFile string, logger logrus.FieldLogger) (string, error) {
	if cfg.AuthToken != "" {
		return cfg.AuthToken, nil
	}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				logger.WithError(err).WithField("file", envFile).Warn("Could not load env file")
			}
		}
	}
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// trafficPolicy puts an OAuth login in front of the endpoint.
func trafficPolicy(provider string) string {
	return fmt.Sprintf(`on_http_request:
  - actions:
      - type: oauth
        config:
          provider: %s
`, provider)
}

func (s *Service) endpointOptions() []ngrok.EndpointOption {
	var opts []ngrok.EndpointOption
	if s.cfg.Domain != "" {
		opts = append(opts, ngrok.WithURL(s.cfg.Domain))
	}
	if s.cfg.EnableAuth {
		opts = append(opts, ngrok.WithTrafficPolicy(trafficPolicy(s.cfg.AuthProvider)))
	}
	return opts
}

// Start forwards a public endpoint to upstream, e.g. http://127.0.0.1:8080.
func (s *Service) Start(ctx context.Context, upstream string) error {
	if s == nil {
		return nil
	}

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(upstream), s.endpointOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.tunnel = tunnel

	s.logger.WithFields(logrus.Fields{
		"url":      tunnel.URL().String(),
		"upstream": upstream,
		"oauth":    s.cfg.EnableAuth,
	}).Info("Ngrok tunnel active")
	return nil
}

// PublicURL returns the endpoint URL, or "" when no tunnel is up.
func (s *Service) PublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop closes the tunnel.
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}
	s.logger.Info("Stopping ngrok tunnel")
	return s.tunnel.Close()
}
