package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

const (
	// DefaultRegisterPeriod is the heartbeat interval between successful
	// registrations, and also the agent's freshness window.
	DefaultRegisterPeriod = 10 * time.Second

	// DefaultRegisterFailPeriod is the shorter retry interval used after a
	// failed registration attempt.
	DefaultRegisterFailPeriod = 2 * time.Second

	registerPath = "/v1/models/register"
)

var (
	errNoAgentURL = errors.New("registrar requires an agent base URL")
	errNoDeploys  = errors.New("registrar requires at least one deploy")

	// ErrRegisterRejected indicates the agent answered with a non-2xx
	// status.
	ErrRegisterRejected = errors.New("model registration rejected")
)

// RegistrarConfig configures the heartbeat loop of an llm-mode instance.
type RegistrarConfig struct {
	// AgentURL is the base URL of the agent accepting registrations.
	AgentURL string

	// SelfURL is the externally reachable base URL of this instance,
	// recorded as owned_by on each registration.
	SelfURL string

	// Deploys are the model deployments this instance serves.
	Deploys []domain.ModelDeploy

	// Period is the heartbeat interval after a successful registration.
	// FailPeriod applies after a failure. Zero values take the defaults.
	Period     time.Duration
	FailPeriod time.Duration
}

// Registrar periodically announces the local deploy list to the agent.
// Registrations expire on the agent side by growing stale, so the loop
// simply keeps re-posting until its context is cancelled.
type Registrar struct {
	cfg    RegistrarConfig
	client *http.Client
	logger *slog.Logger
}

// NewRegistrar validates cfg and returns a Registrar. A nil client uses a
// default with the register period as its timeout.
func NewRegistrar(cfg RegistrarConfig, client *http.Client, logger *slog.Logger) (*Registrar, error) {
	if cfg.AgentURL == "" {
		return nil, errNoAgentURL
	}
	if len(cfg.Deploys) == 0 {
		return nil, errNoDeploys
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultRegisterPeriod
	}
	if cfg.FailPeriod <= 0 {
		cfg.FailPeriod = DefaultRegisterFailPeriod
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Period}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Registrar{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "registrar"),
	}, nil
}

// Run registers immediately and then on every tick until ctx is cancelled.
func (r *Registrar) Run(ctx context.Context) {
	for {
		wait := r.cfg.Period
		if err := r.RegisterOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = r.cfg.FailPeriod
			r.logger.Warn("model registration failed",
				"agent_url", r.cfg.AgentURL,
				"retry_in", wait,
				"error", err)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// RegisterOnce posts every deploy name to the agent. The first failure
// aborts the pass; remaining deploys are retried on the next tick.
func (r *Registrar) RegisterOnce(ctx context.Context) error {
	endpoint := strings.TrimRight(r.cfg.AgentURL, "/") + registerPath

	for _, deploy := range r.cfg.Deploys {
		model := domain.Model{
			ID:      deploy.DeployName,
			Object:  "model",
			OwnedBy: r.cfg.SelfURL,
		}
		if err := r.postModel(ctx, endpoint, model); err != nil {
			return fmt.Errorf("register deploy %s: %w", deploy.DeployName, err)
		}
	}

	r.logger.Debug("model registration complete",
		"agent_url", r.cfg.AgentURL,
		"deploys", len(r.cfg.Deploys))
	return nil
}

func (r *Registrar) postModel(ctx context.Context, endpoint string, model domain.Model) error {
	body, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: agent returned %d", ErrRegisterRejected, resp.StatusCode)
	}
	return nil
}
