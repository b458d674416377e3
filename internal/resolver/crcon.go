package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/config"
	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

// CRCONID is the identifier of the Hell Let Loose CRCON resolver.
const CRCONID = "hll-crcon"

const defaultRetryDelay = 500 * time.Millisecond

// CRCONConfig is the typed configuration of the CRCON resolver.
type CRCONConfig struct {
	BaseURL string          `yaml:"base_url"`
	APIKey  string          `yaml:"api_key"`
	Timeout config.Duration `yaml:"timeout"`
	Retries int             `yaml:"retries"`
}

// DefaultCRCONConfig returns the defaults: 5s per request, 2 retries.
func DefaultCRCONConfig() CRCONConfig {
	return CRCONConfig{
		Timeout: config.Duration{Duration: 5 * time.Second},
		Retries: 2,
	}
}

// CRCONResolver reads game state of a Hell Let Loose server from its CRCON
// web API: player count, match progress, map and game mode.
type CRCONResolver struct {
	cfg        CRCONConfig
	client     *http.Client
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewCRCONResolver creates a CRCON resolver.
func NewCRCONResolver(cfg CRCONConfig, logger *zap.Logger) *CRCONResolver {
	return &CRCONResolver{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout.Duration},
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
}

func newCRCONConstructor(s Settings) (Resolver, error) {
	cfg := DefaultCRCONConfig()
	if err := s.Config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base_url: %v", ErrInvalidConfig, err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api_key is required", ErrInvalidConfig)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	}
	return NewCRCONResolver(cfg, s.Logger), nil
}

// ID returns the resolver identifier.
func (c *CRCONResolver) ID() string { return CRCONID }

type crconResponse[T any] struct {
	Result T      `json:"result"`
	Failed bool   `json:"failed"`
	Error  string `json:"error"`
}

type gameState struct {
	MatchTime     float64 `json:"match_time"`
	TimeRemaining float64 `json:"time_remaining"`
	CurrentMap    struct {
		Map struct {
			ID string `json:"id"`
		} `json:"map"`
		GameMode string `json:"game_mode"`
	} `json:"current_map"`
}

type serverStatus struct {
	CurrentPlayers float64 `json:"current_players"`
}

// Run queries the game state and server status endpoints.
func (c *CRCONResolver) Run(ctx context.Context, _ Server, _ *models.Result) (models.Outcome, error) {
	var state gameState
	if err := c.query(ctx, "get_gamestate", &state); err != nil {
		return nil, err
	}
	var status serverStatus
	if err := c.query(ctx, "get_status", &status); err != nil {
		return nil, err
	}

	return models.NewResult(time.Now(), models.Metrics{
		"player_count": models.Number(status.CurrentPlayers),
		"game_time":    models.Number(state.MatchTime - state.TimeRemaining),
		"current_map":  models.LabeledMetric{Value: 1, Label: state.CurrentMap.Map.ID},
		"game_mode":    models.LabeledMetric{Value: 1, Label: state.CurrentMap.GameMode},
	}), nil
}

// query fetches one endpoint and decodes its result into out. Transport
// errors and 5xx responses are retried; everything else fails immediately.
func (c *CRCONResolver) query(ctx context.Context, endpoint string, out any) error {
	target := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + endpoint

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.Retries)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.fetch(ctx, target, out)
		if err != nil {
			if _, permanent := err.(*backoff.PermanentError); !permanent {
				c.logger.Debug("CRCON request failed",
					zap.String("endpoint", endpoint),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
		}
		return err
	}, retry)
}

func (c *CRCONResolver) fetch(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crcon request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading crcon response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("crcon returned %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return backoff.Permanent(fmt.Errorf("crcon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	envelope := crconResponse[json.RawMessage]{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding crcon response: %w", err))
	}
	if envelope.Failed {
		return backoff.Permanent(fmt.Errorf("crcon %s: %s", req.URL.Path, envelope.Error))
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding crcon result: %w", err))
	}
	return nil
}
