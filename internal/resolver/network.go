package resolver

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/config"
	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

// NetworkID is the identifier of the network latency resolver.
const NetworkID = "network"

// Pinger sends a single echo request and waits for the matching reply.
type Pinger interface {
	Ping(ctx context.Context, host string, seq int, timeout time.Duration) (time.Duration, error)
}

// NetworkConfig is the typed configuration of the network resolver.
type NetworkConfig struct {
	Packets int             `yaml:"packets"`
	Timeout config.Duration `yaml:"timeout"`
}

// DefaultNetworkConfig returns the defaults: 10 packets, 10s per packet.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Packets: 10,
		Timeout: config.Duration{Duration: 10 * time.Second},
	}
}

// NetworkResolver measures latency to the server with ICMP echo.
type NetworkResolver struct {
	cfg    NetworkConfig
	pinger Pinger
	logger *zap.Logger
}

// NewNetworkResolver creates a network resolver using pinger.
func NewNetworkResolver(cfg NetworkConfig, pinger Pinger, logger *zap.Logger) *NetworkResolver {
	return &NetworkResolver{cfg: cfg, pinger: pinger, logger: logger}
}

func newNetworkConstructor(pinger Pinger) Constructor {
	return func(s Settings) (Resolver, error) {
		cfg := DefaultNetworkConfig()
		if err := s.Config.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if cfg.Packets <= 0 {
			return nil, fmt.Errorf("%w: packets must be positive (got %d)", ErrInvalidConfig, cfg.Packets)
		}
		if cfg.Timeout.Duration <= 0 {
			return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
		}
		return NewNetworkResolver(cfg, pinger, s.Logger), nil
	}
}

// ID returns the resolver identifier.
func (n *NetworkResolver) ID() string { return NetworkID }

// Run pings the server sequentially. Lost packets are not errors: a host that
// answers nothing yields zero latencies and 100% packet loss.
func (n *NetworkResolver) Run(ctx context.Context, server Server, _ *models.Result) (models.Outcome, error) {
	rtts := make([]float64, 0, n.cfg.Packets)
	for seq := 0; seq < n.cfg.Packets; seq++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rtt, err := n.pinger.Ping(ctx, server.Hostname, seq, n.cfg.Timeout.Duration)
		if err != nil {
			n.logger.Debug("Echo request lost",
				zap.String("server", server.Hostname),
				zap.Int("seq", seq),
				zap.Error(err))
			continue
		}
		rtts = append(rtts, float64(rtt)/float64(time.Millisecond))
	}

	if len(rtts) == 0 {
		n.logger.Warn("Ping failed", zap.String("server", server.Hostname))
	}

	return models.NewResult(time.Now(), latencyMetrics(rtts, n.cfg.Packets)), nil
}

// latencyMetrics summarises round-trip times in milliseconds for sent packets.
// Jitter is the mean absolute difference between consecutive samples.
func latencyMetrics(rtts []float64, sent int) models.Metrics {
	m := models.Metrics{
		"packet_count": models.Number(len(rtts)),
		"ping_min":     models.Number(0),
		"ping_max":     models.Number(0),
		"ping_avg":     models.Number(0),
		"ping_jitter":  models.Number(0),
		"packet_loss":  models.Number(100),
	}
	if len(rtts) == 0 || sent <= 0 {
		return m
	}

	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, v := range rtts {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}

	jitter := 0.0
	if len(rtts) > 1 {
		for i := 1; i < len(rtts); i++ {
			jitter += math.Abs(rtts[i] - rtts[i-1])
		}
		jitter /= float64(len(rtts) - 1)
	}

	m["ping_min"] = models.Number(lo)
	m["ping_max"] = models.Number(hi)
	m["ping_avg"] = models.Number(sum / float64(len(rtts)))
	m["ping_jitter"] = models.Number(jitter)
	m["packet_loss"] = models.Number(100 * (1 - float64(len(rtts))/float64(sent)))
	return m
}
