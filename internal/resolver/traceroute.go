package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/config"
	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

// TracerouteID is the identifier of the traceroute resolver.
const TracerouteID = "network-traceroute"

// ReportWriter persists a formatted traceroute report.
type ReportWriter interface {
	Write(host string, at time.Time, body string) (string, error)
}

// TracerouteConfig is the typed configuration of the traceroute resolver.
type TracerouteConfig struct {
	MinInterval config.Duration `yaml:"min_interval"`
	Count       int             `yaml:"count"`
	Timeout     config.Duration `yaml:"timeout"`
}

// DefaultTracerouteConfig returns the defaults: one run per minute at most,
// 10 probes per hop, two minutes for mtr to finish.
func DefaultTracerouteConfig() TracerouteConfig {
	return TracerouteConfig{
		MinInterval: config.Duration{Duration: 60 * time.Second},
		Count:       10,
		Timeout:     config.Duration{Duration: 2 * time.Minute},
	}
}

// TracerouteResolver traces the route to the server with mtr in JSON report
// mode. It reports the hop count and the worst loss and latency along the path
// and keeps a hop table on disk. mtr is slow, so the resolver throttles itself
// using the timestamp of its previous result.
type TracerouteResolver struct {
	cfg     TracerouteConfig
	runner  CommandRunner
	reports ReportWriter
	now     func() time.Time
	logger  *zap.Logger
}

// NewTracerouteResolver creates a traceroute resolver. reports may be nil.
func NewTracerouteResolver(cfg TracerouteConfig, runner CommandRunner, reports ReportWriter, logger *zap.Logger) *TracerouteResolver {
	return &TracerouteResolver{
		cfg:     cfg,
		runner:  runner,
		reports: reports,
		now:     time.Now,
		logger:  logger,
	}
}

func newTracerouteConstructor(runner CommandRunner, reports ReportWriter) Constructor {
	return func(s Settings) (Resolver, error) {
		cfg := DefaultTracerouteConfig()
		if err := s.Config.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if cfg.Count <= 0 {
			return nil, fmt.Errorf("%w: count must be positive (got %d)", ErrInvalidConfig, cfg.Count)
		}
		if cfg.MinInterval.Duration < 0 || cfg.Timeout.Duration <= 0 {
			return nil, fmt.Errorf("%w: min_interval and timeout must not be negative", ErrInvalidConfig)
		}
		return NewTracerouteResolver(cfg, runner, reports, s.Logger), nil
	}
}

// ID returns the resolver identifier.
func (t *TracerouteResolver) ID() string { return TracerouteID }

// Run skips when the previous result is younger than the minimum interval,
// otherwise it runs mtr and returns the path summary.
func (t *TracerouteResolver) Run(ctx context.Context, server Server, previous *models.Result) (models.Outcome, error) {
	interval := t.cfg.MinInterval.Duration
	if previous != nil && t.now().Before(previous.Timestamp().Add(interval)) {
		return models.Skip("last mtr run < %s ago", interval), nil
	}

	t.logger.Debug("Performing traceroute", zap.String("server", server.Hostname))

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout.Duration)
	defer cancel()

	out, err := t.runner.Output(runCtx, "mtr", "--json", "-c", strconv.Itoa(t.cfg.Count), "-n", server.Hostname)
	if err != nil {
		return nil, err
	}

	trace, err := parseMTR(out, t.cfg.Count)
	if err != nil {
		return nil, err
	}
	finished := t.now()

	if t.reports != nil {
		body := formatReport(server.Hostname, finished, trace.hops)
		path, err := t.reports.Write(server.Hostname, finished, body)
		if err != nil {
			t.logger.Warn("Failed to write traceroute report",
				zap.String("server", server.Hostname),
				zap.Error(err))
		} else {
			t.logger.Debug("Wrote traceroute report", zap.String("file", path))
		}
	}

	return models.NewResult(finished, models.Metrics{
		"packet_count":  models.Number(t.cfg.Count),
		"num_hops":      models.Number(len(trace.hops)),
		"worst_loss":    models.Number(trace.worstLoss),
		"worst_latency": models.Number(trace.worstLatency),
	}), nil
}

// hop is one line of an mtr report.
type hop struct {
	Index int
	Loss  float64
	Sent  int
	Avg   float64
	Host  string
}

type trace struct {
	hops         []hop
	worstLoss    float64
	worstLatency float64
}

// mtrHub is one entry of report.hubs in mtr's JSON output. Older mtr
// releases emit numbers as strings and some builds spell the loss key
// "LossPercent".
type mtrHub struct {
	Count       flexNumber `json:"count"`
	Host        string     `json:"host"`
	Loss        flexNumber `json:"Loss%"`
	LossPercent flexNumber `json:"LossPercent"`
	Sent        flexNumber `json:"Snt"`
	Avg         flexNumber `json:"Avg"`
}

type mtrOutput struct {
	Report struct {
		Hubs []mtrHub `json:"hubs"`
	} `json:"report"`
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber struct {
	value float64
	set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	f.value, f.set = v, true
	return nil
}

func (f flexNumber) or(fallback float64) float64 {
	if f.set {
		return f.value
	}
	return fallback
}

// parseMTR decodes mtr --json output. Hops with 100% loss do not count
// toward the worst loss and latency.
func parseMTR(data []byte, count int) (trace, error) {
	var out mtrOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return trace{}, fmt.Errorf("decoding mtr output: %w", err)
	}

	var tr trace
	for i, hub := range out.Report.Hubs {
		h := hop{
			Index: int(hub.Count.or(float64(i + 1))),
			Loss:  hub.Loss.or(hub.LossPercent.or(0)),
			Sent:  int(hub.Sent.or(float64(count))),
			Avg:   hub.Avg.or(0),
			Host:  hub.Host,
		}
		if h.Host == "" {
			h.Host = "*"
		}

		tr.hops = append(tr.hops, h)
		if h.Loss < 100 {
			tr.worstLoss = max(tr.worstLoss, h.Loss)
			tr.worstLatency = max(tr.worstLatency, h.Avg)
		}
	}
	return tr, nil
}

// formatReport renders the hop table written to the report file.
func formatReport(host string, at time.Time, hops []hop) string {
	hostWidth := 20
	if len(hops) > 0 {
		hostWidth = 0
		for _, h := range hops {
			hostWidth = max(hostWidth, len(h.Host))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Traceroute to %s at %s\n\n", host, at.Format(time.RFC3339))
	line := fmt.Sprintf("%-3s %6s %4s %9s %-*s", "Hop", "Loss%", "Sent", "Avg", hostWidth, "Host")
	b.WriteString(strings.TrimRight(line, " "))
	b.WriteByte('\n')
	for _, h := range hops {
		line := fmt.Sprintf("%-3d %5.1f%% %4d %7.2fms %-*s", h.Index, h.Loss, h.Sent, h.Avg, hostWidth, h.Host)
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}
