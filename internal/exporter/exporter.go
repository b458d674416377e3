// Package exporter exposes cached resolver results as Prometheus gauges.
//
// Every scrape reads a fresh snapshot of the result cache and flattens it:
// one "{resolver}_timestamp" gauge per result and one "{resolver}_{metric}"
// gauge per metric, all labeled with server_id. Labeled metric values add a
// "{metric}_label" label carrying the categorical value.
package exporter

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/cache"
	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

// ServerLabel is the label naming the probed server on every exported gauge.
const ServerLabel = "server_id"

// TimestampMetric is the reserved suffix of the per-result timestamp gauge.
// A resolver metric with this name is not exported.
const TimestampMetric = "timestamp"

// Snapshotter provides point-in-time copies of the result cache.
type Snapshotter interface {
	Snapshot() cache.Snapshot
}

// Sample is one flattened gauge value.
type Sample struct {
	Name        string
	LabelNames  []string
	LabelValues []string
	Value       float64
}

// Flatten turns a cache snapshot into gauge samples, ordered by server,
// resolver and metric name. Metrics named TimestampMetric are dropped since
// they would collide with the result's timestamp gauge.
func Flatten(snap cache.Snapshot) []Sample {
	var samples []Sample

	for _, serverID := range sortedKeys(snap) {
		resolvers := snap[serverID]
		for _, resolverID := range sortedKeys(resolvers) {
			result := resolvers[resolverID]
			if result == nil {
				continue
			}

			samples = append(samples, Sample{
				Name:        resolverID + "_" + TimestampMetric,
				LabelNames:  []string{ServerLabel},
				LabelValues: []string{serverID},
				Value:       float64(result.Timestamp().UTC().UnixNano()) / 1e9,
			})

			metrics := result.Metrics()
			for _, name := range sortedKeys(metrics) {
				if name == TimestampMetric {
					continue
				}
				samples = append(samples, flattenValue(serverID, resolverID+"_"+name, name, metrics[name]))
			}
		}
	}
	return samples
}

func flattenValue(serverID, gauge, metric string, value models.Value) Sample {
	if lm, ok := value.(models.LabeledMetric); ok {
		return Sample{
			Name:        gauge,
			LabelNames:  []string{ServerLabel, metric + "_label"},
			LabelValues: []string{serverID, lm.Label},
			Value:       lm.Value,
		}
	}
	return Sample{
		Name:        gauge,
		LabelNames:  []string{ServerLabel},
		LabelValues: []string{serverID},
		Value:       value.Float(),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Exporter is an unchecked prometheus.Collector over the result cache.
// Gauge names depend on measured content, so nothing is described up front.
type Exporter struct {
	results Snapshotter
	logger  *zap.Logger

	mu    sync.Mutex
	descs map[string]*prometheus.Desc
}

// New creates an Exporter reading from results.
func New(results Snapshotter, logger *zap.Logger) *Exporter {
	return &Exporter{
		results: results,
		logger:  logger,
		descs:   make(map[string]*prometheus.Desc),
	}
}

// Describe sends nothing, which makes the Exporter an unchecked collector.
func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

// Collect emits the current snapshot as constant gauges.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, s := range Flatten(e.results.Snapshot()) {
		desc := e.desc(s.Name, s.LabelNames)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.LabelValues...)
		if err != nil {
			e.logger.Warn("Skipping invalid metric",
				zap.String("metric", s.Name),
				zap.Error(err))
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- m
	}
}

// desc returns the cached descriptor for name and labelNames, creating it on
// first use.
func (e *Exporter) desc(name string, labelNames []string) *prometheus.Desc {
	key := name + "\xff" + strings.Join(labelNames, "\xff")

	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.descs[key]; ok {
		return d
	}
	d := prometheus.NewDesc(name, name, labelNames, nil)
	e.descs[key] = d
	return d
}

// descCount reports the number of cached descriptors.
func (e *Exporter) descCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.descs)
}
