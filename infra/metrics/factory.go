package metrics

import (
	"github.com/quayside/berthd/core/logger"
	coremetrics "github.com/quayside/berthd/core/metrics"
)

// New builds the configured sink stack. With nothing enabled it returns a
// NopSink so callers never branch on nil.
func New(cfg coremetrics.Config, log logger.Logger) (coremetrics.Sink, error) {
	cfg.SetDefaults()
	var sinks []coremetrics.Sink
	if cfg.Prometheus.Enabled {
		prom, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, prom)
	}
	if cfg.Influx.Enabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.Influx, log))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
