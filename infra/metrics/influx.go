package metrics

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/quayside/berthd/core/logger"
	coremetrics "github.com/quayside/berthd/core/metrics"
)

// InfluxSink writes scheduling events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.InfluxConfig, log logger.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      log,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails, so a flaky metrics backend never blocks the
// scheduler.
func NewInfluxSinkWithFallback(cfg coremetrics.InfluxConfig, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			log.Errorf("influx health check error: %v", err)
		} else {
			log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSolve writes one point per optimizer run.
func (s *InfluxSink) RecordSolve(recs []coremetrics.SolveRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("solve_run").
			AddTag("trigger", r.Trigger).
			AddTag("escalated", strconv.FormatBool(r.Escalated)).
			AddField("assigned", r.Assigned).
			AddField("unassigned", r.Unassigned).
			AddField("objective", r.Objective).
			AddField("duration_ms", r.Duration.Milliseconds()).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordConflicts writes one point per transition.
func (s *InfluxSink) RecordConflicts(ts []coremetrics.ConflictTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, t := range ts {
		transition := "closed"
		if t.Opened {
			transition = "opened"
		}
		p := write.NewPointWithMeasurement("conflict_transition").
			AddTag("kind", t.Kind).
			AddTag("severity", strconv.Itoa(t.Severity)).
			AddTag("transition", transition).
			AddField("count", 1).
			SetTime(t.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordOccupancy writes per-berth utilisation points.
func (s *InfluxSink) RecordOccupancy(recs []coremetrics.OccupancyRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("berth_occupancy").
			AddTag("berth_id", r.BerthID).
			AddField("fraction", r.Fraction).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
