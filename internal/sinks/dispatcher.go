// Package sinks fans a finished optimization result out to persistence,
// the live event broker, webhook subscribers and the optional AMQP exchange.
package sinks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/events"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
)

// Emitter queues webhook deliveries for an event.
type Emitter interface {
	Emit(ctx context.Context, eventID, tenantID, eventType string, data any) (int, error)
}

// Exchange publishes an event to an external message bus.
type Exchange interface {
	Publish(ctx context.Context, evt events.Event) error
}

// Dispatcher runs the sinks in the background. Failures are logged and
// counted in sink_failures_total; they never reach the caller.
type Dispatcher struct {
	Store    store.Store
	Broker   events.Broker
	Webhooks Emitter
	AMQP     Exchange // optional
	Runs     *metrics.Runs
	Timeout  time.Duration
	Log      *slog.Logger

	wg sync.WaitGroup
}

// Dispatch hands res to the sinks and returns immediately.
func (d *Dispatcher) Dispatch(tenantID string, res opt.Result) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		d.run(ctx, tenantID, res)
	}()
}

// Wait blocks until every dispatched result has been handled.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) run(ctx context.Context, tenantID string, res opt.Result) {
	log := d.logger().With("tenant", tenantID)

	resultID := ""
	if d.Store != nil {
		sr, err := d.Store.SaveResult(ctx, tenantID, res)
		if err != nil {
			d.failed(log, "store", err)
		} else {
			resultID = sr.ID
		}
	}
	if d.Runs != nil {
		d.Runs.Record(tenantID, runStats(resultID, res))
	}

	evt := events.Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     model.EventRouteOptimized,
		TenantID: tenantID,
		TS:       time.Now().UTC(),
		Data:     eventData(resultID, res),
	}
	if d.Broker != nil {
		d.Broker.Publish(tenantID, evt)
	}
	if d.Webhooks != nil {
		if n, err := d.Webhooks.Emit(ctx, evt.ID, tenantID, evt.Type, evt.Data); err != nil {
			d.failed(log, "webhooks", err)
		} else if n > 0 {
			log.Debug("webhooks queued", "count", n, "event", evt.ID)
		}
	}
	if d.AMQP != nil {
		if err := d.AMQP.Publish(ctx, evt); err != nil {
			d.failed(log, "amqp", err)
		}
	}
}

func (d *Dispatcher) failed(log *slog.Logger, sink string, err error) {
	metrics.SinkFailures.WithLabelValues(sink).Inc()
	log.Warn("sink failed", "sink", sink, "error", err)
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Log
}

func eventData(resultID string, res opt.Result) map[string]any {
	return map[string]any{
		"resultId":           resultID,
		"routes":             len(res.Routes),
		"unassigned":         len(res.Unassigned),
		"totalCost":          res.TotalCost,
		"totalDistance":      res.TotalDistance,
		"totalTime":          res.TotalTime,
		"averageUtilization": res.AverageUtilization,
		"executionTime":      res.ExecutionTimeMs,
	}
}

func runStats(resultID string, res opt.Result) metrics.RunStats {
	return metrics.RunStats{
		ResultID:            resultID,
		FinishedAt:          time.Now().UTC(),
		DurationMs:          res.ExecutionTimeMs,
		Iterations:          res.Stats.Iterations,
		Improvements:        res.Stats.Improvements,
		CandidatesEvaluated: res.Stats.CandidatesEvaluated,
		BaselineScore:       res.Stats.BaselineScore,
		FinalScore:          res.Stats.FinalScore,
		Unassigned:          len(res.Unassigned),
		Warnings:            res.Warnings,
	}
}
