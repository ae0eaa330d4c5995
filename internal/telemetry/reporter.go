// Package telemetry pushes the latest vehicle readings to a collector on
// a fixed cadence. Delivery is best-effort: a failed push is logged and
// dropped, never retried, and never touches control-loop state.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"rover-ng/internal/observability"
)

// Frame is the wire format of one telemetry push.
type Frame struct {
	FrontDistance   float64 `json:"frontDistance"`
	LeftDistance    float64 `json:"leftDistance"`
	RightDistance   float64 `json:"rightDistance"`
	MotorSpeed      float64 `json:"motorSpeed"`
	RudderDirection string  `json:"rudderDirection"`
}

// Sink receives each frame alongside the primary HTTP push.
type Sink interface {
	Push(Frame) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Frame) error

func (f SinkFunc) Push(fr Frame) error { return f(fr) }

type Config struct {
	// URL is the collector endpoint; empty disables the HTTP push but
	// sinks still run.
	URL      string
	Interval time.Duration
}

type Reporter struct {
	cfg    Config
	source func() Frame
	client *http.Client
	obs    *observability.Collector
	sinks  []Sink
}

func New(cfg Config, source func() Frame, obs *observability.Collector) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Reporter{
		cfg:    cfg,
		source: source,
		client: &http.Client{Timeout: cfg.Interval},
		obs:    obs,
	}
}

// AddSink registers an extra best-effort destination. Not safe to call
// after Run has started.
func (r *Reporter) AddSink(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Run pushes until the context ends. It runs regardless of the power
// gate: whatever the last sample was, stale or not, goes out.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.pushOnce(ctx)
		}
	}
}

func (r *Reporter) pushOnce(ctx context.Context) {
	frame := r.source()

	if r.cfg.URL != "" {
		if err := r.post(ctx, frame); err != nil {
			log.Printf("telemetry: push failed: %v", err)
			if r.obs != nil {
				r.obs.TelemetryFailures.Inc()
			}
		} else if r.obs != nil {
			r.obs.TelemetryPushes.Inc()
		}
	}

	for _, s := range r.sinks {
		if err := s.Push(frame); err != nil {
			log.Printf("telemetry: sink push failed: %v", err)
		}
	}
}

func (r *Reporter) post(ctx context.Context, frame Frame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
