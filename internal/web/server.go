// Package web is the inbound HTTP surface: the power toggle used by the
// remote, plain-text status, a JSON snapshot for debugging, Prometheus
// metrics, a live telemetry websocket, and the latest camera frame.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"rover-ng/internal/control"
)

// FrameSource provides the most recent camera frame, if any.
type FrameSource interface {
	Frame() ([]byte, bool)
}

// Options carries the handler's collaborators. Nil fields disable their
// endpoints.
type Options struct {
	Power   *control.Power
	Control func() control.Snapshot

	Metrics http.Handler
	Hub     *Hub
	Frames  FrameSource

	// Extras are merged into /api/status by section name.
	Extras map[string]func() any
}

func powerText(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func Handler(opts Options) http.Handler {
	mux := http.NewServeMux()
	start := time.Now().UTC()

	mux.HandleFunc("/toggle", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			on := opts.Power.Toggle()
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(powerText(on)))
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(powerText(opts.Power.On())))
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := time.Now().UTC()
		doc := map[string]any{
			"service":    "rover-ng",
			"now_utc":    now.Format(time.RFC3339Nano),
			"uptime_sec": int64(now.Sub(start).Seconds()),
			"power":      powerText(opts.Power.On()),
		}
		if opts.Control != nil {
			doc["control"] = opts.Control()
		}
		for name, get := range opts.Extras {
			if get != nil {
				doc[name] = get()
			}
		}
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	if opts.Hub != nil {
		mux.Handle("/ws", opts.Hub)
	}

	if opts.Frames != nil {
		mux.HandleFunc("/camera/frame", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			frame, ok := opts.Frames.Frame()
			if !ok {
				http.Error(w, "no frame yet", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(frame)
		})
	}

	return allowAllOrigins(mux)
}

// allowAllOrigins stamps every response; the remote UI is served from a
// different origin than the vehicle.
func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
