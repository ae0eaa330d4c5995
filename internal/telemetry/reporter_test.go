package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func staticSource(f Frame) func() Frame {
	return func() Frame { return f }
}

func TestPushOnce_BodyAndHeaders(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL, Interval: time.Second}, staticSource(Frame{
		FrontDistance:   0.42,
		LeftDistance:    999,
		RightDistance:   1.5,
		MotorSpeed:      87.5,
		RudderDirection: "Turning Left…",
	}), nil)

	r.pushOnce(context.Background())

	if gotContentType != "application/json" {
		t.Fatalf("content-type=%q", gotContentType)
	}

	var doc map[string]any
	if err := json.Unmarshal(gotBody, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"frontDistance", "leftDistance", "rightDistance", "motorSpeed", "rudderDirection"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("body missing %q: %s", key, gotBody)
		}
	}
	if doc["leftDistance"] != float64(999) {
		t.Fatalf("leftDistance=%v want sentinel passed through", doc["leftDistance"])
	}
	if doc["rudderDirection"] != "Turning Left…" {
		t.Fatalf("rudderDirection=%v", doc["rudderDirection"])
	}
}

func TestPushOnce_NonOKIsDroppedNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL, Interval: time.Second}, staticSource(Frame{}), nil)
	r.pushOnce(context.Background())

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls=%d want exactly 1 (no retry)", got)
	}
}

func TestPushOnce_SinksRunEvenWithoutURL(t *testing.T) {
	var got []Frame
	r := New(Config{Interval: time.Second}, staticSource(Frame{MotorSpeed: 50}), nil)
	r.AddSink(SinkFunc(func(f Frame) error {
		got = append(got, f)
		return nil
	}))
	r.AddSink(SinkFunc(func(f Frame) error {
		return fmt.Errorf("broker down")
	}))

	r.pushOnce(context.Background())
	r.pushOnce(context.Background())

	if len(got) != 2 || got[0].MotorSpeed != 50 {
		t.Fatalf("sink frames=%v", got)
	}
}

func TestRun_PushesOnCadenceAndStops(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL, Interval: 20 * time.Millisecond}, staticSource(Frame{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() < 3 {
		t.Fatalf("calls=%d want >=3", calls.Load())
	}
}
