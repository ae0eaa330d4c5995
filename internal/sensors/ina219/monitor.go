package ina219

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Monitor polls the power monitor on a fixed cadence and caches the
// latest reading so HTTP handlers never touch the bus directly.
type Monitor struct {
	dev      *Device
	interval time.Duration
	last     atomic.Value // Reading
}

func NewMonitor(dev *Device, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &Monitor{dev: dev, interval: interval}
	m.last.Store(Reading{})
	return m
}

func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	r, err := m.dev.Read()
	if err != nil {
		log.Printf("battery: %v", err)
		return
	}
	m.last.Store(r)
}

// Snapshot returns the most recent reading.
func (m *Monitor) Snapshot() Reading {
	return m.last.Load().(Reading)
}
