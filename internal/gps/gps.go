// Package gps reads NMEA position sentences from a serial GNSS
// receiver and keeps the latest fix available for the status API and
// telemetry. RMC and GGA carry everything the rover reports; other
// sentence types are skipped.
//
// This is a best-effort service. Failures are recorded in the snapshot
// and never bring down the control loop.
package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

type Config struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"` // empty to auto-detect /dev/ttyACM*, /dev/ttyUSB*
	Baud   int    `yaml:"baud"`
}

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	LatDeg     float64  `json:"lat_deg,omitempty"`
	LonDeg     float64  `json:"lon_deg,omitempty"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	CourseDeg  *float64 `json:"course_deg,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`
	HDOP       *float64 `json:"hdop,omitempty"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// openPortFn is swapped in tests.
var openPortFn = func(device string, baud int) (io.ReadCloser, error) {
	return serial.Open(device, &serial.Mode{BaudRate: baud})
}

type Service struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config) *Service {
	s := &Service{cfg: cfg}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := openPortFn(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return err
	}
	s.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.readLoop(childCtx, port, device, baud)

	s.last.Store(Snapshot{Enabled: true, Device: device, Baud: baud})
	return nil
}

func (s *Service) readLoop(ctx context.Context, port io.ReadCloser, device string, baud int) {
	defer s.wg.Done()
	defer port.Close()

	log.Printf("gps enabled device=%s baud=%d", device, baud)

	scanner := bufio.NewScanner(port)
	// NMEA sentences are < 82 chars; allow headroom for chatter.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	st := fixState{device: device, baud: baud}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sent, perr := parseSentence(line)
		if perr != nil {
			s.setError(perr.Error())
			continue
		}
		if st.apply(time.Now().UTC(), sent) {
			s.last.Store(st.snapshot())
		}
	}
}

func (s *Service) Close() {
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	// Transient parse noise should not flip validity.
	s.last.Store(cur)
}

func autoDetectDevice() string {
	var candidates []string
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
