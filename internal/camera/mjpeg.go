// Package camera consumes the MJPEG stream published by the onboard
// ESP32-CAM module and keeps the most recent frame available for the
// web server and the inference uploader.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

const (
	maxRetries    = 5
	readChunkSize = 1024
)

// Overridable in tests.
var reconnectDelay = 2 * time.Second

// ErrStreamUnavailable is returned by Run when the camera could not be
// reached after the maximum number of connection attempts.
var ErrStreamUnavailable = errors.New("camera stream unavailable")

type Config struct {
	StreamURL string `yaml:"stream_url"`
}

// Reader connects to an MJPEG stream and caches the latest complete
// JPEG frame. Frames are delimited by scanning the raw byte stream for
// the JPEG start and end markers; the ESP32-CAM multipart boundaries
// are ignored entirely, which also tolerates malformed boundaries from
// flaky firmware.
type Reader struct {
	url    string
	client *http.Client

	mu    sync.RWMutex
	frame []byte
	seq   uint64
}

func NewReader(cfg Config) *Reader {
	return &Reader{
		url: cfg.StreamURL,
		client: &http.Client{
			// Connection timeout only. The stream itself is unbounded,
			// so the overall request must not carry a deadline.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// Frame returns a copy of the most recent JPEG frame. The second
// return is false until the first complete frame has been received.
func (r *Reader) Frame() ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.frame == nil {
		return nil, false
	}
	out := make([]byte, len(r.frame))
	copy(out, r.frame)
	return out, true
}

// FrameSeq returns the number of complete frames received so far.
func (r *Reader) FrameSeq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Run streams frames until ctx is cancelled. Connection failures are
// retried with a fixed delay; the retry counter resets after every
// successful connection, so a long-lived stream that drops is always
// re-established. Run returns ErrStreamUnavailable only when the
// camera never answers maxRetries times in a row.
func (r *Reader) Run(ctx context.Context) error {
	retries := 0
	for ctx.Err() == nil && retries < maxRetries {
		log.Printf("camera: connecting to %s (attempt %d)", r.url, retries+1)
		err := r.readStream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("camera: stream error: %v", err)
			retries++
		} else {
			// Stream ended cleanly after delivering data. Reconnect
			// and start counting retries over.
			retries = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
	if retries >= maxRetries {
		return fmt.Errorf("%w after %d attempts", ErrStreamUnavailable, maxRetries)
	}
	return nil
}

func (r *Reader) readStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "rover-ng-camera/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	log.Printf("camera: connected to MJPEG stream")

	var buf []byte
	chunk := make([]byte, readChunkSize)
	got := false
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var frames [][]byte
			frames, buf = extractFrames(buf)
			for _, f := range frames {
				r.store(f)
				got = true
			}
		}
		if err != nil {
			if err == io.EOF && got {
				return nil
			}
			return err
		}
	}
}

func (r *Reader) store(frame []byte) {
	r.mu.Lock()
	r.frame = frame
	r.seq++
	r.mu.Unlock()
}

// extractFrames pulls every complete JPEG out of buf and returns the
// unconsumed tail. Bytes before a start marker (multipart boundaries,
// part headers) are discarded along with each extracted frame.
func extractFrames(buf []byte) (frames [][]byte, rest []byte) {
	for {
		start := bytes.Index(buf, jpegSOI)
		if start < 0 {
			return frames, buf
		}
		end := bytes.Index(buf[start:], jpegEOI)
		if end < 0 {
			// Incomplete frame. Keep from the start marker on.
			return frames, buf[start:]
		}
		end += start + len(jpegEOI)
		frame := make([]byte, end-start)
		copy(frame, buf[start:end])
		frames = append(frames, frame)
		buf = buf[end:]
	}
}
