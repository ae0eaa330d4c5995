package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type InferenceConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Interval      time.Duration `yaml:"interval"`
	MinConfidence float64       `yaml:"min_confidence"`
	Overlap       float64       `yaml:"overlap"`
}

// Prediction is a single detection returned by the inference service.
// Coordinates are the box center in pixels.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// FrameSource yields the latest camera frame, if one exists.
type FrameSource interface {
	Frame() ([]byte, bool)
}

// Detector periodically uploads the latest frame to an external
// detection model and caches the returned predictions. An unreachable
// or failing service only costs a log line; detections are advisory
// and never gate vehicle control.
type Detector struct {
	cfg    InferenceConfig
	src    FrameSource
	client *http.Client

	mu     sync.RWMutex
	latest []Prediction
}

func NewDetector(cfg InferenceConfig, src FrameSource) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Detector{
		cfg:    cfg,
		src:    src,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Latest returns the predictions from the most recent successful
// inference round.
func (d *Detector) Latest() []Prediction {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Prediction, len(d.latest))
	copy(out, d.latest)
	return out
}

func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.analyzeOnce(ctx); err != nil {
				log.Printf("camera: inference: %v", err)
			}
		}
	}
}

func (d *Detector) analyzeOnce(ctx context.Context) error {
	frame, ok := d.src.Frame()
	if !ok {
		return nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return err
	}
	if _, err := fw.Write(frame); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.requestURL(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var result struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode predictions: %w", err)
	}

	d.mu.Lock()
	d.latest = result.Predictions
	d.mu.Unlock()

	if n := len(result.Predictions); n > 0 {
		log.Printf("camera: %d detection(s)", n)
	}
	return nil
}

func (d *Detector) requestURL() string {
	q := url.Values{}
	if d.cfg.APIKey != "" {
		q.Set("api_key", d.cfg.APIKey)
	}
	if d.cfg.MinConfidence > 0 {
		q.Set("confidence", fmt.Sprintf("%.2f", d.cfg.MinConfidence))
	}
	if d.cfg.Overlap > 0 {
		q.Set("overlap", fmt.Sprintf("%.2f", d.cfg.Overlap))
	}
	if len(q) == 0 {
		return d.cfg.Endpoint
	}
	sep := "?"
	if strings.Contains(d.cfg.Endpoint, "?") {
		sep = "&"
	}
	return d.cfg.Endpoint + sep + q.Encode()
}
