package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// API paths served by the primary device.
const (
	PathSignal       = "/api/signal"
	PathMeasurements = "/api/measurements"
)

// Remote is a SignalStore backed by the primary device's HTTP API.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a client for the API at baseURL (e.g. http://primary:8080).
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// LatestSignal fetches the current signal.
func (r *Remote) LatestSignal(ctx context.Context) (logic.SyncSignal, error) {
	var sig logic.SyncSignal
	if err := r.do(ctx, http.MethodGet, PathSignal, nil, &sig); err != nil {
		return logic.SyncSignal{}, fmt.Errorf("latest signal: %w", err)
	}
	return sig, nil
}

// UpdatePhase writes a signal.
func (r *Remote) UpdatePhase(ctx context.Context, sig logic.SyncSignal) error {
	if err := r.do(ctx, http.MethodPut, PathSignal, sig, nil); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}

// AppendMeasurement posts a measurement.
func (r *Remote) AppendMeasurement(ctx context.Context, m logic.Measurement) error {
	if err := r.do(ctx, http.MethodPost, PathMeasurements, m, nil); err != nil {
		return fmt.Errorf("append %s measurement: %w", m.Kind, err)
	}
	return nil
}

func (r *Remote) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
