// Package report posts telemetry records to the collector.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"sensornode-go/errcode"
	"sensornode-go/services/config"
	"sensornode-go/x/mathx"

	"github.com/labstack/gommon/random"
)

// Record maps field names to values.
type Record map[string]float64

// Round2 returns a copy with every value rounded to two decimals.
func (r Record) Round2() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = mathx.Round(v, 2)
	}
	return out
}

type envelope struct {
	Parameters Record `json:"parameters"`
}

// Body encodes the wire form {"parameters": {...}}.
func Body(r Record) ([]byte, error) {
	return json.Marshal(envelope{Parameters: r})
}

// Transport sends one record per call. It never retries or buffers.
type Transport struct {
	endpoint string
	client   *http.Client
}

func NewTransport(cfg config.Report, client *http.Client) *Transport {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Transport{endpoint: cfg.Endpoint(), client: client}
}

func (t *Transport) Endpoint() string { return t.endpoint }

// Send posts r. The response body is drained and ignored; a status of 400 or
// above is an http_status error and a failed exchange a transport error.
func (t *Transport) Send(ctx context.Context, r Record) error {
	const op = "report.send"
	body, err := Body(r)
	if err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return errcode.Wrap(errcode.InvalidConfig, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", random.String(16))

	resp, err := t.client.Do(req)
	if err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return errcode.New(errcode.HTTPStatus, op, strconv.Itoa(resp.StatusCode))
	}
	return nil
}
