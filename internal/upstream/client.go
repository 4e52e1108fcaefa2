// Package upstream queries the AyA interruptions endpoint for one location at a time.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/domain"
)

const maxBodyBytes = 4 << 20

// Fetcher returns the raw upstream response for one location. ok is false
// when nothing usable came back; failures are never surfaced as errors.
type Fetcher interface {
	FetchOutageInfo(ctx context.Context, loc domain.MonitoredLocation) (*domain.RawResponse, bool)
}

type Client struct {
	HTTP     *http.Client
	BaseURL  string
	DateFrom string
	DateTo   string
	log      *zap.Logger
}

var _ Fetcher = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, dateFrom, dateTo string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		BaseURL:  baseURL,
		DateFrom: dateFrom,
		DateTo:   dateTo,
		log:      log,
	}
}

// BuildURL renders the query for loc. IDs go in verbatim.
func (c *Client) BuildURL(loc domain.MonitoredLocation) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("FkProvincia", string(loc.ProvinceID))
	q.Set("FkCanton", string(loc.CantonID))
	q.Set("FkDistrito", string(loc.DistrictID))
	q.Set("FechaInicio", c.DateFrom)
	q.Set("FechaFin", c.DateTo)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) FetchOutageInfo(ctx context.Context, loc domain.MonitoredLocation) (*domain.RawResponse, bool) {
	target, err := c.BuildURL(loc)
	if err != nil {
		c.fail(loc, "bad_url", err)
		return nil, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.fail(loc, "bad_request", err)
		return nil, false
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.fail(loc, "http_error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		c.log.Warn("fetch_failed",
			zap.String("location", loc.Key()),
			zap.String("reason", "non_2xx"),
			zap.Int("status", resp.StatusCode),
		)
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.fail(loc, "read_error", err)
		return nil, false
	}
	out, skipped, err := decode(body)
	if err != nil {
		c.fail(loc, "decode_error", err)
		return nil, false
	}
	if skipped > 0 {
		c.log.Warn("fetch_records_skipped",
			zap.String("location", loc.Key()),
			zap.Int("skipped", skipped),
			zap.Int("kept", len(out.Entities)),
		)
	}

	c.log.Debug("fetch_ok",
		zap.String("location", loc.Key()),
		zap.Int("entities", len(out.Entities)),
		zap.Float64("latency_ms", time.Since(start).Seconds()*1000),
	)
	return out, true
}

type wireResponse struct {
	Alert    json.RawMessage `json:"alerta"`
	Entities json.RawMessage `json:"entidad"`
}

// decode reads alerta and each entidad record on its own. A malformed
// alerta becomes nil, a malformed record is skipped and counted, and an
// entidad that is not an array is treated as absent.
func decode(body []byte) (resp *domain.RawResponse, skipped int, err error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, 0, err
	}
	out := &domain.RawResponse{}
	if len(wire.Alert) > 0 && !bytes.Equal(wire.Alert, []byte("null")) {
		var alert domain.RawAlert
		if json.Unmarshal(wire.Alert, &alert) == nil {
			out.Alert = &alert
		}
	}
	var records []json.RawMessage
	if len(wire.Entities) == 0 || json.Unmarshal(wire.Entities, &records) != nil {
		return out, 0, nil
	}
	out.Entities = make([]domain.Interruption, 0, len(records))
	for _, raw := range records {
		var it domain.Interruption
		if err := json.Unmarshal(raw, &it); err != nil {
			skipped++
			continue
		}
		out.Entities = append(out.Entities, it)
	}
	return out, skipped, nil
}

func (c *Client) fail(loc domain.MonitoredLocation, reason string, err error) {
	c.log.Warn("fetch_failed",
		zap.String("location", loc.Key()),
		zap.String("reason", reason),
		zap.Error(err),
	)
}
