package weather

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	weatherEndpoint = "/weather"

	defaultTimeout = 10 * time.Second

	userAgent = "weathersync/1.0"
)

// Client talks to the remote current-weather endpoint. It performs exactly
// one request per call and no internal retries; retry policy belongs to the
// sync engine.
type Client struct {
	http   *resty.Client
	apiKey string
	units  string
}

// NewClient creates a weather API client. units is one of metric, imperial
// or standard and is passed through to the provider as-is.
func NewClient(baseURL, apiKey, units string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Client{
		http:   http,
		apiKey: apiKey,
		units:  units,
	}
}

// Current fetches the current weather for a coordinate. It returns the
// decoded payload, an *APIError for non-2xx responses, or a *TransportError
// for failures below HTTP. The call is cancellable through ctx.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Payload, error) {
	var payload Payload

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   formatCoord(lat),
			"lon":   formatCoord(lon),
			"appid": c.apiKey,
			"units": c.units,
		}).
		SetResult(&payload).
		Get(weatherEndpoint)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	return &payload, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
