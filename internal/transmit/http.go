package transmit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const DefaultIdleConnectionTimeout = 90 * time.Second

var (
	post            = []byte("POST")
	applicationJSON = []byte("application/json")
)

// HTTP posts each payload to a hub endpoint.
type HTTP struct {
	client  fasthttp.Client
	url     []byte
	gzip    bool
	timeout time.Duration
}

func NewHTTP(url string, useGzip bool, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		client: fasthttp.Client{
			Name:                "sensor-node",
			MaxIdleConnDuration: DefaultIdleConnectionTimeout,
		},
		url:     []byte(url),
		gzip:    useGzip,
		timeout: timeout,
	}
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *HTTP) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := payload
	if h.gzip {
		var err error
		if body, err = compress(payload); err != nil {
			return fmt.Errorf("failed to gzip payload: %w", err)
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetContentTypeBytes(applicationJSON)
	req.Header.SetMethodBytes(post)
	req.Header.SetRequestURIBytes(h.url)
	if h.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.SetBody(body)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	err := h.client.DoTimeout(req, resp, timeout)
	// fasthttp cannot be interrupted; report a cancellation that happened mid-request as such
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", h.url, err)
	}
	if sc := resp.StatusCode(); sc < 200 || sc > 299 {
		return fmt.Errorf("invalid response from %s (status %d): %s", h.url, sc, resp.Body())
	}
	log.Debug().Bytes("url", h.url).Int("bytes", len(body)).Msg("Snapshot posted")
	return nil
}
