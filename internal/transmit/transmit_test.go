package transmit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/outbox"
)

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Node:      3,
		Timestamp: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		Readings: map[model.Kind]model.Reading{
			model.KindTempHumidity: {Sensor: model.KindTempHumidity, Node: 3, Values: map[string]model.Value{
				"temperature":       model.Float(21.5),
				"relative_humidity": model.Float(40),
			}},
		},
	}
}

func TestEncodeHubShape(t *testing.T) {
	payload, err := Encode(testSnapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"TEMP_AHT21":{"temperature":21.5,"relative_humidity":40.0,"Node":3}}`, string(payload))
}

func TestTCPSend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		received <- b
	}()

	sink := NewSink("tcp", &TCP{Addr: ln.Addr().String(), Timeout: time.Second})
	require.NoError(t, sink.Consume(context.Background(), testSnapshot()))

	select {
	case b := <-received:
		var got map[string]map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, 3.0, got["TEMP_AHT21"]["Node"])
	case <-time.After(2 * time.Second):
		t.Fatal("hub received nothing")
	}
}

func TestTCPSendUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = (&TCP{Addr: addr, Timeout: time.Second}).Send(context.Background(), []byte("{}"))
	assert.Error(t, err)
}

func TestHTTPSendGzip(t *testing.T) {
	var (
		body     []byte
		encoding string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ = io.ReadAll(zr)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/ingest", true, time.Second)
	require.NoError(t, h.Send(context.Background(), []byte(`{"a":1}`)))
	assert.Equal(t, "gzip", encoding)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestHTTPSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad node", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, false, time.Second).Send(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestTCPSendCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = (&TCP{Addr: ln.Addr().String(), Timeout: time.Second}).Send(ctx, []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPSendCancelledMidRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, false, time.Second).Send(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "status 503")
}

type flaky struct {
	down bool
	sent []string
}

func (f *flaky) Send(_ context.Context, p []byte) error {
	if f.down {
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, string(p))
	return nil
}

func TestReliableQueuesAndDrains(t *testing.T) {
	o, err := outbox.Open(t.TempDir())
	require.NoError(t, err)
	defer o.Close()

	hub := &flaky{down: true}
	r := NewReliable(hub, o)

	assert.Error(t, r.Send(context.Background(), []byte("1")))
	assert.Error(t, r.Send(context.Background(), []byte("2")))
	n, err := o.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hub.down = false
	require.NoError(t, r.Send(context.Background(), []byte("3")))
	assert.Equal(t, []string{"1", "2", "3"}, hub.sent)

	n, err = o.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
