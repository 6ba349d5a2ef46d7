package inventory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/inventory-core/internal/infrastructure/mqtt"
)

type stubIngester struct {
	mu      sync.Mutex
	got     []CheckIn
	err     error
	ctxs    []context.Context
	ctxErrs []error
}

func (s *stubIngester) Ingest(ctx context.Context, c CheckIn) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, c)
	s.ctxs = append(s.ctxs, ctx)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return Receipt{HistoryID: 1}, s.err
}

type stubSubscriber struct {
	topic        string
	qos          byte
	handler      mqtt.MessageHandler
	err          error
	unsubscribed []string
	unsubErr     error
}

func (s *stubSubscriber) Unsubscribe(topic string) error {
	s.unsubscribed = append(s.unsubscribed, topic)
	return s.unsubErr
}

func (s *stubSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	s.topic = topic
	s.qos = qos
	s.handler = handler
	return s.err
}

const listenerPayload = `{
	"hostname": "LAPTOP01",
	"ip_address": "192.168.1.10",
	"logged_in_user": null,
	"laptop_serial": "ABC123",
	"drives": [{"model": "WD Blue", "serial_number": "WD-1", "device_id": "\\\\.\\PHYSICALDRIVE0"}],
	"timestamp_utc": "2025-12-26T10:30:00Z",
	"agent_version": "2.1.0"
}`

func TestMQTTListener_Start(t *testing.T) {
	ing := &stubIngester{}
	sub := &stubSubscriber{}

	if err := NewMQTTListener(ing, nil).Start(context.Background(), sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sub.topic != "inventory/checkin/+" {
		t.Errorf("subscribed to %q, want inventory/checkin/+", sub.topic)
	}
	if sub.qos != 1 {
		t.Errorf("qos = %d, want 1", sub.qos)
	}

	if err := sub.handler("inventory/checkin/ABC123", []byte(listenerPayload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(ing.got) != 1 {
		t.Fatalf("ingested %d check-ins, want 1", len(ing.got))
	}

	got := ing.got[0]
	if got.LaptopSerial != "ABC123" || got.LoggedInUser != nil || len(got.Drives) != 1 {
		t.Errorf("decoded check-in = %+v", got)
	}
	if got.Drives[0].DeviceID != `\\.\PHYSICALDRIVE0` {
		t.Errorf("DeviceID = %q", got.Drives[0].DeviceID)
	}
	if ing.ctxErrs[0] != nil {
		t.Errorf("ingest context already done: %v", ing.ctxErrs[0])
	}
	if _, ok := ing.ctxs[0].Deadline(); !ok {
		t.Error("ingest context has no deadline")
	}
}

func TestMQTTListener_Stop(t *testing.T) {
	listener := NewMQTTListener(&stubIngester{}, nil)
	if err := listener.Stop(); err != nil {
		t.Fatalf("Stop() before Start error = %v", err)
	}

	sub := &stubSubscriber{}
	if err := listener.Start(context.Background(), sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := listener.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := listener.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if len(sub.unsubscribed) != 1 || sub.unsubscribed[0] != "inventory/checkin/+" {
		t.Errorf("unsubscribed = %v, want [inventory/checkin/+]", sub.unsubscribed)
	}
}

func TestMQTTListener_StopError(t *testing.T) {
	listener := NewMQTTListener(&stubIngester{}, nil)
	sub := &stubSubscriber{unsubErr: mqtt.ErrNotConnected}
	if err := listener.Start(context.Background(), sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := listener.Stop(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Stop() error = %v, want ErrNotConnected", err)
	}
}

func TestMQTTListener_StartSubscribeError(t *testing.T) {
	sub := &stubSubscriber{err: mqtt.ErrNotConnected}

	err := NewMQTTListener(&stubIngester{}, nil).Start(context.Background(), sub, 1)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestMQTTListener_Handle(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		ingestErr  error
		wantErr    bool
		wantIngest int
	}{
		{"valid payload", listenerPayload, nil, false, 1},
		{"malformed json", `{"hostname":`, nil, true, 0},
		{"wrong field type", `{"drives": "none"}`, nil, true, 0},
		{"oversized payload", `"` + strings.Repeat("x", maxMQTTPayload) + `"`, nil, true, 0},
		{"ingest rejected", listenerPayload, ErrValidationFailed, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &stubIngester{err: tt.ingestErr}
			l := NewMQTTListener(ing, nil)

			err := l.Handle("inventory/checkin/ABC123", []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(ing.got) != tt.wantIngest {
				t.Errorf("ingested %d, want %d", len(ing.got), tt.wantIngest)
			}
		})
	}
}

func TestMQTTListener_CancelledContext(t *testing.T) {
	ing := &stubIngester{}
	sub := &stubSubscriber{}
	ctx, cancel := context.WithCancel(context.Background())

	if err := NewMQTTListener(ing, nil).Start(ctx, sub, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	if err := sub.handler("inventory/checkin/ABC123", []byte(listenerPayload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(ing.ctxErrs) != 1 || !errors.Is(ing.ctxErrs[0], context.Canceled) {
		t.Error("ingest context not derived from the listener context")
	}
}
