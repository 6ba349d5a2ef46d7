package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/inventory-core/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-core/internal/infrastructure/mqtt"
)

// mqttIngestTimeout bounds one check-in received over MQTT.
const mqttIngestTimeout = 30 * time.Second

// maxMQTTPayload matches the HTTP body limit.
const maxMQTTPayload = 1 << 20

// Ingester is satisfied by *Service.
type Ingester interface {
	Ingest(ctx context.Context, c CheckIn) (Receipt, error)
}

// Subscriber is satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTListener feeds check-ins published on inventory/checkin/{serial}
// into the ingestion service. MQTT has no reply channel, so outcomes are
// only logged.
type MQTTListener struct {
	ingester Ingester
	logger   *logging.Logger
	ctx      context.Context

	sub   Subscriber
	topic string
}

// NewMQTTListener creates a listener delivering to ingester.
func NewMQTTListener(ingester Ingester, logger *logging.Logger) *MQTTListener {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MQTTListener{
		ingester: ingester,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start subscribes to every check-in topic. Messages handled after ctx is
// cancelled fail fast.
func (l *MQTTListener) Start(ctx context.Context, sub Subscriber, qos byte) error {
	l.ctx = ctx
	topic := mqtt.Topics{}.AllCheckIns()
	if err := sub.Subscribe(topic, qos, l.Handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	l.sub = sub
	l.topic = topic
	l.logger.Info("listening for MQTT check-ins", "topic", topic)
	return nil
}

// Stop unsubscribes so no new check-ins arrive during shutdown.
// It is a no-op before Start.
func (l *MQTTListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	sub := l.sub
	l.sub = nil
	if err := sub.Unsubscribe(l.topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", l.topic, err)
	}
	l.logger.Info("stopped listening for MQTT check-ins", "topic", l.topic)
	return nil
}

// Handle processes one MQTT message. Only undecodable payloads are
// returned as errors; ingest failures are already logged by the service.
func (l *MQTTListener) Handle(topic string, payload []byte) error {
	if len(payload) > maxMQTTPayload {
		return fmt.Errorf("check-in on %s: payload of %d bytes exceeds %d", topic, len(payload), maxMQTTPayload)
	}

	var c CheckIn
	if err := json.Unmarshal(payload, &c); err != nil {
		return fmt.Errorf("decoding check-in on %s: %w", topic, err)
	}

	if serial, ok := mqtt.SerialFromTopic(topic); ok && serial != mqtt.Segment(c.LaptopSerial) {
		l.logger.Warn("topic serial differs from payload",
			"topic", topic,
			"laptop_serial", c.LaptopSerial,
		)
	}

	ctx, cancel := context.WithTimeout(l.ctx, mqttIngestTimeout)
	defer cancel()

	if _, err := l.ingester.Ingest(ctx, c); err != nil {
		l.logger.Debug("MQTT check-in not accepted", "topic", topic, "error", err)
	}
	return nil
}
