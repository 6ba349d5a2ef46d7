package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/inventory-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/inventory-core/internal/infrastructure/mqtt"
)

// EventPublisher is satisfied by *mqtt.Client.
type EventPublisher interface {
	PublishEvent(topic string, payload []byte) error
}

// checkInEvent is the JSON body published for an accepted check-in.
type checkInEvent struct {
	LaptopSerial string `json:"laptop_serial"`
	Hostname     string `json:"hostname"`
	IPAddress    string `json:"ip_address"`
	TimestampUTC string `json:"timestamp_utc"`
	DriveCount   int    `json:"drive_count"`
	HistoryID    int64  `json:"history_id"`
	ReceivedAt   string `json:"received_at"`
}

// MQTTEventSink announces accepted check-ins on inventory/events/checkin/{serial}.
type MQTTEventSink struct {
	pub EventPublisher
}

// NewMQTTEventSink creates a sink publishing through pub.
func NewMQTTEventSink(pub EventPublisher) *MQTTEventSink {
	return &MQTTEventSink{pub: pub}
}

// CheckInAccepted publishes ev as a non-retained event.
func (s *MQTTEventSink) CheckInAccepted(_ context.Context, ev Event) error {
	payload, err := json.Marshal(checkInEvent{
		LaptopSerial: ev.CheckIn.LaptopSerial,
		Hostname:     ev.CheckIn.Hostname,
		IPAddress:    ev.CheckIn.IPAddress,
		TimestampUTC: ev.CheckIn.TimestampUTC,
		DriveCount:   len(ev.CheckIn.Drives),
		HistoryID:    ev.Receipt.HistoryID,
		ReceivedAt:   FormatTimestamp(ev.Receipt.ReceivedAt),
	})
	if err != nil {
		return fmt.Errorf("marshalling check-in event: %w", err)
	}
	if err := s.pub.PublishEvent(mqtt.Topics{}.CheckInEvent(ev.CheckIn.LaptopSerial), payload); err != nil {
		return fmt.Errorf("publishing check-in event: %w", err)
	}
	return nil
}

// CheckInWriter is satisfied by *influxdb.Client.
type CheckInWriter interface {
	WriteCheckIn(p influxdb.CheckInPoint)
}

// InfluxMirrorSink copies accepted check-ins into InfluxDB.
type InfluxMirrorSink struct {
	w CheckInWriter
}

// NewInfluxMirrorSink creates a sink writing through w.
func NewInfluxMirrorSink(w CheckInWriter) *InfluxMirrorSink {
	return &InfluxMirrorSink{w: w}
}

// CheckInAccepted queues one point. Write failures surface through the
// client's async error callback, so this never returns an error.
func (s *InfluxMirrorSink) CheckInAccepted(_ context.Context, ev Event) error {
	s.w.WriteCheckIn(influxdb.CheckInPoint{
		LaptopSerial: ev.CheckIn.LaptopSerial,
		Hostname:     ev.CheckIn.Hostname,
		IPAddress:    ev.CheckIn.IPAddress,
		DriveCount:   len(ev.CheckIn.Drives),
		ReceivedAt:   ev.Receipt.ReceivedAt,
	})
	return nil
}
