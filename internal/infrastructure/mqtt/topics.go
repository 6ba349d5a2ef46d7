package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the inventory server.
const (
	// TopicPrefix is the root of every inventory topic.
	TopicPrefix = "inventory"

	// TopicPrefixCheckIn is where agents publish check-in reports.
	TopicPrefixCheckIn = TopicPrefix + "/checkin"

	// TopicPrefixEvents is where the server announces accepted check-ins.
	TopicPrefixEvents = TopicPrefix + "/events"

	// TopicPrefixSystem is the base for server status topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// topicReplacer neutralises characters that are separators or wildcards
// in MQTT topic names.
var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topics provides builders for inventory MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.CheckIn("ABC123")      // inventory/checkin/ABC123
//	topics.CheckInEvent("ABC123") // inventory/events/checkin/ABC123
type Topics struct{}

// CheckIn returns the topic an agent publishes its report to.
//
// Example: inventory/checkin/ABC123
func (Topics) CheckIn(serial string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCheckIn, Segment(serial))
}

// AllCheckIns returns the wildcard subscription for every agent report.
//
// Example: inventory/checkin/+
func (Topics) AllCheckIns() string {
	return TopicPrefixCheckIn + "/+"
}

// CheckInEvent returns the topic announcing an accepted check-in.
//
// Example: inventory/events/checkin/ABC123
func (Topics) CheckInEvent(serial string) string {
	return fmt.Sprintf("%s/checkin/%s", TopicPrefixEvents, Segment(serial))
}

// AllCheckInEvents returns the wildcard subscription for every accepted check-in.
//
// Example: inventory/events/checkin/+
func (Topics) AllCheckInEvents() string {
	return TopicPrefixEvents + "/checkin/+"
}

// SystemStatus returns the server status topic. It also carries the LWT.
//
// Example: inventory/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Segment makes s safe to use as a single topic level.
// Separators and wildcards become underscores; an empty value becomes "_".
func Segment(s string) string {
	if s == "" {
		return "_"
	}
	return topicReplacer.Replace(s)
}

// SerialFromTopic returns the last level of a check-in topic.
// ok is false when topic is not directly under TopicPrefixCheckIn.
func SerialFromTopic(topic string) (serial string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixCheckIn+"/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
