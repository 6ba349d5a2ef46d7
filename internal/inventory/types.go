package inventory

import (
	"strings"
	"time"
)

// TimestampLayout is the stored form of every timestamp.
// Fixed width and always UTC, so text order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// windowsDevicePrefix is stripped from drive device IDs for display.
const windowsDevicePrefix = `\\.\`

// Drive is one physical disk reported by a check-in.
type Drive struct {
	Model        string  `json:"model"`
	SerialNumber *string `json:"serial_number"`
	DeviceID     string  `json:"device_id"`
}

// DisplayDeviceID returns the device ID without the Windows `\\.\` prefix.
func (d Drive) DisplayDeviceID() string {
	return strings.TrimPrefix(d.DeviceID, windowsDevicePrefix)
}

// CheckIn is one report from an agent. JSON keys match the agent wire format;
// unknown keys are ignored.
type CheckIn struct {
	Hostname     string  `json:"hostname"`
	IPAddress    string  `json:"ip_address"`
	LoggedInUser *string `json:"logged_in_user"`
	LaptopSerial string  `json:"laptop_serial"`
	Drives       []Drive `json:"drives"`
	TimestampUTC string  `json:"timestamp_utc"`
}

// DeviceState is the current-state row for one laptop.
type DeviceState struct {
	LaptopSerial string    `json:"laptop_serial"`
	Hostname     string    `json:"hostname"`
	IPAddress    string    `json:"ip_address"`
	LoggedInUser *string   `json:"logged_in_user"`
	LastSeenUTC  time.Time `json:"last_seen_utc"`
	Drives       []Drive   `json:"drives"`
}

// DriveSerials returns the non-empty drive serial numbers in drive order.
func (s DeviceState) DriveSerials() []string {
	serials := make([]string, 0, len(s.Drives))
	for _, d := range s.Drives {
		if d.SerialNumber != nil && *d.SerialNumber != "" {
			serials = append(serials, *d.SerialNumber)
		}
	}
	return serials
}

// HistoryRecord is one immutable row of the check-in log.
type HistoryRecord struct {
	ID           int64     `json:"id"`
	LaptopSerial string    `json:"laptop_serial"`
	Hostname     string    `json:"hostname"`
	IPAddress    string    `json:"ip_address"`
	LoggedInUser *string   `json:"logged_in_user"`
	TimestampUTC time.Time `json:"timestamp_utc"`
	Drives       []Drive   `json:"drives"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Receipt acknowledges a committed check-in.
type Receipt struct {
	HistoryID  int64     `json:"history_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// FormatTimestamp renders t in the stored layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// parseStoredTimestamp reads a stored timestamp. Rows written before
// normalisation hold plain RFC3339 text; an empty value yields the zero time.
func parseStoredTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
