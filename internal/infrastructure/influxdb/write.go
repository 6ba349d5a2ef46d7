package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// checkInMeasurement is the measurement holding one point per accepted check-in.
const checkInMeasurement = "checkin"

// CheckInPoint is the data mirrored for one accepted check-in.
type CheckInPoint struct {
	LaptopSerial string
	Hostname     string
	IPAddress    string
	DriveCount   int
	ReceivedAt   time.Time
}

// WriteCheckIn queues a checkin point. Tags are laptop_serial and hostname;
// fields are drive_count and ip_address; the point time is ReceivedAt.
//
// The write is non-blocking and is dropped when the client is not connected.
func (c *Client) WriteCheckIn(p CheckInPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newCheckInPoint(p))
}

// newCheckInPoint builds the line-protocol point for p.
func newCheckInPoint(p CheckInPoint) *write.Point {
	return write.NewPoint(
		checkInMeasurement,
		map[string]string{
			"laptop_serial": p.LaptopSerial,
			"hostname":      p.Hostname,
		},
		map[string]interface{}{
			"drive_count": int64(p.DriveCount),
			"ip_address":  p.IPAddress,
		},
		p.ReceivedAt,
	)
}
