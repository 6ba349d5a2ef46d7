// Package influxdb mirrors accepted check-ins into InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Each accepted
// check-in becomes one point in the "checkin" measurement, so external
// dashboards can chart fleet activity without touching the SQLite store.
// This is a copy of the history table, not service telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCheckIn(influxdb.CheckInPoint{
//	    LaptopSerial: "ABC123",
//	    Hostname:     "LAPTOP01",
//	    IPAddress:    "10.0.0.5",
//	    DriveCount:   1,
//	    ReceivedAt:   time.Now(),
//	})
//
// # Error Handling
//
// Writes are non-blocking. Batch failures are delivered to the callback set
// with SetOnError. Connection and health check errors are returned directly.
package influxdb
