// Package mqtt provides MQTT connectivity for the inventory server.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Message publishing with QoS
//   - Last Will and Testament (LWT) on inventory/system/status
//
// Agents that cannot reach the HTTP endpoint publish check-ins to
// inventory/checkin/{serial}. The server announces every accepted check-in
// on inventory/events/checkin/{serial}.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCheckIns(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// Tests that need a broker at 127.0.0.1:1883 are behind the integration
// build tag:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
package mqtt
