// Package influxdb provides the optional position history sink of the
// Starlink bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. Every
// position refresh becomes one point in the starlink_position measurement,
// tagged with the published service name.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePosition(service, true, 47.6, -122.3, 15, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write errors are delivered asynchronously to the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
