// Package starlink publishes a Starlink dish as a monitoring service on MQTT.
//
// The Publisher fetches the dish identity once, builds a fixed attribute Tree
// (management metadata, device metadata, GPS telemetry and one writable
// custom name) and makes it visible as retained topics under
// <prefix>/<service><path>. After that it refreshes the position on a timer.
//
// # Lifecycle
//
//	Initializing ──Initialize()──▶ Running
//
// There is no way back to Initializing. Nothing is published before
// Initialize has built the whole tree, and a failure during Initialize
// leaves nothing behind on the broker.
//
// # Threading
//
// Refresh ticks, health reports and writes arriving from MQTT are all run on
// one loop.Loop. Paho callbacks only post work to it.
//
// # MQTT Topics
//
//	starlink/<service>/<path>            attribute value (retained)
//	starlink/<service>/CustomName/set    custom name write
//	starlink/services/<service>          service announcement (retained)
//	starlink/health/<service>            health report (retained)
package starlink
