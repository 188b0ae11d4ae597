package starlink

import (
	"time"
)

// MQTT message types published by the bridge besides attribute values.

// ServiceStatus is the availability carried by a service announcement.
type ServiceStatus string

const (
	ServiceOnline  ServiceStatus = "online"
	ServiceOffline ServiceStatus = "offline"
)

// ServiceAnnouncement describes a published dish.
// Topic: starlink/services/{service}
// QoS: configured, Retained: Yes
type ServiceAnnouncement struct {
	// Service is the service name, e.g. "com.victronenergy.gps.starlink.1a2b3c4d".
	Service string `json:"service"`

	// ShortID is the 8 character identifier derived from the dish serial.
	ShortID string `json:"short_id"`

	// Status is online while the bridge publishes the service.
	Status ServiceStatus `json:"status"`

	// ProductName is the configured product name.
	ProductName string `json:"product_name"`

	// ProcessVersion is the bridge version.
	ProcessVersion string `json:"process_version"`

	// Paths lists every attribute path of the service.
	Paths []string `json:"paths,omitempty"`

	// Writable lists the paths that accept writes on <path>/set.
	Writable []string `json:"writable,omitempty"`

	// Timestamp is when the announcement was generated (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthStarting indicates the bridge has not finished initializing.
	HealthStarting HealthStatus = "starting"

	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bus is down or the dish stopped answering.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: starlink/health/{service}
// QoS: configured, Retained: Yes
// Interval: bridge.health_interval_seconds
type HealthMessage struct {
	// Service is the published service name.
	Service string `json:"service"`

	// InstanceID identifies this process run.
	InstanceID string `json:"instance_id"`

	// Timestamp is when the health status was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Statistics contains refresh counters.
	Statistics *RefreshStatistics `json:"statistics,omitempty"`

	// Reason explains a degraded status.
	Reason string `json:"reason,omitempty"`
}

// RefreshStatistics mirrors Stats for the health message.
type RefreshStatistics struct {
	Cycles            uint64     `json:"cycles"`
	Fixes             uint64     `json:"fixes"`
	NoFix             uint64     `json:"no_fix"`
	TransportFailures uint64     `json:"transport_failures"`
	LastRefresh       *time.Time `json:"last_refresh,omitempty"`
}

// NewHealthMessage creates a health message from publisher statistics.
func NewHealthMessage(service, instanceID, version string, status HealthStatus, stats Stats, startTime time.Time) HealthMessage {
	rs := &RefreshStatistics{
		Cycles:            stats.Cycles,
		Fixes:             stats.Fixes,
		NoFix:             stats.NoFix,
		TransportFailures: stats.TransportFailures,
	}
	if !stats.LastRefresh.IsZero() {
		last := stats.LastRefresh.UTC()
		rs.LastRefresh = &last
	}

	return HealthMessage{
		Service:       service,
		InstanceID:    instanceID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Statistics:    rs,
	}
}
