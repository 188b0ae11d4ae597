package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementPosition is the measurement refreshed positions are written to.
const MeasurementPosition = "starlink_position"

// WritePosition records the outcome of one position refresh.
//
// A point without a fix carries only fix=0, so stale coordinates kept on the
// bus never enter the history. The write is non-blocking; data is batched
// and sent asynchronously.
//
// Parameters:
//   - service: Published service name, stored as the "service" tag
//   - fix: Whether the dish reported a position
//   - lat, lon: Degrees
//   - alt: Metres, as published
//   - at: Refresh time
func (c *Client) WritePosition(service string, fix bool, lat, lon float64, alt int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(positionPoint(service, fix, lat, lon, alt, at))
	c.written.Add(1)
}

func positionPoint(service string, fix bool, lat, lon float64, alt int, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"fix": 0,
	}
	if fix {
		fields["fix"] = 1
		fields["latitude"] = lat
		fields["longitude"] = lon
		fields["altitude"] = alt
	}

	return write.NewPoint(
		MeasurementPosition,
		map[string]string{
			"service": service,
		},
		fields,
		at,
	)
}
