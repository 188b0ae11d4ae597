package dish

import "fmt"

// Status is the application-level outcome carried by every dish response.
// A zero Code means success; anything else is the dish declining the
// request, which is not a transport failure.
type Status struct {
	Code    int32
	Message string
}

// OK reports whether the dish accepted the request.
func (s Status) OK() bool {
	return s.Code == 0
}

func (s Status) String() string {
	if s.OK() {
		return "ok"
	}
	return fmt.Sprintf("code %d: %s", s.Code, s.Message)
}

// DeviceInfo is the dish's identity and version metadata, fetched once at startup.
//
// The version fields are optional on the wire and nil when the dish omits them.
type DeviceInfo struct {
	Status          Status
	ID              string
	HardwareVersion *string
	SoftwareVersion *string
}

// Available reports whether the response carried usable device metadata.
func (d DeviceInfo) Available() bool {
	return d.Status.OK() && d.ID != ""
}

// LLA is a latitude/longitude/altitude position in degrees and metres.
type LLA struct {
	Lat float64
	Lon float64
	Alt float64
}

// Position is the result of one location query.
//
// LLA is nil when the dish has no GPS fix or reported a non-zero status.
type Position struct {
	Status Status
	LLA    *LLA
}

// HasFix reports whether the position carries a valid latitude and longitude.
func (p Position) HasFix() bool {
	return p.Status.OK() && p.LLA != nil
}
