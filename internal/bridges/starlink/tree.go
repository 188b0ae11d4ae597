package starlink

// Attribute paths of the published tree.
const (
	PathProcessName     = "/Management/ProcessName"
	PathProcessVersion  = "/Management/ProcessVersion"
	PathConnection      = "/Management/Connection"
	PathDeviceInstance  = "/DeviceInstance"
	PathProductID       = "/ProductId"
	PathProductName     = "/ProductName"
	PathFirmwareVersion = "/FirmwareVersion"
	PathHardwareVersion = "/HardwareVersion"
	PathConnected       = "/Connected"
	PathSerial          = "/Serial"
	PathState           = "/State"
	PathFix             = "/Fix"
	PathLatitude        = "/Position/Latitude"
	PathLongitude       = "/Position/Longitude"
	PathAltitude        = "/Position/Altitude"
	PathCustomName      = "/CustomName"
)

// Static values published for every dish.
const (
	// NotAvailable replaces version strings the dish does not report.
	NotAvailable = "N/A"

	// DefaultState is the numeric state code published for the device.
	DefaultState = 0x100

	// CustomNameSetting is the settings name of the writable custom name.
	CustomNameSetting = "CustomName"

	// MaxCustomNameLength is the longest accepted custom name, in characters.
	MaxCustomNameLength = 64
)

// Access marks whether an attribute accepts writes from the bus.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "ro"
}

// Attribute is one published path with its current value.
type Attribute struct {
	Path   string
	Value  any
	Access Access
}

// Tree is the full set of attributes published for one dish.
//
// Management and device metadata are set once during Initialize. Fix,
// Latitude, Longitude and Altitude are telemetry and change on refresh.
// CustomName is the only writable field.
type Tree struct {
	ProcessName    string
	ProcessVersion string
	Connection     string

	DeviceInstance  int
	ProductID       int
	ProductName     string
	FirmwareVersion string
	HardwareVersion string
	Connected       int
	Serial          string
	State           int

	Fix       int
	Latitude  float64
	Longitude float64
	Altitude  int

	CustomName string
}

// Attributes lists every attribute in publication order.
func (t Tree) Attributes() []Attribute {
	return []Attribute{
		{PathProcessName, t.ProcessName, ReadOnly},
		{PathProcessVersion, t.ProcessVersion, ReadOnly},
		{PathConnection, t.Connection, ReadOnly},
		{PathDeviceInstance, t.DeviceInstance, ReadOnly},
		{PathProductID, t.ProductID, ReadOnly},
		{PathProductName, t.ProductName, ReadOnly},
		{PathFirmwareVersion, t.FirmwareVersion, ReadOnly},
		{PathHardwareVersion, t.HardwareVersion, ReadOnly},
		{PathConnected, t.Connected, ReadOnly},
		{PathSerial, t.Serial, ReadOnly},
		{PathState, t.State, ReadOnly},
		{PathFix, t.Fix, ReadOnly},
		{PathLatitude, t.Latitude, ReadOnly},
		{PathLongitude, t.Longitude, ReadOnly},
		{PathAltitude, t.Altitude, ReadOnly},
		{PathCustomName, t.CustomName, ReadWrite},
	}
}

// Values returns the tree as a path → value map.
func (t Tree) Values() map[string]any {
	attrs := t.Attributes()
	values := make(map[string]any, len(attrs))
	for _, a := range attrs {
		values[a.Path] = a.Value
	}
	return values
}

// Paths returns every attribute path.
func (t Tree) Paths() []string {
	attrs := t.Attributes()
	paths := make([]string, len(attrs))
	for i, a := range attrs {
		paths[i] = a.Path
	}
	return paths
}

// versionOrNA dereferences an optional version string.
func versionOrNA(v *string) string {
	if v == nil {
		return NotAvailable
	}
	return *v
}
