package mqtt

import "strings"

// DefaultTopicPrefix is the root of every bridge topic.
const DefaultTopicPrefix = "starlink"

// Topics builds the bridge's MQTT topic hierarchy under a configurable root.
//
//	<prefix>/system/status                      process online/offline (LWT)
//	<prefix>/services/<service>                 service announcement
//	<prefix>/<service>/<path>                   published attribute (retained)
//	<prefix>/<service>/<path>/set               write request for a writable attribute
//	<prefix>/settings/<key>                     persisted setting value (retained)
//	<prefix>/settings/<key>/set                 external settings change
//	<prefix>/health/<service>                   bridge health report
//
// Attribute paths start with "/" (e.g. "/Position/Latitude") and are
// appended to the service segment verbatim.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the process status topic used for the LWT.
//
// Example: starlink/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// Service returns the announcement topic for a published service.
//
// Example: starlink/services/com.victronenergy.gps.starlink.1a2b3c4d
func (t Topics) Service(service string) string {
	return t.root() + "/services/" + service
}

// Attribute returns the retained value topic of one published attribute.
//
// Example: starlink/com.victronenergy.gps.starlink.1a2b3c4d/Position/Latitude
func (t Topics) Attribute(service, path string) string {
	return t.root() + "/" + service + ensureLeadingSlash(path)
}

// AttributeSet returns the write topic of a writable attribute.
//
// Example: starlink/com.victronenergy.gps.starlink.1a2b3c4d/CustomName/set
func (t Topics) AttributeSet(service, path string) string {
	return t.Attribute(service, path) + "/set"
}

// Setting returns the retained value topic of a persisted setting.
//
// Example: starlink/settings/1a2b3c4d/CustomName
func (t Topics) Setting(key string) string {
	return t.root() + "/settings/" + key
}

// SettingSet returns the topic on which external settings changes arrive.
//
// Example: starlink/settings/1a2b3c4d/CustomName/set
func (t Topics) SettingSet(key string) string {
	return t.Setting(key) + "/set"
}

// Health returns the health report topic of a published service.
//
// Example: starlink/health/com.victronenergy.gps.starlink.1a2b3c4d
func (t Topics) Health(service string) string {
	return t.root() + "/health/" + service
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
