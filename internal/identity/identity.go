// Package identity derives the stable short identifier that namespaces a
// dish's published service and persisted settings.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortIDLength is the number of hex characters kept from the digest.
const ShortIDLength = 8

// Resolve returns the first ShortIDLength hex characters of the SHA-256
// digest of rawID. The same input always yields the same id.
func Resolve(rawID string) string {
	sum := sha256.Sum256([]byte(rawID))
	return hex.EncodeToString(sum[:])[:ShortIDLength]
}

// ServiceName returns the bus service name "<prefix>.<shortID>".
func ServiceName(prefix, shortID string) string {
	return prefix + "." + shortID
}

// SettingsKey returns the persisted settings key "<shortID>/<name>".
func SettingsKey(shortID, name string) string {
	return shortID + "/" + name
}

// SettingsPath returns the descriptive settings path for a dish setting.
func SettingsPath(shortID, name string) string {
	return "/Settings/Devices/starlink_" + shortID + "/" + name
}
