// Package settings persists the bridge's user-configurable values.
//
// A Store keeps one record per key in SQLite, seeded with a default the
// first time the key is loaded. Values are mirrored retained onto the bus
// under <prefix>/settings/<key>, and a write to <prefix>/settings/<key>/set
// is treated as a change made outside the process.
//
// Two write paths exist and must not be confused:
//   - Set is a write from inside the process. It persists and republishes
//     but never calls change handlers.
//   - ExternalChange is a write from outside. It persists, republishes and
//     then calls the handlers registered with OnChange.
//
// A handler mirroring an external change must not call Set for the same
// value; the Store already holds it.
package settings
