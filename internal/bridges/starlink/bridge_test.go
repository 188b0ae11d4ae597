package starlink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/starlink-bridge/internal/dish"
	"github.com/nerrad567/starlink-bridge/internal/identity"
)

func initialize(t *testing.T, h *testHarness) {
	t.Helper()
	if err := h.pub.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
}

func TestNewPublisher_RequiredOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no device", func(o *Options) { o.Device = nil }},
		{"no store", func(o *Options) { o.Store = nil }},
		{"no bus", func(o *Options) { o.Bus = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			opts := Options{Device: h.device, Store: h.store, Bus: h.bus}
			tt.mutate(&opts)
			if _, err := NewPublisher(opts); err == nil {
				t.Error("NewPublisher() error = nil, want error")
			}
		})
	}
}

func TestPublisher_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.device.setFix(47.6, -122.3, 15.7)

	initialize(t, h)

	sum := sha256.Sum256([]byte("KU123456789"))
	wantID := hex.EncodeToString(sum[:])[:8]
	if h.pub.ShortID() != wantID {
		t.Errorf("ShortID() = %q, want %q", h.pub.ShortID(), wantID)
	}
	if h.pub.ServiceName() != testPrefix+"."+wantID {
		t.Errorf("ServiceName() = %q", h.pub.ServiceName())
	}
	if h.pub.State() != StateRunning {
		t.Errorf("State() = %v, want running", h.pub.State())
	}

	tests := []struct {
		path string
		want any
	}{
		{PathProcessName, "dbus-starlink"},
		{PathProcessVersion, testVersion},
		{PathConnection, "gRPC"},
		{PathDeviceInstance, float64(1)},
		{PathProductID, float64(45108)},
		{PathProductName, "Starlink"},
		{PathFirmwareVersion, "2024.10.01.mr123"},
		{PathHardwareVersion, "rev3_proto2"},
		{PathConnected, float64(1)},
		{PathSerial, "KU123456789"},
		{PathState, float64(0x100)},
		{PathFix, float64(1)},
		{PathLatitude, 47.6},
		{PathLongitude, -122.3},
		{PathAltitude, float64(15)},
		{PathCustomName, "Starlink"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := h.bus.value(t, h.topic(tt.path)); got != tt.want {
				t.Errorf("%s = %v (%T), want %v", tt.path, got, got, tt.want)
			}
		})
	}

	// Altitude is published as an integer, not 15.7.
	if raw := string(h.bus.raw(h.topic(PathAltitude))); raw != `{"value":15}` {
		t.Errorf("altitude payload = %s, want {\"value\":15}", raw)
	}

	var ann ServiceAnnouncement
	if err := json.Unmarshal(h.bus.raw("starlink/services/"+h.pub.ServiceName()), &ann); err != nil {
		t.Fatalf("service announcement: %v", err)
	}
	if ann.Status != ServiceOnline || ann.ShortID != wantID {
		t.Errorf("announcement = %+v", ann)
	}
	if len(ann.Writable) != 1 || ann.Writable[0] != PathCustomName {
		t.Errorf("Writable = %v, want [/CustomName]", ann.Writable)
	}
}

func TestPublisher_AbsentVersionsAreNA(t *testing.T) {
	h := newHarness(t)
	h.device.info = dish.DeviceInfo{ID: "KU000"}
	h.device.setNoFix(0)

	initialize(t, h)

	snap := h.pub.Snapshot()
	if snap.FirmwareVersion != NotAvailable || snap.HardwareVersion != NotAvailable {
		t.Errorf("versions = (%q, %q), want N/A", snap.FirmwareVersion, snap.HardwareVersion)
	}
}

func TestPublisher_StartupFailure(t *testing.T) {
	tests := []struct {
		name    string
		info    dish.DeviceInfo
		infoErr error
	}{
		{"transport failure", dish.DeviceInfo{}, errors.Join(dish.ErrTransport, errDishTimeout)},
		{"non-zero status", dish.DeviceInfo{Status: dish.Status{Code: 7, Message: "denied"}}, nil},
		{"missing id", dish.DeviceInfo{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.device.info = tt.info
			h.device.infoErr = tt.infoErr

			err := h.pub.Initialize(context.Background())
			if !errors.Is(err, ErrDeviceInfoUnavailable) {
				t.Fatalf("Initialize() error = %v, want ErrDeviceInfoUnavailable", err)
			}
			if tt.infoErr != nil && !errors.Is(err, dish.ErrTransport) {
				t.Errorf("error %v does not wrap dish.ErrTransport", err)
			}
			if h.pub.State() != StateInitializing {
				t.Errorf("State() = %v, want initializing", h.pub.State())
			}
			if n := h.bus.publishCount(); n != 0 {
				t.Errorf("published %d messages, want 0", n)
			}
			if h.device.calls != 0 {
				t.Errorf("position polled %d times before running", h.device.calls)
			}
		})
	}
}

func TestPublisher_SettingsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.repo.failGet = errors.New("unable to open database file")

	err := h.pub.Initialize(context.Background())
	if !errors.Is(err, ErrSettingsUnavailable) {
		t.Fatalf("Initialize() error = %v, want ErrSettingsUnavailable", err)
	}
	if h.pub.State() != StateInitializing {
		t.Errorf("State() = %v, want initializing", h.pub.State())
	}
	if n := h.bus.publishCount(); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
}

func TestPublisher_RegistrationFailureClearsTree(t *testing.T) {
	h := newHarness(t)
	// Publish 1 is the settings value, 2-4 are the first attributes.
	h.bus.failAfter = 5

	err := h.pub.Initialize(context.Background())
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("Initialize() error = %v, want ErrRegistrationFailed", err)
	}
	if h.pub.State() != StateInitializing {
		t.Errorf("State() = %v, want initializing", h.pub.State())
	}

	service := h.pub.ServiceName()
	if left := h.bus.retainedWithPrefix("starlink/" + service); len(left) != 0 {
		t.Errorf("retained attribute topics left behind: %v", left)
	}
	if left := h.bus.retainedWithPrefix("starlink/services/"); len(left) != 0 {
		t.Errorf("service announcement left behind: %v", left)
	}
}

func TestPublisher_InitializeTwice(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	if err := h.pub.Initialize(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize() error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestPublisher_RefreshBeforeInitialize(t *testing.T) {
	h := newHarness(t)
	h.pub.Refresh(context.Background())

	if h.device.calls != 0 {
		t.Errorf("GetPosition called %d times before Initialize", h.device.calls)
	}
	if h.bus.publishCount() != 0 {
		t.Error("Refresh published before Initialize")
	}
}

func TestPublisher_NoFixRetainsPosition(t *testing.T) {
	h := newHarness(t)
	h.device.setFix(37.0, -122.0, 10.0)
	initialize(t, h)

	h.device.setNoFix(2)
	h.pub.Refresh(context.Background())

	snap := h.pub.Snapshot()
	if snap.Fix != 0 {
		t.Errorf("Fix = %d, want 0", snap.Fix)
	}
	if snap.Latitude != 37.0 || snap.Longitude != -122.0 || snap.Altitude != 10 {
		t.Errorf("position = (%v, %v, %v), want (37, -122, 10)", snap.Latitude, snap.Longitude, snap.Altitude)
	}
	if got := h.bus.value(t, h.topic(PathFix)); got != float64(0) {
		t.Errorf("published Fix = %v, want 0", got)
	}
	if got := h.bus.value(t, h.topic(PathLatitude)); got != 37.0 {
		t.Errorf("published Latitude = %v, want 37", got)
	}

	stats := h.pub.Stats()
	if stats.Fixes != 1 || stats.NoFix != 1 {
		t.Errorf("Stats = %+v, want 1 fix and 1 no-fix", stats)
	}
}

func TestPublisher_NoFixWithoutStatus(t *testing.T) {
	h := newHarness(t)
	h.device.setFix(1, 2, 3)
	initialize(t, h)

	h.device.setNoFix(0)
	h.pub.Refresh(context.Background())

	if snap := h.pub.Snapshot(); snap.Fix != 0 || snap.Latitude != 1 {
		t.Errorf("snapshot = %+v, want no fix with latitude kept", snap)
	}
}

func TestPublisher_TransportFailureContained(t *testing.T) {
	h := newHarness(t)
	h.device.setFix(47.6, -122.3, 15.7)
	initialize(t, h)

	before := h.pub.Snapshot()
	published := h.bus.publishCount()

	h.device.setTransportError()
	h.pub.Refresh(context.Background())

	if after := h.pub.Snapshot(); after != before {
		t.Errorf("snapshot changed after transport failure:\n got %+v\nwant %+v", after, before)
	}
	if n := h.bus.publishCount(); n != published {
		t.Errorf("published %d messages after transport failure, want 0", n-published)
	}
	stats := h.pub.Stats()
	if stats.TransportFailures != 1 || !stats.LastRefreshFailed {
		t.Errorf("Stats = %+v", stats)
	}

	h.device.setFix(47.6, -122.3, 15.7)
	h.pub.Refresh(context.Background())
	if h.pub.Stats().LastRefreshFailed {
		t.Error("LastRefreshFailed still set after successful refresh")
	}
}

func TestPublisher_RefreshIdempotent(t *testing.T) {
	h := newHarness(t)
	h.device.setFix(47.6, -122.3, 15.7)
	initialize(t, h)

	h.pub.Refresh(context.Background())
	first := h.pub.Snapshot()
	published := h.bus.publishCount()

	h.pub.Refresh(context.Background())
	second := h.pub.Snapshot()

	if first != second {
		t.Errorf("snapshots differ:\n first %+v\nsecond %+v", first, second)
	}
	if n := h.bus.publishCount(); n != published {
		t.Errorf("unchanged refresh published %d messages, want 0", n-published)
	}
}

func TestPublisher_OnlyChangedAttributesPublished(t *testing.T) {
	h := newHarness(t)
	h.device.setFix(47.6, -122.3, 15.7)
	initialize(t, h)

	published := h.bus.publishCount()
	h.device.setFix(47.7, -122.3, 15.2)
	h.pub.Refresh(context.Background())

	// Only latitude changed; altitude still truncates to 15.
	if n := h.bus.publishCount() - published; n != 1 {
		t.Errorf("published %d messages, want 1", n)
	}
}

func TestPublisher_RepublishAfterInterval(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.RepublishInterval = 20 * time.Millisecond })
	h.device.setFix(47.6, -122.3, 15.7)
	initialize(t, h)

	published := h.bus.publishCount()
	time.Sleep(50 * time.Millisecond)
	h.pub.Refresh(context.Background())

	want := len(Tree{}.Attributes())
	if n := h.bus.publishCount() - published; n != want {
		t.Errorf("republished %d attributes, want %d", n, want)
	}
}

func TestPublisher_Telemetry(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, func(o *Options) { o.Telemetry = sink })
	h.device.setFix(47.6, -122.3, 15.7)
	initialize(t, h)

	h.device.setTransportError()
	h.pub.Refresh(context.Background())
	h.device.setNoFix(1)
	h.pub.Refresh(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.calls) != 2 {
		t.Fatalf("telemetry calls = %d, want 2", len(sink.calls))
	}
	first := sink.calls[0]
	if !first.fix || first.lat != 47.6 || first.alt != 15 || first.service != h.pub.ServiceName() {
		t.Errorf("first sample = %+v", first)
	}
	if sink.calls[1].fix {
		t.Error("second sample reports a fix")
	}
}

func TestPublisher_SetCustomNameRoundTrip(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	if err := h.pub.SetCustomName(context.Background(), "  Boat  "); err != nil {
		t.Fatalf("SetCustomName() error = %v", err)
	}

	key := identity.SettingsKey(h.pub.ShortID(), CustomNameSetting)
	if v, _ := h.store.Get(key); v != "Boat" {
		t.Errorf("store value = %q, want Boat", v)
	}
	if h.repo.updateCount() != 1 {
		t.Errorf("store writes = %d, want 1", h.repo.updateCount())
	}
	if got := h.bus.value(t, h.topic(PathCustomName)); got != "Boat" {
		t.Errorf("published CustomName = %v", got)
	}
	if h.pub.Snapshot().CustomName != "Boat" {
		t.Errorf("tree CustomName = %q", h.pub.Snapshot().CustomName)
	}
}

func TestPublisher_SetCustomNameValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"simple", "Roof", false},
		{"max length", strings.Repeat("a", MaxCustomNameLength), false},
		{"multibyte at max", strings.Repeat("é", MaxCustomNameLength), false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"too long", strings.Repeat("a", MaxCustomNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			initialize(t, h)

			err := h.pub.SetCustomName(context.Background(), tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCustomName) {
					t.Fatalf("SetCustomName() error = %v, want ErrInvalidCustomName", err)
				}
				if h.repo.updateCount() != 0 {
					t.Error("invalid name was persisted")
				}
				return
			}
			if err != nil {
				t.Fatalf("SetCustomName() error = %v", err)
			}
		})
	}
}

func TestPublisher_SetCustomNameNotRunning(t *testing.T) {
	h := newHarness(t)

	if err := h.pub.SetCustomName(context.Background(), "Boat"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("SetCustomName() error = %v, want ErrNotRunning", err)
	}
}

func TestPublisher_ExternalChangeSingleWrite(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	key := identity.SettingsKey(h.pub.ShortID(), CustomNameSetting)
	if err := h.store.ExternalChange(context.Background(), key, "Van"); err != nil {
		t.Fatalf("ExternalChange() error = %v", err)
	}

	if h.repo.updateCount() != 1 {
		t.Errorf("store writes = %d, want exactly 1", h.repo.updateCount())
	}
	if h.pub.Snapshot().CustomName != "Van" {
		t.Errorf("tree CustomName = %q, want Van", h.pub.Snapshot().CustomName)
	}
	if got := h.bus.value(t, h.topic(PathCustomName)); got != "Van" {
		t.Errorf("published CustomName = %v, want Van", got)
	}
}

func TestPublisher_ExternalChangeViaSettingsTopic(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	key := identity.SettingsKey(h.pub.ShortID(), CustomNameSetting)
	h.bus.deliver(t, "starlink/settings/"+key+"/set", []byte(`{"value":"Mast"}`))

	if h.repo.updateCount() != 1 {
		t.Errorf("store writes = %d, want 1", h.repo.updateCount())
	}
	if h.pub.Snapshot().CustomName != "Mast" {
		t.Errorf("tree CustomName = %q, want Mast", h.pub.Snapshot().CustomName)
	}
}

func TestPublisher_ExternalChangeViaSettingsTopicValidated(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"blank", `{"value":"   "}`},
		{"empty", `{"value":""}`},
		{"too long", `{"value":"` + strings.Repeat("x", 500) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			initialize(t, h)

			key := identity.SettingsKey(h.pub.ShortID(), CustomNameSetting)
			h.bus.deliver(t, "starlink/settings/"+key+"/set", []byte(tt.payload))

			if h.repo.updateCount() != 0 {
				t.Errorf("store writes = %d, want 0", h.repo.updateCount())
			}
			if h.pub.Snapshot().CustomName != "Starlink" {
				t.Errorf("tree CustomName = %q, want Starlink", h.pub.Snapshot().CustomName)
			}
			if got := h.bus.value(t, "starlink/settings/"+key); got != "Starlink" {
				t.Errorf("retained setting = %v, want Starlink", got)
			}
		})
	}
}

func TestPublisher_ExternalChangeViaSettingsTopicTrimmed(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	key := identity.SettingsKey(h.pub.ShortID(), CustomNameSetting)
	h.bus.deliver(t, "starlink/settings/"+key+"/set", []byte(`{"value":"  Mast  "}`))

	if h.pub.Snapshot().CustomName != "Mast" {
		t.Errorf("tree CustomName = %q, want Mast", h.pub.Snapshot().CustomName)
	}
	if v, _ := h.store.Get(key); v != "Mast" {
		t.Errorf("stored value = %q, want Mast", v)
	}
}

func TestPublisher_BusWriteRunsOnExecutor(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	h.bus.deliver(t, h.topic(PathCustomName)+"/set", []byte(`{"value":"Deck"}`))
	if h.pub.Snapshot().CustomName != "Starlink" {
		t.Fatal("write applied before the executor ran")
	}

	h.exec.drain()
	if h.pub.Snapshot().CustomName != "Deck" {
		t.Errorf("CustomName = %q, want Deck", h.pub.Snapshot().CustomName)
	}
	if h.repo.updateCount() != 1 {
		t.Errorf("store writes = %d, want 1", h.repo.updateCount())
	}
}

func TestPublisher_BusWriteInvalid(t *testing.T) {
	h := newHarness(t)
	initialize(t, h)

	h.bus.deliver(t, h.topic(PathCustomName)+"/set", []byte(`{"value":""}`))
	h.bus.deliver(t, h.topic(PathCustomName)+"/set", []byte(`{"value":7}`))
	h.exec.drain()

	if h.repo.updateCount() != 0 {
		t.Errorf("store writes = %d, want 0", h.repo.updateCount())
	}
}

func TestPublisher_Close(t *testing.T) {
	h := newHarness(t)
	if err := h.pub.Close(); err != nil {
		t.Fatalf("Close() before Initialize error = %v", err)
	}

	initialize(t, h)
	if err := h.pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var ann ServiceAnnouncement
	if err := json.Unmarshal(h.bus.raw("starlink/services/"+h.pub.ServiceName()), &ann); err != nil {
		t.Fatalf("service announcement: %v", err)
	}
	if ann.Status != ServiceOffline {
		t.Errorf("Status = %q, want offline", ann.Status)
	}
}

func TestState_String(t *testing.T) {
	if StateInitializing.String() != "initializing" || StateRunning.String() != "running" {
		t.Error("unexpected state names")
	}
	if State(9).String() != "state(9)" {
		t.Errorf("State(9).String() = %q", State(9).String())
	}
}
