package klafs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func findProp(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

func TestReadProperties_Device(t *testing.T) {
	h := newTestHarness(t)

	query := []Property{
		{Name: "primaryGroup"},
		{Name: "zoneID"},
		{Name: "name"},
		{Name: "modelUID"},
		{Name: "outputDescription"},
		{Name: "buttonInputDescriptions"},
		{Name: "sensorDescriptions"},
		{Name: "binaryInputDescriptions"},
		{Name: "dynamicActionDescriptions"},
		{Name: "vendorGuid"},
		{Name: "doesNotExist"},
		{Name: ""},
	}
	props, err := h.bridge.ReadProperties(testDeviceDSUID, query)
	if err != nil {
		t.Fatalf("ReadProperties() error = %v", err)
	}

	if _, ok := findProp(props, "outputDescription"); ok {
		t.Error("outputDescription should be absent")
	}
	if _, ok := findProp(props, "doesNotExist"); ok {
		t.Error("unknown property should be skipped")
	}

	checks := map[string]any{
		"primaryGroup": primaryGroupBlack,
		"zoneID":       DefaultZoneID,
		"name":         "Garden",
		"modelUID":     "Klafs Sauna",
		"vendorGuid":   "Klafs vDC sauna-42",
	}
	for name, want := range checks {
		p, ok := findProp(props, name)
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if p.Value != want {
			t.Errorf("%s = %v, want %v", name, p.Value, want)
		}
	}

	if p, _ := findProp(props, "buttonInputDescriptions"); len(p.Elements) != 0 {
		t.Errorf("buttonInputDescriptions = %+v, want empty", p)
	}

	sd, _ := findProp(props, "sensorDescriptions")
	if len(sd.Elements) != 2 {
		t.Fatalf("sensorDescriptions has %d entries, want 2", len(sd.Elements))
	}
	if n, _ := sd.Elements[1].Element("name"); n.Value != "Garden-T1" {
		t.Errorf("sensor 1 name = %v, want Garden-T1", n.Value)
	}

	da, _ := findProp(props, "dynamicActionDescriptions")
	if len(da.Elements) != len(Actions) {
		t.Fatalf("dynamicActionDescriptions has %d entries", len(da.Elements))
	}
	first := da.Elements[0]
	if id, _ := first.Element("id"); first.Name != "ActTurnOn" || id.Value != "dynamic.ActTurnOn" {
		t.Errorf("first action = %+v", first)
	}
}

func TestReadProperties_Container(t *testing.T) {
	h := newTestHarness(t)

	for _, dsuid := range []string{testVDCDSUID, testLibDSUID} {
		props, err := h.bridge.ReadProperties(dsuid, []Property{
			{Name: "hardwareGuid"},
			{Name: "model"},
			{Name: "vendorId"},
			{Name: "capabilities"},
			{Name: "configURL"},
		})
		if err != nil {
			t.Fatalf("ReadProperties(%s) error = %v", dsuid, err)
		}
		if p, _ := findProp(props, "hardwareGuid"); p.Value != "sauna-id:sauna-42" {
			t.Errorf("hardwareGuid = %v", p.Value)
		}
		if p, _ := findProp(props, "model"); p.Value != "Klafs Sauna Controller @pi" {
			t.Errorf("model = %v", p.Value)
		}
		if _, ok := findProp(props, "vendorId"); ok {
			t.Error("container vendorId should be absent")
		}
		caps, _ := findProp(props, "capabilities")
		if dd, _ := caps.Element("dynamicDefinitions"); dd.Value != true {
			t.Errorf("capabilities = %+v", caps)
		}
		if p, _ := findProp(props, "configURL"); p.Value != "http://pi:8090" {
			t.Errorf("configURL = %v", p.Value)
		}
	}
}

func TestReadProperties_UnknownDevice(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.bridge.ReadProperties("DEADBEEF", []Property{{Name: "name"}})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("error = %v, want ErrUnknownDevice", err)
	}
}

func TestReadProperties_StateIndexFilter(t *testing.T) {
	h := newTestHarness(t)
	h.cloud.setStatus(map[string]any{"currentTemperature": float64(60), "T1": float64(70)})
	h.bridge.Poll(context.Background())
	h.clock.Advance(42 * time.Second)

	props, err := h.bridge.ReadProperties(testDeviceDSUID, []Property{
		{Name: "sensorStates", Elements: []Property{{Name: "1"}}},
		{Name: "binaryInputStates"},
	})
	if err != nil {
		t.Fatalf("ReadProperties() error = %v", err)
	}

	ss, _ := findProp(props, "sensorStates")
	if len(ss.Elements) != 1 || ss.Elements[0].Name != "1" {
		t.Fatalf("sensorStates = %+v, want only slot 1", ss)
	}
	if v, _ := ss.Elements[0].Element("value"); v.Value != float64(70) {
		t.Errorf("slot 1 value = %v, want 70", v.Value)
	}
	if age, _ := ss.Elements[0].Element("age"); age.Value != int64(42) {
		t.Errorf("slot 1 age = %v, want 42", age.Value)
	}

	bs, _ := findProp(props, "binaryInputStates")
	if len(bs.Elements) != 2 {
		t.Errorf("binaryInputStates has %d entries, want 2", len(bs.Elements))
	}
}

func TestWriteProperties_ZoneID(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.bridge.WriteProperties(ctx, testDeviceDSUID, []Property{Prop("zoneID", float64(12))}); err != nil {
			t.Fatalf("WriteProperties() error = %v", err)
		}
	}
	if h.repo.writes != 1 {
		t.Errorf("persisted %d times, want 1", h.repo.writes)
	}
	if h.repo.settings[SettingZoneID] != "12" {
		t.Errorf("zone_id setting = %q", h.repo.settings[SettingZoneID])
	}
	if got := h.bridge.Identity().ZoneID; got != 12 {
		t.Errorf("ZoneID = %d, want 12", got)
	}

	if err := h.bridge.WriteProperties(ctx, testVDCDSUID, []Property{Prop("zoneID", float64(3))}); err != nil {
		t.Fatalf("container WriteProperties() error = %v", err)
	}
	if h.repo.settings[SettingDefaultZoneID] != "3" {
		t.Errorf("default_zone_id setting = %q", h.repo.settings[SettingDefaultZoneID])
	}
}

func TestWriteProperties_PersistsOutsideLock(t *testing.T) {
	h := newTestHarness(t)

	lockFree := false
	h.repo.onSaveSetting = func() {
		if h.bridge.mu.TryLock() {
			lockFree = true
			h.bridge.mu.Unlock()
		}
	}

	if err := h.bridge.WriteProperties(context.Background(), testDeviceDSUID, []Property{Prop("zoneID", float64(7))}); err != nil {
		t.Fatalf("WriteProperties() error = %v", err)
	}
	if h.repo.writes != 1 {
		t.Fatalf("persisted %d times, want 1", h.repo.writes)
	}
	if !lockFree {
		t.Error("bridge lock held while persisting the zone")
	}
}

func TestWriteProperties_KeepsEarlierValuesOnError(t *testing.T) {
	h := newTestHarness(t)

	err := h.bridge.WriteProperties(context.Background(), testDeviceDSUID, []Property{
		Prop("zoneID", float64(9)),
		Prop("colour", "red"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrNotFound)
	}
	if got := h.bridge.Identity().ZoneID; got != 9 {
		t.Errorf("ZoneID = %d, want 9", got)
	}
	if h.repo.settings[SettingZoneID] != "9" {
		t.Errorf("zone_id setting = %q, want 9", h.repo.settings[SettingZoneID])
	}
}

func TestWriteProperties_Errors(t *testing.T) {
	tests := []struct {
		name    string
		props   []Property
		wantErr error
	}{
		{"missing name", []Property{{Value: float64(1)}}, ErrMissingData},
		{"unknown property", []Property{Prop("colour", "red")}, ErrNotFound},
		{"read-only property", []Property{Prop("name", "Other")}, ErrNotFound},
		{"string zone", []Property{Prop("zoneID", "12")}, ErrInvalidValueType},
		{"fractional zone", []Property{Prop("zoneID", 1.5)}, ErrInvalidValueType},
		{"zone out of range", []Property{Prop("zoneID", float64(70000))}, ErrInvalidValueType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			err := h.bridge.WriteProperties(context.Background(), testDeviceDSUID, tt.props)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if h.repo.writes != 0 {
				t.Error("nothing should be persisted")
			}
		})
	}
}

func TestSaveScene_ThenCallSceneReproducesIt(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.cloud.setStatus(map[string]any{
		"isPoweredOn":                 true,
		"sanariumSelected":            true,
		"selectedSanariumTemperature": float64(52),
		"selectedHumLevel":            float64(6),
		"selectedIrLevel":             float64(0),
	})
	if err := h.bridge.SaveScene(ctx, testDeviceDSUID, 14); err != nil {
		t.Fatalf("SaveScene() error = %v", err)
	}

	saved, ok := h.repo.scenes[14]
	if !ok || h.repo.slots[14] != 0 {
		t.Fatalf("scene 14 not persisted in slot 0: %+v", h.repo.slots)
	}
	if saved.Mode != ModeSanarium || saved.SanariumTemperature != 52 {
		t.Errorf("saved scene = %+v", saved)
	}

	h.cloud.reset()
	if err := h.bridge.CallScene(ctx, testDeviceDSUID, 14); err != nil {
		t.Fatalf("CallScene() error = %v", err)
	}
	want := []string{"SetMode(2)", "FavoriteSelected(52,6,0)", "StartCabin"}
	if got := h.cloud.commands(); !equalStrings(got, want) {
		t.Errorf("cloud calls = %v, want %v", got, want)
	}
}

func TestSaveScene_FailedRefreshUsesLastState(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.cloud.setStatus(map[string]any{"isPoweredOn": true, "selectedSaunaTemperature": float64(88)})
	h.bridge.Poll(ctx)
	h.cloud.statusErr = errors.New("timeout")

	if err := h.bridge.SaveScene(ctx, testDeviceDSUID, 2); err != nil {
		t.Fatalf("SaveScene() error = %v", err)
	}
	sc := h.repo.scenes[2]
	if !sc.IsPoweredOn || sc.SaunaTemperature != 88 {
		t.Errorf("saved scene = %+v, want last known state", sc)
	}
}

func TestSaveScene_FullTableDropsSilently(t *testing.T) {
	scenes := make([]Scene, MaxScenes)
	for i := range scenes {
		scenes[i] = Scene{ID: i + 1}
	}
	h := newTestHarness(t, scenes...)

	if err := h.bridge.SaveScene(context.Background(), testDeviceDSUID, 500); err != nil {
		t.Errorf("SaveScene() error = %v, want nil", err)
	}
	if _, ok := h.repo.scenes[500]; ok {
		t.Error("scene should not be persisted when the table is full")
	}
	if err := h.bridge.SaveScene(context.Background(), testDeviceDSUID, 7); err != nil {
		t.Errorf("overwriting existing scene error = %v", err)
	}
	if h.repo.slots[7] != 6 {
		t.Errorf("scene 7 slot = %d, want 6", h.repo.slots[7])
	}
}

func TestSceneRequests_ForeignDSUID(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	if err := h.bridge.SaveScene(ctx, testVDCDSUID, 1); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SaveScene() error = %v, want ErrUnknownDevice", err)
	}
	if err := h.bridge.CallScene(ctx, testVDCDSUID, 1); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("CallScene() error = %v, want ErrUnknownDevice", err)
	}
}
