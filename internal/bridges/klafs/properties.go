package klafs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fixed device description values.
const (
	primaryGroupBlack    = 9
	sensorGroup          = 8
	aliveSignInterval    = 300
	binaryUpdateInterval = 5
	minPushInterval      = 5
	changesOnlyInterval  = 5

	modelUID       = "Klafs Sauna"
	vendorName     = "Klafs"
	deviceIconName = "klafs-sauna-16.png"
)

// readHandler renders one property for a query entry.
type readHandler func(b *Bridge, q Property, now time.Time) (Property, bool)

// writeHandler applies one property value. Called with mu held; a
// returned setting is persisted by the caller after mu is released.
type writeHandler func(b *Bridge, p Property) (*settingChange, error)

// settingChange is a setting to persist.
type settingChange struct {
	key   string
	value string
}

type propertyHandler struct {
	read  readHandler
	write writeHandler
}

func constant(v any) readHandler {
	return func(_ *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, v), true
	}
}

func absent(_ *Bridge, _ Property, _ time.Time) (Property, bool) {
	return Property{}, false
}

func empty(_ *Bridge, q Property, _ time.Time) (Property, bool) {
	return Group(q.Name), true
}

var deviceProperties = map[string]propertyHandler{
	"primaryGroup": {read: constant(primaryGroupBlack)},
	"zoneID": {
		read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
			return Prop(q.Name, b.identity.ZoneID), true
		},
		write: func(b *Bridge, p Property) (*settingChange, error) {
			zone, ok := p.Int()
			if !ok || zone < 0 || zone > 65535 {
				return nil, fmt.Errorf("zoneID: %w", ErrInvalidValueType)
			}
			return b.setZone(&b.identity.ZoneID, SettingZoneID, zone), nil
		},
	},
	"buttonInputDescriptions": {read: empty},
	"buttonInputSettings":     {read: empty},
	"outputDescription":       {read: absent},
	"outputSettings":          {read: absent},
	"channelDescriptions":     {read: absent},
	"channelSettings":         {read: absent},
	"channelStates":           {read: absent},
	"binaryInputDescriptions": {read: readBinaryInputDescriptions},
	"binaryInputSettings":     {read: readBinaryInputSettings},
	"sensorDescriptions":      {read: readSensorDescriptions},
	"sensorSettings":          {read: readSensorSettings},
	"sensorStates": {read: func(b *Bridge, q Property, now time.Time) (Property, bool) {
		return sensorStates(b.store, indexFilter(q), now), true
	}},
	"binaryInputStates": {read: func(b *Bridge, q Property, now time.Time) (Property, bool) {
		return binaryInputStates(b.store, indexFilter(q), now), true
	}},
	"deviceStates": {read: func(_ *Bridge, _ Property, _ time.Time) (Property, bool) {
		return deviceStates(), true
	}},
	"dynamicActionDescriptions": {read: readDynamicActions},
	"name": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, b.identity.Name), true
	}},
	"type":  {read: constant("vDSD")},
	"model": {read: constant("Sauna")},
	"modelFeatures": {read: func(_ *Bridge, q Property, _ time.Time) (Property, bool) {
		return Group(q.Name,
			Prop("dontcare", false),
			Prop("blink", false),
			Prop("outmode", false),
			Prop("jokerconfig", true),
		), true
	}},
	"modelUID":     {read: constant(modelUID)},
	"modelVersion": {read: constant("0")},
	"vendorId":     {read: constant("vendor: " + vendorName)},
	"vendorName":   {read: constant(vendorName)},
	"vendorGuid": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, "Klafs vDC "+b.identity.SaunaID), true
	}},
	"hardwareVersion":   {read: constant("0.0.0")},
	"hardwareModelGuid": {read: constant("")},
	"configURL":         {read: constant("")},
	"deviceIcon16":      {read: constant(icon16)},
	"deviceIcon48":      {read: constant(icon48)},
	"deviceIconName":    {read: constant(deviceIconName)},
}

var containerProperties = map[string]propertyHandler{
	"hardwareGuid": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, "sauna-id:"+b.identity.SaunaID), true
	}},
	"displayId": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, b.identity.SaunaID), true
	}},
	"vendorId":         {read: absent},
	"oemGuid":          {read: absent},
	"implementationId": {read: constant(modelUID)},
	"modelUID":         {read: constant(modelUID)},
	"modelGuid":        {read: constant(modelUID)},
	"name": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, "Klafs Sauna "+b.identity.Name), true
	}},
	"model": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, "Klafs Sauna Controller @"+b.identity.Hostname), true
	}},
	"capabilities": {read: func(_ *Bridge, q Property, _ time.Time) (Property, bool) {
		return Group(q.Name,
			Prop("metering", false),
			Prop("dynamicDefinitions", true),
		), true
	}},
	"configURL": {read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
		return Prop(q.Name, b.identity.ConfigURL), true
	}},
	"zoneID": {
		read: func(b *Bridge, q Property, _ time.Time) (Property, bool) {
			return Prop(q.Name, b.identity.DefaultZoneID), true
		},
		write: func(b *Bridge, p Property) (*settingChange, error) {
			zone, ok := p.Int()
			if !ok || zone < 0 || zone > 65535 {
				return nil, fmt.Errorf("zoneID: %w", ErrInvalidValueType)
			}
			return b.setZone(&b.identity.DefaultZoneID, SettingDefaultZoneID, zone), nil
		},
	},
}

func readBinaryInputDescriptions(b *Bridge, q Property, _ time.Time) (Property, bool) {
	out := Property{Name: q.Name}
	for i, bv := range b.store.Binaries() {
		if !bv.Active {
			continue
		}
		out.Elements = append(out.Elements, Group(strconv.Itoa(i),
			Prop("name", b.identity.Name+"-"+bv.Name),
			Prop("inputType", 1),
			Prop("inputUsage", 0),
			Prop("sensorFunction", int(bv.Function)),
			Prop("updateInterval", float64(binaryUpdateInterval)),
		))
	}
	return out, true
}

func readBinaryInputSettings(b *Bridge, q Property, _ time.Time) (Property, bool) {
	out := Property{Name: q.Name}
	for i, bv := range b.store.Binaries() {
		if !bv.Active {
			continue
		}
		out.Elements = append(out.Elements, Group(strconv.Itoa(i),
			Prop("group", sensorGroup),
			Prop("sensorFunction", int(bv.Function)),
		))
	}
	return out, true
}

func readSensorDescriptions(b *Bridge, q Property, _ time.Time) (Property, bool) {
	out := Property{Name: q.Name}
	for i, sv := range b.store.Sensors() {
		if !sv.Active {
			continue
		}
		out.Elements = append(out.Elements, Group(strconv.Itoa(i),
			Prop("name", b.identity.Name+"-"+sv.Name),
			Prop("sensorType", int(sv.Kind)),
			Prop("sensorUsage", int(sv.Usage)),
			Prop("aliveSignInterval", float64(aliveSignInterval)),
		))
	}
	return out, true
}

func readSensorSettings(b *Bridge, q Property, _ time.Time) (Property, bool) {
	out := Property{Name: q.Name}
	for i, sv := range b.store.Sensors() {
		if !sv.Active {
			continue
		}
		out.Elements = append(out.Elements, Group(strconv.Itoa(i),
			Prop("group", sensorGroup),
			Prop("minPushInterval", minPushInterval),
			Prop("changesOnlyInterval", float64(changesOnlyInterval)),
		))
	}
	return out, true
}

func readDynamicActions(_ *Bridge, q Property, _ time.Time) (Property, bool) {
	out := Property{Name: q.Name}
	for _, a := range Actions {
		id := DynamicPrefix + a.ID
		out.Elements = append(out.Elements, Group(a.ID,
			Prop("id", id),
			Prop("action", id),
			Prop("title", a.Title),
			Prop("description", a.Title),
		))
	}
	return out, true
}

// scope picks the handler table for a dsUID. The library dsUID shares the
// container table.
func (b *Bridge) scope(dsuid string) (map[string]propertyHandler, error) {
	switch {
	case strings.EqualFold(dsuid, b.identity.DeviceDSUID):
		return deviceProperties, nil
	case strings.EqualFold(dsuid, b.identity.VDCDSUID), strings.EqualFold(dsuid, b.identity.LibDSUID):
		return containerProperties, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, dsuid)
	}
}

// ReadProperties answers a property query for the container or the device.
// Unknown names are logged and skipped; so are entries without a name.
//
// Parameters:
//   - dsuid: Container, library or device dsUID
//   - query: One entry per requested property; state queries may carry
//     a slot index as the name of their first element
//
// Returns:
//   - []Property: The rendered properties in query order
//   - error: ErrUnknownDevice for a foreign dsUID
func (b *Bridge) ReadProperties(dsuid string, query []Property) ([]Property, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.scope(dsuid)
	if err != nil {
		return nil, err
	}

	now := b.now()
	out := make([]Property, 0, len(query))
	for _, q := range query {
		if q.Name == "" {
			b.logWarn("wildcard property queries are not supported", "dsuid", dsuid)
			continue
		}
		h, ok := table[q.Name]
		if !ok {
			b.logDebug("unknown property requested", "dsuid", dsuid, "name", q.Name)
			continue
		}
		if p, ok := h.read(b, q, now); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// WriteProperties applies property values for the container or the device.
// Processing stops at the first error. Values applied before the error
// stay applied and are persisted once the lock is released.
//
// Returns:
//   - error: ErrMissingData, ErrNotFound, ErrInvalidValueType or a
//     persistence error
func (b *Bridge) WriteProperties(ctx context.Context, dsuid string, props []Property) error {
	changes, err := b.applyWrites(dsuid, props)

	if b.repo != nil {
		for _, c := range changes {
			if perr := b.repo.SaveSetting(ctx, c.key, c.value); perr != nil && err == nil {
				err = fmt.Errorf("persisting %s: %w", c.key, perr)
			}
		}
	}
	return err
}

func (b *Bridge) applyWrites(dsuid string, props []Property) ([]settingChange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.scope(dsuid)
	if err != nil {
		return nil, err
	}

	var changes []settingChange
	for _, p := range props {
		if p.Name == "" {
			return changes, ErrMissingData
		}
		h, ok := table[p.Name]
		if !ok || h.write == nil {
			return changes, fmt.Errorf("%w: %s", ErrNotFound, p.Name)
		}
		c, err := h.write(b, p)
		if err != nil {
			return changes, err
		}
		if c != nil {
			changes = append(changes, *c)
		}
	}
	return changes, nil
}

// setZone stores a zone id and returns the setting to persist, or nil when
// the zone did not change.
func (b *Bridge) setZone(field *int, key string, zone int) *settingChange {
	if *field == zone {
		return nil
	}
	*field = zone
	b.logInfo("zone changed", "setting", key, "zone_id", zone)
	return &settingChange{key: key, value: strconv.Itoa(zone)}
}

// SaveScene snapshots the current appliance state into scene n.
//
// The state is refreshed first; a failed refresh is logged and the last
// known state is used. An existing scene n is overwritten, a new one is
// appended while the table has room and dropped otherwise.
func (b *Bridge) SaveScene(ctx context.Context, dsuid string, n int) error {
	if !strings.EqualFold(dsuid, b.Identity().DeviceDSUID) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, dsuid)
	}

	if b.Poll(ctx) == PollFailed {
		b.logWarn("saving scene from last known state", "scene", n)
	}

	b.mu.Lock()
	sc := b.store.State.Snapshot(n)
	slot, err := b.store.PutScene(sc)
	b.mu.Unlock()

	if errors.Is(err, ErrSceneTableFull) {
		b.logWarn("scene table full, scene not saved", "scene", n)
		return nil
	}
	b.logInfo("scene saved", "scene", n, "slot", slot, "mode", sc.Mode.String())

	if b.repo == nil {
		return nil
	}
	if err := b.repo.SaveScene(ctx, slot, sc); err != nil {
		return fmt.Errorf("persisting scene %d: %w", n, err)
	}
	return nil
}

// CallScene runs scene n on the device.
func (b *Bridge) CallScene(ctx context.Context, dsuid string, n int) error {
	if !strings.EqualFold(dsuid, b.Identity().DeviceDSUID) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, dsuid)
	}
	return b.ExecuteScene(ctx, n)
}
