package klafs

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/klafs-vdc/internal/cloud"
)

// ExecuteAction runs a catalog action as an ordered chain of cloud calls.
// The first failing step aborts the rest.
//
// Parameters:
//   - ctx: Bounds every cloud call
//   - id: Action id, case-insensitive, with or without "dynamic."
//
// Returns:
//   - error: ErrUnknownAction, ErrSecurityCheckRequired or ErrConfigChangeFailed
func (b *Bridge) ExecuteAction(ctx context.Context, id string) error {
	act, ok := LookupAction(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}
	b.logInfo("executing action", "action", act.ID)

	switch {
	case act.PowerOff:
		return b.powerOff(ctx)
	case act.PowerOn && act.Mode == 0:
		return b.powerOn(ctx)
	}

	if err := b.setMode(ctx, act.Mode); err != nil {
		return err
	}
	if !act.preset() {
		return nil
	}
	if err := b.step("ChangeTemperature", b.cloud.ChangeTemperature(ctx, act.Temperature)); err != nil {
		return err
	}
	if act.Humidity > 0 {
		if err := b.step("ChangeHumidity", b.cloud.ChangeHumidity(ctx, act.Humidity)); err != nil {
			return err
		}
	}
	if act.PowerOn {
		return b.powerOn(ctx)
	}
	return nil
}

// ExecuteScene reproduces a saved scene.
//
// A scene that was saved powered off results in exactly one power-off
// call. Otherwise the mode is set, the favourite values for that mode are
// applied and the cabin is powered on.
//
// Returns:
//   - error: ErrNotConfigured (no cloud call made), or the first step error
func (b *Bridge) ExecuteScene(ctx context.Context, id int) error {
	b.mu.Lock()
	sc, ok := b.store.Scene(id)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("scene %d: %w", id, ErrNotConfigured)
	}
	b.logInfo("executing scene", "scene", id, "powered_on", sc.IsPoweredOn, "mode", sc.Mode.String())

	if !sc.IsPoweredOn {
		return b.powerOff(ctx)
	}
	if err := b.setMode(ctx, sc.Mode); err != nil {
		return err
	}
	err := b.cloud.FavoriteSelected(ctx, sc.Temperature(), sc.HumidityLevel, sc.IRLevel)
	if err := b.step("FavoriteSelected", err); err != nil {
		return err
	}
	return b.powerOn(ctx)
}

func (b *Bridge) setMode(ctx context.Context, m Mode) error {
	return b.step("SetMode", b.cloud.SetMode(ctx, int(m)))
}

// powerOn starts the cabin, then polls immediately and pushes the binary
// inputs so the bus sees the new power state without waiting for a tick.
func (b *Bridge) powerOn(ctx context.Context) error {
	if err := b.step("StartCabin", b.cloud.StartCabin(ctx)); err != nil {
		return err
	}
	b.Poll(ctx)
	b.pushBinaryInputs()
	return nil
}

// powerOff stops the cabin, refreshes the state and pushes the binary
// inputs so the bus sees the cabin switch off right away.
func (b *Bridge) powerOff(ctx context.Context) error {
	if err := b.step("StopCabin", b.cloud.StopCabin(ctx)); err != nil {
		return err
	}
	b.Poll(ctx)
	b.pushBinaryInputs()
	return nil
}

// step maps a cloud error to the bridge's error vocabulary.
func (b *Bridge) step(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cloud.ErrSecurityCheckRequired) {
		b.logInfo("appliance requires the local security check before remote changes", "step", name)
		return fmt.Errorf("%s: %w", name, err)
	}
	b.logError("cloud call failed", err, "step", name)
	return fmt.Errorf("%s: %w: %w", name, ErrConfigChangeFailed, err)
}

// pushBinaryInputs pushes all binary input states. Runs outside the
// lifecycle ladder, so it takes the lock itself.
func (b *Bridge) pushBinaryInputs() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushBinaryInputsLocked()
}

func (b *Bridge) pushBinaryInputsLocked() {
	now := b.now()
	props := []Property{binaryInputStates(b.store, -1, now)}
	if err := b.bus.PushProperty(b.identity.DeviceDSUID, props); err != nil {
		b.logError("failed to push binary input states", err)
		return
	}
	b.store.MarkBinariesReported(now)
}

func (b *Bridge) pushSensorsLocked() {
	now := b.now()
	props := []Property{sensorStates(b.store, -1, now), deviceStates()}
	if err := b.bus.PushProperty(b.identity.DeviceDSUID, props); err != nil {
		b.logError("failed to push sensor states", err)
		return
	}
	b.store.MarkSensorsReported(now)
}
