package klafs

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// dsUIDLen is the length of a dsUID in hex characters (17 bytes).
const dsUIDLen = 34

// deviceNamespace scopes the name-based device dsUIDs.
var deviceNamespace = uuid.NameSpaceOID

// FromUUID renders a UUID as a dsUID: the 16 UUID bytes followed by a
// zero sub-device byte, upper-case hex.
func FromUUID(u uuid.UUID) string {
	return strings.ToUpper(hex.EncodeToString(u[:])) + "00"
}

// NewRandomDSUID generates a time-based dsUID for the container or the
// library. Callers persist it; it must stay stable across restarts.
func NewRandomDSUID() (string, error) {
	u, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("generating dsUID: %w", err)
	}
	return FromUUID(u), nil
}

// DeviceDSUID derives the device dsUID from the appliance id. The same id
// always yields the same dsUID.
func DeviceDSUID(saunaID string) string {
	return FromUUID(uuid.NewMD5(deviceNamespace, []byte(saunaID)))
}

// ValidDSUID reports whether s is 34 hex characters.
func ValidDSUID(s string) bool {
	if len(s) != dsUIDLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
