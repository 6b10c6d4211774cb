package mqtt

import (
	"encoding/json"
	"time"
)

// presencePrefix is the root of the per-process presence topics.
const presencePrefix = "vdc/bridges"

// Presence states and reasons carried on the presence topic.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonConnection = "unexpected_disconnect"
)

// Presence is the retained message describing whether a bridge process
// is attached to the broker.
type Presence struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceTopic returns the retained presence topic of one bridge process.
// It doubles as the Last Will topic.
//
// Example: vdc/bridges/klafs-vdc/status
func PresenceTopic(clientID string) string {
	return presencePrefix + "/" + clientID + "/status"
}

// presencePayload encodes a presence message stamped with now.
func presencePayload(clientID, status, reason string, now time.Time) []byte {
	//nolint:errcheck // a struct of strings and a time always encodes
	b, _ := json.Marshal(Presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: now.UTC().Truncate(time.Second),
	})
	return b
}
