package cloud

import (
	"crypto/sha1" //nolint:gosec // only used to derive short, stable names
	"encoding/hex"
)

const (
	stableIDPrefix = "cvuv-"
	stableIDLength = 6
)

// StableID derives the device name used on the controller from the owning
// VM's resource ID. The same ID always yields the same name.
func StableID(vmResourceID string) string {
	sum := sha1.Sum([]byte(vmResourceID)) //nolint:gosec // see import
	return stableIDPrefix + hex.EncodeToString(sum[:])[:stableIDLength]
}
