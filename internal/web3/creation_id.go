package web3

import (
	"encoding/hex"
	"strings"
)

// CreationKey normalizes a deployment id into the stable token correlated
// through on-chain logs: the dash-stripped UUID hex, which is exactly 32
// characters and therefore fills a bytes32 without truncation.
func CreationKey(deploymentID string) string {
	return strings.ReplaceAll(deploymentID, "-", "")
}

// CreationID packs a creation key into the bytes32 the factory call
// carries. Keys shorter than 32 bytes are zero-padded at the tail.
func CreationID(key string) [32]byte {
	var id [32]byte
	copy(id[:], key)
	return id
}

// CreationIDHex renders a creation id as the 0x-prefixed hex string stored
// in the prepared transaction parameters.
func CreationIDHex(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// DecodeCreationID recovers the creation key from a bytes32 decoded out of
// an on-chain log, dropping the zero padding.
func DecodeCreationID(id [32]byte) string {
	return strings.TrimRight(string(id[:]), "\x00")
}
