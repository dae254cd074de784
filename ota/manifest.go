// Package ota implements Component G, the over-the-air firmware update
// state machine of spec.md §4.G, supplemented with the pending-verify boot
// check, per-component backoff, blockwise resume and report-resilience
// semantics of original_source/src/fw_update.c.
package ota

// Component describes one updatable firmware component inside a manifest,
// the wire shape of original_source/src/fw_update.c's manifest parsing,
// encoded with fixed integer keys (golioth_fw_update.h's manifest is a CBOR
// map of small integer keys, not named fields) rather than
// matrix-org/lb's generic map[interface{}]interface{} tree, since this
// shape is known at compile time.
type Component struct {
	Package    string `cbor:"1,keyasint"`
	Version    string `cbor:"2,keyasint"`
	Hash       []byte `cbor:"3,keyasint"`
	Size       int64  `cbor:"4,keyasint"`
	URI        string `cbor:"5,keyasint,omitempty"`
	Bootloader string `cbor:"6,keyasint,omitempty"`
	// Compressed mirrors golioth_ota_component_t's is_compressed field for
	// data-model fidelity, but original_source/src/ota.c never encodes or
	// decodes a corresponding manifest key, so this is excluded from the
	// wire form too.
	Compressed bool `cbor:"-"`
}

// Manifest is the document observed at .u/desired.
type Manifest struct {
	SequenceNumber int64       `cbor:"1,keyasint"`
	Components     []Component `cbor:"3,keyasint"`
}

// State is a component's update-progress code, reported back at
// .u/c/<package>, per fw_update.c's golioth_ota_state_t.
type State int

const (
	StateIdle State = iota
	StateDownloading
	StateDownloaded
	StateUpdating
)

// Reason is the outcome code accompanying a terminal report.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonFirmwareUpdateFailed
	ReasonInvalidState
	ReasonIntegrityCheckFailure
	ReasonDownloadFailure
	ReasonCancelled
	// ReasonUpdatedSuccessfully accompanies the state=Updating report posted
	// once a pending-verify boot is confirmed (checkPendingVerify), per
	// fw_update.c's FIRMWARE_UPDATED_SUCCESSFULLY.
	ReasonUpdatedSuccessfully
)
