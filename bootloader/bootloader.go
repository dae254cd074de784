// Package bootloader defines the backend interface the ota state machine
// drives to stage, validate and commit firmware images, a direct Go
// translation of original_source/src/include/golioth_fw_update.h's backend
// API (supplementing spec.md §4.G's distilled description, which only names
// "hand off to bootloader" without the full hook set).
package bootloader

import "context"

// ComponentDesc identifies one updatable firmware component by its manifest
// package name and target version, mirroring the manifest fields ota.Manifest
// carries per component.
type ComponentDesc struct {
	Package string
	Version string
	Hash    []byte // expected SHA-256 of the assembled image
	Size    int64
}

// Driver is implemented by the platform-specific bootloader backend (MCUboot,
// a custom A/B partition scheme, or a test fake). All methods may block; the
// ota package calls them from its own goroutine, never from the engine
// worker.
type Driver interface {
	// IsPendingVerify reports whether the currently running image is an
	// unconfirmed candidate awaiting CancelRollback, checked once at
	// startup per spec.md §4.G step 1. When pending is true, desc names the
	// package/version of that running candidate, so a confirmed boot can be
	// reported upstream with the right component identity.
	IsPendingVerify(ctx context.Context) (pending bool, desc ComponentDesc, err error)

	// Rollback reverts to the previous known-good image and reboots; called
	// when the rollback timer expires before the device reaches "connected".
	Rollback(ctx context.Context) error

	// Reboot restarts the device into the newly staged image.
	Reboot(ctx context.Context) error

	// CancelRollback confirms the running image as good, disarming the
	// bootloader's automatic revert.
	CancelRollback(ctx context.Context) error

	// IsCandidateValid reports whether the backend already has a verified
	// image matching desc staged. When it returns true, the ota state
	// machine skips the download and only reports the component as
	// downloaded; it calls neither Validate nor ChangeBootImage for it.
	IsCandidateValid(ctx context.Context, desc ComponentDesc) (bool, error)

	// HandleBlock writes one downloaded block at the given byte offset.
	HandleBlock(ctx context.Context, desc ComponentDesc, offset int64, data []byte) error

	// PostDownload is called once after the last block of desc has been
	// written successfully, before hash validation.
	PostDownload(ctx context.Context, desc ComponentDesc) error

	// Validate checks the staged image against desc's expected hash/size.
	Validate(ctx context.Context, desc ComponentDesc) error

	// ChangeBootImage marks desc's staged image as the next boot target.
	ChangeBootImage(ctx context.Context, desc ComponentDesc) error

	// End releases any resources associated with the in-progress update,
	// called on both success and abort.
	End(ctx context.Context, desc ComponentDesc) error
}
