// Package blockwise implements Component E: chunked upload (Block1) and
// download (Block2) with negotiated block size, per spec.md §4.E.
//
// go-coap/v2 ships an automatic blockwise transport (net/blockwise, wired by
// matrix-org/lb's mobile/client.go via dtls.WithBlockwise(true,
// blockwise.SZX1024, 2*time.Minute)), but that mode hides per-block control
// from the caller. This spec needs the opposite: the OTA state machine must
// be able to pause a download mid-transfer, resume from a specific block
// index after a write failure, and observe SZX renegotiation directly (see
// spec.md §4.G step 3's resume-from-failed-block-index requirement). So this
// package reuses go-coap/v2/net/blockwise only for its SZX type and size
// constants - the same vocabulary matrix-org/lb configures the transport
// with - and implements the block bookkeeping itself, the way the original
// C SDK's coap_blockwise.c does (see SPEC_FULL.md's open-question
// resolution: retries restart from block 0 unless a caller-supplied cursor
// says otherwise).
package blockwise

import (
	"fmt"

	"github.com/plgd-dev/go-coap/v2/net/blockwise"
)

// SZX re-exports go-coap's block-size encoding so callers configuring this
// package and callers configuring the DTLS transport speak the same type.
type SZX = blockwise.SZX

const (
	SZX16   SZX = blockwise.SZX16
	SZX32   SZX = blockwise.SZX32
	SZX64   SZX = blockwise.SZX64
	SZX128  SZX = blockwise.SZX128
	SZX256  SZX = blockwise.SZX256
	SZX512  SZX = blockwise.SZX512
	SZX1024 SZX = blockwise.SZX1024
)

// Size returns the byte count a SZX encodes: block_size = 1 << (SZX+4), per
// the GLOSSARY.
func Size(szx SZX) int {
	return 1 << (uint(szx) + 4)
}

// SZXForSize returns the largest SZX whose size is <= want, clamped to the
// valid 16..1024 range. want need not be a power of two.
func SZXForSize(want int) SZX {
	szx := SZX16
	for s := SZX32; s <= SZX1024; s++ {
		if Size(s) > want {
			break
		}
		szx = s
	}
	return szx
}

// ErrInvalidBlockSize is returned when an intermediate block's length does
// not equal the negotiated block size, per spec.md §4.E: "Size and index
// are validated: an intermediate block whose returned length does not equal
// the negotiated block size is an invalid-block-size error."
type ErrInvalidBlockSize struct {
	Want int
	Got  int
}

func (e *ErrInvalidBlockSize) Error() string {
	return fmt.Sprintf("blockwise: invalid block size: want %d got %d", e.Want, e.Got)
}

// Download tracks the receive-side state of a single Block2 transfer.
type Download struct {
	token      []byte
	szx        SZX
	nextIndex  uint32
	negotiated bool
}

// NewDownload starts a download beginning at block 0 with the caller's
// preferred block size, and reusing token for every block of the transfer
// (spec.md: "the first block of a blockwise transfer registers its token,
// and all subsequent blocks reuse it verbatim until the transfer
// completes").
func NewDownload(token []byte, preferredSZX SZX) *Download {
	return &Download{token: token, szx: preferredSZX}
}

func (d *Download) Token() []byte  { return d.token }
func (d *Download) SZX() SZX       { return d.szx }
func (d *Download) NextIndex() uint32 { return d.nextIndex }

// Resume rewinds the cursor to resume from a caller-supplied block index,
// e.g. the OTA layer's saved cursor after a block-write failure (spec.md
// §4.G step 3, and the open question in spec.md §9 resolved in SPEC_FULL.md:
// "restart from 0 unless the OTA layer supplies a saved cursor").
func (d *Download) Resume(index uint32) {
	d.nextIndex = index
}

// OnBlock0Response adopts the server's SZX if it is smaller than what was
// requested, and renumbers the next-block index so the caller's byte offset
// stays consistent, per spec.md §4.E step 2:
//
//	next_index = (old_index + 1) * 2^(old_szx - new_szx)
//
// Must be called exactly once, after receiving the response to block 0.
func (d *Download) OnBlock0Response(serverSZX SZX, more bool) {
	oldSZX := d.szx
	if serverSZX < d.szx {
		d.szx = serverSZX
		shift := uint(oldSZX - serverSZX)
		d.nextIndex = (0 + 1) << shift
	} else {
		d.nextIndex = 1
	}
	d.negotiated = true
	if !more {
		// single-block response; nextIndex is meaningless but harmless to
		// leave advanced, callers check the is-last flag from the caller's
		// Block2 option, not from Download state.
		_ = more
	}
}

// Advance is called after every block after block 0 to move the cursor
// forward by one negotiated-size unit.
func (d *Download) Advance() {
	d.nextIndex++
}

// Validate checks that an intermediate (non-last) block's payload length
// matches the negotiated size.
func (d *Download) Validate(data []byte, isLast bool) error {
	if isLast {
		return nil
	}
	want := Size(d.szx)
	if len(data) != want {
		return &ErrInvalidBlockSize{Want: want, Got: len(data)}
	}
	return nil
}

// Upload tracks the send-side state of a single Block1 transfer.
type Upload struct {
	token     []byte
	szx       SZX
	nextIndex uint32
}

// NewUpload starts an upload with the caller's preferred block size.
func NewUpload(token []byte, preferredSZX SZX) *Upload {
	return &Upload{token: token, szx: preferredSZX}
}

func (u *Upload) Token() []byte  { return u.token }
func (u *Upload) SZX() SZX       { return u.szx }
func (u *Upload) NextIndex() uint32 { return u.nextIndex }

// Shrink reduces the block size after the server asks for a smaller SZX,
// and rewinds the index consistently so no byte already acknowledged by the
// server is resent or skipped, per spec.md §4.E: "If the server responds
// with a smaller SZX, the engine shrinks its block size and rewinds the
// block index consistently, then continues."
func (u *Upload) Shrink(serverSZX SZX) {
	if serverSZX >= u.szx {
		u.nextIndex++
		return
	}
	shift := uint(u.szx - serverSZX)
	u.nextIndex = (u.nextIndex + 1) << shift
	u.szx = serverSZX
}

// Advance moves the cursor forward by one block when the SZX did not
// change between requests.
func (u *Upload) Advance() {
	u.nextIndex++
}
