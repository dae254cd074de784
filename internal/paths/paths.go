// Package paths centralizes the fixed CoAP path prefixes of spec.md §2:
// LightDB state (.d/), LightDB stream (.s/, also used for logs), settings
// (.c/), RPC (.rpc/), OTA (.u/), location (.l/, held in the constant named
// Logging) and the gateway "pouch" (.pouch). Unlike
// matrix-org/lb's coap_paths.go, which compresses a large, open-ended HTTP
// route table into single-byte CoAP path enums via regexp matching, this
// protocol's prefix set is small and fixed at compile time, so no
// regexp/route-table machinery is needed; only prefix join and length
// validation survive from that file's purpose.
package paths

import "fmt"

const (
	LightDBState  = ".d/"
	LightDBStream = ".s/"
	Settings      = ".c/"
	RPC           = ".rpc/"
	OTA           = ".u/"
	Logging       = ".l/"
	Pouch         = ".pouch"
)

// MaxLen is the default maximum encoded path length, mirrored from
// config.Config.MaxPathLen so packages that only need validation don't have
// to import config.
const MaxLen = 256

// Join concatenates a fixed prefix and a caller-supplied suffix the way
// coapwire.Request.FullPath does, validating the result against max.
// Callers pass config.Config.MaxPathLen as max.
func Join(prefix, suffix string, max int) (string, error) {
	full := prefix + suffix
	if len(full) > max {
		return "", fmt.Errorf("paths: %q exceeds max length %d", full, max)
	}
	return full, nil
}
