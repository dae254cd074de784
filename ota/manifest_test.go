package ota

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// rawComponent decodes a manifest component with the literal integer keys
// original_source/src/ota.c's MANIFEST_KEY_*/COMPONENT_KEY_* constants
// define, independent of the Component struct's own tags, so a mismatch
// between the two can't hide behind a self-consistent round trip.
type rawComponent struct {
	Package string `cbor:"1,keyasint"`
	Version string `cbor:"2,keyasint"`
	Hash    []byte `cbor:"3,keyasint"`
	Size    int64  `cbor:"4,keyasint"`
	URI     string `cbor:"5,keyasint,omitempty"`
}

func TestManifestRoundTrip(t *testing.T) {
	want := Manifest{
		SequenceNumber: 7,
		Components: []Component{
			{Package: "main", Version: "1.2.3", Hash: []byte{0xde, 0xad, 0xbe, 0xef}, Size: 4096},
			{Package: "modem", Version: "0.9.0", Hash: []byte{1, 2, 3, 4}, Size: 1024, URI: "https://example.invalid/modem.bin"},
		},
	}

	data, err := cbor.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Manifest
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.SequenceNumber != want.SequenceNumber {
		t.Fatalf("SequenceNumber = %d, want %d", got.SequenceNumber, want.SequenceNumber)
	}
	if len(got.Components) != len(want.Components) {
		t.Fatalf("len(Components) = %d, want %d", len(got.Components), len(want.Components))
	}
	for i, c := range want.Components {
		g := got.Components[i]
		if g.Package != c.Package || g.Version != c.Version || g.Size != c.Size || g.URI != c.URI {
			t.Fatalf("Components[%d] = %+v, want %+v", i, g, c)
		}
		if !bytes.Equal(g.Hash, c.Hash) {
			t.Fatalf("Components[%d].Hash = %x, want %x", i, g.Hash, c.Hash)
		}
	}

	data, err = cbor.Marshal(want.Components[1])
	if err != nil {
		t.Fatalf("Marshal component: %v", err)
	}
	var raw rawComponent
	if err := cbor.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal against fixed keys: %v", err)
	}
	if raw.Package != "modem" || raw.Version != "0.9.0" || raw.Size != 1024 || raw.URI != "https://example.invalid/modem.bin" {
		t.Fatalf("decoded against original_source key numbers = %+v", raw)
	}
	if !bytes.Equal(raw.Hash, []byte{1, 2, 3, 4}) {
		t.Fatalf("Hash decoded against original_source key numbers = %x", raw.Hash)
	}
}

func TestComponentReportRoundTrip(t *testing.T) {
	want := componentReport{
		Package:        "main",
		CurrentVersion: "1.2.2",
		TargetVersion:  "1.2.3",
		State:          StateDownloading,
		Reason:         ReasonNone,
	}
	data, err := cbor.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got componentReport
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	var asMap map[string]interface{}
	if err := cbor.Unmarshal(data, &asMap); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	for _, key := range []string{"s", "r", "pkg", "v", "t"} {
		if _, ok := asMap[key]; !ok {
			t.Fatalf("report missing wire key %q: %v", key, asMap)
		}
	}
}
