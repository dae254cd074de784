// Package lightdb implements the LightDB state feature API (path prefix
// .d/), a thin encoder over internal/engine per spec.md §4.H, grounded on
// original_source/src/golioth_lightdb.c's Set*/Get* pairing of sync and
// async calls and JSON-by-default, CBOR-on-request payload handling
// (spec.md §6: "LightDB defaults to JSON").
package lightdb

import (
	"context"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
	"github.com/edgefleet/coap-sdk/status"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const prefix = paths.LightDBState

// DB is a LightDB state handle bound to a connected engine client.
type DB struct {
	engine *engine.Client
}

// New wraps client for LightDB state access.
func New(client *engine.Client) *DB { return &DB{engine: client} }

// SetInt writes an integer value to path, encoded as a JSON scalar per
// golioth_lightdb.c's golioth_lightdb_set_int_sync.
func (d *DB) SetInt(ctx context.Context, path string, value int) error {
	_, err := d.engine.Post(ctx, prefix, path, message.AppJSON, []byte(strconv.Itoa(value)))
	return err
}

// GetInt reads an integer value from path.
func (d *DB) GetInt(ctx context.Context, path string) (int, error) {
	resp, err := d.engine.Get(ctx, prefix, path, message.AppJSON)
	if err != nil {
		return 0, err
	}
	if len(resp.Payload) == 0 {
		return 0, status.New(status.Null, prefix+path)
	}
	return strconv.Atoi(string(resp.Payload))
}

// SetJSON writes an arbitrary JSON-marshalable value to path.
func (d *DB) SetJSON(ctx context.Context, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = d.engine.Post(ctx, prefix, path, message.AppJSON, data)
	return err
}

// SetCBOR writes an arbitrary CBOR-marshalable value to path.
func (d *DB) SetCBOR(ctx context.Context, path string, value interface{}) error {
	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}
	_, err = d.engine.Post(ctx, prefix, path, message.AppCBOR, data)
	return err
}

// Get reads the raw payload and content format at path, letting the caller
// decode JSON or CBOR itself. A successful response with no payload - the
// server's answer to a deleted or never-set path - surfaces as a Null
// status error rather than an empty success, per spec.md §8's
// delete(path); get(path) -> NullPayload law.
func (d *DB) Get(ctx context.Context, path string) (*coapwire.Response, error) {
	resp, err := d.engine.Get(ctx, prefix, path, 0)
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) == 0 {
		return nil, status.New(status.Null, prefix+path)
	}
	return resp, nil
}

// Delete removes the value at path.
func (d *DB) Delete(ctx context.Context, path string) error {
	_, err := d.engine.Delete(ctx, prefix, path)
	return err
}

// GetJSONField reads the JSON document at path and extracts field (a gjson
// dotted path, e.g. "config.interval") without decoding the whole document
// into a Go value.
func (d *DB) GetJSONField(ctx context.Context, path, field string) (gjson.Result, error) {
	resp, err := d.engine.Get(ctx, prefix, path, message.AppJSON)
	if err != nil {
		return gjson.Result{}, err
	}
	if len(resp.Payload) == 0 {
		return gjson.Result{}, status.New(status.Null, prefix+path)
	}
	return gjson.GetBytes(resp.Payload, field), nil
}

// SetJSONField patches a single field of the JSON document at path using
// sjson, round-tripping the existing document through a Get so siblings of
// field are preserved. A path with no document yet starts from an empty
// object instead of surfacing Null, since writing a field is how one is
// first created.
func (d *DB) SetJSONField(ctx context.Context, path, field string, value interface{}) error {
	resp, err := d.engine.Get(ctx, prefix, path, message.AppJSON)
	if err != nil {
		return err
	}
	existing := resp.Payload
	if len(existing) == 0 {
		existing = []byte("{}")
	}
	patched, err := sjson.SetBytes(existing, field, value)
	if err != nil {
		return err
	}
	_, err = d.engine.Post(ctx, prefix, path, message.AppJSON, patched)
	return err
}

// SetIntAsync is the fire-and-forget counterpart of SetInt.
func (d *DB) SetIntAsync(path string, value int, onDone coapwire.ResponseFunc) error {
	return d.engine.PostAsync(prefix, path, message.AppJSON, []byte(strconv.Itoa(value)), onDone)
}

// SetJSONAsync is the fire-and-forget counterpart of SetJSON.
func (d *DB) SetJSONAsync(path string, value interface{}, onDone coapwire.ResponseFunc) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return d.engine.PostAsync(prefix, path, message.AppJSON, data, onDone)
}
