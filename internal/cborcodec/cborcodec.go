// Package cborcodec converts between arbitrary JSON and CBOR documents, the
// payload formats lightdb accepts interchangeably for a given path
// (spec.md's LightDB module: "accepts JSON or CBOR on write, decided by the
// caller's content format").
//
// Grounded on matrix-org/lb's cbor.go CBORCodec: the same
// reflect-driven tree walk (jsonInterfaceToCBORInterface /
// cborInterfaceToJSONInterface / num) that turns json.Unmarshal's
// map[string]interface{} into CBOR-friendly map[interface{}]interface{},
// and back. Dropped: the enum string<->int key remap table (Matrix path
// compression has no equivalent here, every lightdb key is caller-defined)
// and the gomatrixserverlib canonical-JSON signing mode (lightdb documents
// are not signed Matrix events).
package cborcodec

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONToCBOR decodes a single JSON document and re-encodes it as CBOR.
func JSONToCBOR(data []byte) ([]byte, error) {
	var intermediate interface{}
	if err := json.Unmarshal(data, &intermediate); err != nil {
		return nil, fmt.Errorf("cborcodec: unmarshal json: %w", err)
	}
	return cbor.Marshal(jsonToCBORTree(intermediate))
}

// CBORToJSON decodes a single CBOR document and re-encodes it as JSON.
func CBORToJSON(data []byte) ([]byte, error) {
	var intermediate interface{}
	if err := cbor.Unmarshal(data, &intermediate); err != nil {
		return nil, fmt.Errorf("cborcodec: unmarshal cbor: %w", err)
	}
	return json.Marshal(cborToJSONTree(intermediate))
}

// jsonToCBORTree walks a json.Unmarshal tree (bool, float64, string,
// []interface{}, map[string]interface{}, nil) and returns the equivalent
// tree shape cbor.Marshal expects, promoting map[string]interface{} to
// map[interface{}]interface{} since CBOR permits non-string map keys.
func jsonToCBORTree(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch t := reflect.ValueOf(v).Type().Kind(); t {
	case reflect.Slice:
		arr := v.([]interface{})
		for i, el := range arr {
			arr[i] = jsonToCBORTree(el)
		}
		return arr
	case reflect.Map:
		m := v.(map[string]interface{})
		result := make(map[interface{}]interface{}, len(m))
		for k, val := range m {
			result[k] = jsonToCBORTree(val)
		}
		return result
	default:
		return v
	}
}

// cborToJSONTree is the inverse walk: CBOR's map[interface{}]interface{} is
// flattened back to map[string]interface{}, since JSON permits only string
// keys. Non-string, non-numeric keys are dropped rather than panicking, the
// same permissive behavior as the teacher's cborInterfaceToJSONInterface.
func cborToJSONTree(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch reflect.ValueOf(v).Type().Kind() {
	case reflect.Slice:
		arr := v.([]interface{})
		for i, el := range arr {
			arr[i] = cborToJSONTree(el)
		}
		return arr
	case reflect.Map:
		m := v.(map[interface{}]interface{})
		result := make(map[string]interface{}, len(m))
		var strKeys []string
		for k := range m {
			if ks, ok := k.(string); ok {
				strKeys = append(strKeys, ks)
			}
		}
		sort.Strings(strKeys)
		for _, k := range strKeys {
			result[k] = cborToJSONTree(m[k])
		}
		for k, val := range m {
			if ks, ok := numKey(k); ok {
				result[ks] = cborToJSONTree(val)
			}
		}
		return result
	default:
		return v
	}
}

// numKey stringifies an integer-typed CBOR map key so it survives the
// round trip to JSON, which has no integer key concept.
func numKey(k interface{}) (string, bool) {
	switch n := k.(type) {
	case uint64:
		return fmt.Sprintf("%d", n), true
	case int64:
		return fmt.Sprintf("%d", n), true
	case int:
		return fmt.Sprintf("%d", n), true
	default:
		return "", false
	}
}
