// Package location implements the network-based location feature API:
// Wi-Fi/cellular scan results are posted to .l/v1/net and the cloud
// resolves them to coordinates, grounded on original_source/src/net_info.c
// and src/location.c, with scan-result shapes supplemented from
// net_info_wifi.c and net_info_cellular.c since spec.md's table names only
// the feature, not its payload.
package location

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
)

// WiFiScanResult is one access point observed during a scan, the wire shape
// of net_info_wifi.c's AP entry.
type WiFiScanResult struct {
	MAC  string `cbor:"mac"`
	RSSI int    `cbor:"rssi"`
	SSID string `cbor:"ssid,omitempty"`
}

// CellularScanResult is one cell tower observed during a scan, the wire
// shape of net_info_cellular.c's cell entry.
type CellularScanResult struct {
	MCC  int `cbor:"mcc"`
	MNC  int `cbor:"mnc"`
	LAC  int `cbor:"lac"`
	CID  int `cbor:"cid"`
	RSSI int `cbor:"rssi"`
}

type netInfo struct {
	WiFi     []WiFiScanResult     `cbor:"wifi,omitempty"`
	Cellular []CellularScanResult `cbor:"cell,omitempty"`
}

// Coordinates is the resolved position returned by the cloud.
type Coordinates struct {
	Latitude  float64 `cbor:"lat"`
	Longitude float64 `cbor:"lng"`
}

// Resolver posts network scan results and retrieves resolved coordinates.
type Resolver struct {
	engine *engine.Client
}

// New wraps client for location resolution.
func New(client *engine.Client) *Resolver {
	return &Resolver{engine: client}
}

// ResolveWiFi posts a set of Wi-Fi scan results and returns the coordinates
// the cloud resolves them to.
func (r *Resolver) ResolveWiFi(ctx context.Context, scans []WiFiScanResult) (*Coordinates, error) {
	return r.resolve(ctx, netInfo{WiFi: scans})
}

// ResolveCellular posts a set of cell tower scan results.
func (r *Resolver) ResolveCellular(ctx context.Context, scans []CellularScanResult) (*Coordinates, error) {
	return r.resolve(ctx, netInfo{Cellular: scans})
}

func (r *Resolver) resolve(ctx context.Context, info netInfo) (*Coordinates, error) {
	data, err := cbor.Marshal(info)
	if err != nil {
		return nil, err
	}
	resp, err := r.engine.Post(ctx, paths.Logging, "v1/net", message.AppCBOR, data)
	if err != nil {
		return nil, err
	}
	var coords Coordinates
	if err := cbor.Unmarshal(resp.Payload, &coords); err != nil {
		return nil, err
	}
	return &coords, nil
}
