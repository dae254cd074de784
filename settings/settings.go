// Package settings implements the cloud-to-device settings feature API: the
// device observes .c/ for a versioned settings map and posts per-setting
// status to .c/status, grounded on original_source/src/settings.c.
package settings

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
)

// StatusCode mirrors settings.c's golioth_settings_status_t.
type StatusCode int

const (
	StatusOK              StatusCode = 0
	StatusInvalidValue    StatusCode = 4
	StatusValueOutOfRange StatusCode = 3
	StatusKeyNotRecognized StatusCode = 2
)

// Handler validates and applies one setting's raw CBOR value, returning the
// status to report.
type Handler func(raw cbor.RawMessage) StatusCode

type doc struct {
	Version  int64                      `cbor:"version"`
	Settings map[string]cbor.RawMessage `cbor:"settings"`
}

type settingStatus struct {
	Key        string     `cbor:"key"`
	StatusCode StatusCode `cbor:"statusCode"`
}

type report struct {
	Version  int64           `cbor:"version"`
	Settings []settingStatus `cbor:"settings"`
}

// Manager dispatches inbound settings documents to registered per-key
// handlers.
type Manager struct {
	engine   *engine.Client
	handlers map[string]Handler
}

// New wraps client; call Start to begin observing.
func New(client *engine.Client) *Manager {
	return &Manager{engine: client, handlers: make(map[string]Handler)}
}

// Register installs h for key.
func (m *Manager) Register(key string, h Handler) {
	m.handlers[key] = h
}

// Start begins observing .c/ for settings documents.
func (m *Manager) Start() error {
	return m.engine.Observe(paths.Settings, "", message.AppCBOR, m.onSettings)
}

func (m *Manager) onSettings(resp *coapwire.Response, err error) {
	if err != nil {
		return
	}
	var d doc
	if err := cbor.Unmarshal(resp.Payload, &d); err != nil {
		return
	}

	rep := report{Version: d.Version}
	for key, raw := range d.Settings {
		h, ok := m.handlers[key]
		status := StatusKeyNotRecognized
		if ok {
			status = h(raw)
		}
		rep.Settings = append(rep.Settings, settingStatus{Key: key, StatusCode: status})
	}

	data, err := cbor.Marshal(rep)
	if err != nil {
		return
	}
	_ = m.engine.PostAsync(paths.Settings, "status", message.AppCBOR, data, nil)
}
