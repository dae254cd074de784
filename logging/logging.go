// Package logging implements the device-to-cloud logging feature API,
// grounded on original_source/src/golioth_log.c (and src/log.c's log-record
// assembly): each log record is a small CBOR map posted to the stream path
// configured for logs, defaulting to "logs" per golioth_log.c's
// CONFIG_GOLIOTH_LOG_STREAM_NAME default.
package logging

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
)

// Level mirrors golioth_log.c's severity enumeration.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

type record struct {
	Level  string `cbor:"level"`
	Module string `cbor:"module"`
	Msg    string `cbor:"msg"`
}

// Logger posts structured log records to the cloud over CoAP, independent
// of logx.Logger (which is the SDK's own local diagnostic logging).
type Logger struct {
	engine     *engine.Client
	streamName string
}

// New wraps client, posting to the default "logs" stream name.
func New(client *engine.Client) *Logger {
	return &Logger{engine: client, streamName: "logs"}
}

// WithStreamName overrides the default stream name.
func (l *Logger) WithStreamName(name string) *Logger {
	return &Logger{engine: l.engine, streamName: name}
}

// Log posts one record at the given level, module and message.
func (l *Logger) Log(ctx context.Context, level Level, module, msg string) error {
	data, err := cbor.Marshal(record{Level: level.String(), Module: module, Msg: msg})
	if err != nil {
		return err
	}
	_, err = l.engine.Post(ctx, paths.LightDBStream, l.streamName, message.AppCBOR, data)
	return err
}
