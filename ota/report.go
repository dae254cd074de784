package ota

// componentReport is the per-component progress record posted to
// .u/c/<package>, encoded with the short string keys
// fw_update.c's golioth_ota_state_report builds via zcbor_tstr_put_lit:
// "s" (state), "r" (reason), "pkg" (package), and the conditional "v"
// (current version) / "t" (target version) fields gated by
// FW_REPORT_CURRENT_VERSION / FW_REPORT_TARGET_VERSION.
type componentReport struct {
	State          State  `cbor:"s"`
	Reason         Reason `cbor:"r"`
	Package        string `cbor:"pkg"`
	CurrentVersion string `cbor:"v,omitempty"`
	TargetVersion  string `cbor:"t,omitempty"`
}

// reportBackoffInitial/Max/MaxAttempts mirror fw_update.c's
// FW_REPORT_RETRIES_INITIAL_DELAY_S / FW_REPORT_BACKOFF_MAX_S /
// FW_REPORT_MAX_RETRIES: 5s doubling to 180s, 5 attempts.
const (
	reportBackoffInitialSeconds = 5
	reportBackoffMaxSeconds     = 180
	reportMaxAttempts           = 5
)
