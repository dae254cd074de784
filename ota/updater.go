package ota

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/bootloader"
	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
	"github.com/edgefleet/coap-sdk/logx"
)

// Updater drives the OTA state machine on its own goroutine, per spec.md
// §4.G: it never runs on the engine's worker goroutine, only issues
// requests to it.
type Updater struct {
	engine *engine.Client
	driver bootloader.Driver
	cfg    config.Config
	logger logx.Logger
	prefix string

	componentBackoff map[string]*Backoff
	lastAttempted    map[string]string // package -> version last attempted

	manifests chan Manifest
	stop      chan struct{}
}

// New builds an Updater bound to client and driven by driver.
func New(client *engine.Client, driver bootloader.Driver, cfg config.Config, logger logx.Logger) *Updater {
	if logger == nil {
		logger = logx.NopLogger{}
	}
	return &Updater{
		engine:           client,
		driver:           driver,
		cfg:              cfg,
		logger:           logger,
		prefix:           "",
		componentBackoff: make(map[string]*Backoff),
		lastAttempted:    make(map[string]string),
		manifests:        make(chan Manifest, 1),
		stop:             make(chan struct{}),
	}
}

// Run performs the pending-verify boot check, then runs the steady loop
// until ctx is cancelled or Stop is called. It blocks the calling
// goroutine; callers run it with `go updater.Run(ctx)`.
func (u *Updater) Run(ctx context.Context) error {
	if err := u.checkPendingVerify(ctx); err != nil {
		u.logger.Printf("ota: pending-verify check failed: %s", err)
	}

	if err := u.engine.Observe(paths.OTA, "desired", message.AppCBOR, u.onManifestNotify); err != nil {
		u.logger.Printf("ota: observe .u/desired failed: %s", err)
	}

	var poll *time.Ticker
	var pollCh <-chan time.Time
	if u.cfg.OTAManifestPollInterval > 0 {
		poll = time.NewTicker(u.cfg.OTAManifestPollInterval)
		pollCh = poll.C
		defer poll.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.stop:
			return nil
		case m := <-u.manifests:
			u.applyManifest(ctx, m)
		case <-pollCh:
			_, _ = u.engine.Get(ctx, paths.OTA, "desired", message.AppCBOR)
		}
	}
}

// Stop ends Run's loop at the next opportunity.
func (u *Updater) Stop() {
	close(u.stop)
}

// checkPendingVerify implements spec.md §4.G step 1: if the running image
// is an unconfirmed candidate, wait up to FWUpdateRollbackTimer for the
// engine to report connected, confirming the image on success and rolling
// back on timeout.
func (u *Updater) checkPendingVerify(ctx context.Context) error {
	pending, desc, err := u.driver.IsPendingVerify(ctx)
	if err != nil || !pending {
		return err
	}

	deadline := time.NewTimer(u.cfg.FWUpdateRollbackTimer)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if u.engine.IsConnected() {
			if err := u.driver.CancelRollback(ctx); err != nil {
				return err
			}
			u.postReport(ctx, componentReport{
				Package:        desc.Package,
				CurrentVersion: desc.Version,
				State:          StateUpdating,
				Reason:         ReasonUpdatedSuccessfully,
			})
			return nil
		}
		select {
		case <-deadline.C:
			return u.driver.Rollback(ctx)
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (u *Updater) onManifestNotify(resp *coapwire.Response, err error) {
	if err != nil {
		u.logger.Printf("ota: manifest notification error: %s", err)
		return
	}
	var m Manifest
	if err := cbor.Unmarshal(resp.Payload, &m); err != nil {
		u.logger.Printf("ota: manifest decode failed: %s", err)
		return
	}
	// The channel holds at most one manifest; one still queued is older
	// than m, so it is replaced rather than kept.
	select {
	case <-u.manifests:
	default:
	}
	select {
	case u.manifests <- m:
	default:
	}
}

// applyManifest starts an update for each component (up to
// OTAMaxNumComponents) whose version differs from the version last
// attempted for that package. It does not compare against the running
// version and does not consult the component backoff: a version that was
// attempted and failed is not attempted again until a manifest names a
// different version.
func (u *Updater) applyManifest(ctx context.Context, m Manifest) {
	if len(m.Components) > u.cfg.OTAMaxNumComponents {
		m.Components = m.Components[:u.cfg.OTAMaxNumComponents]
	}

	for _, comp := range m.Components {
		if u.lastAttempted[comp.Package] == comp.Version {
			continue
		}

		if ok, err := u.driver.IsCandidateValid(ctx, toDesc(comp)); err == nil && ok {
			u.finishComponent(ctx, comp, StateDownloaded, ReasonNone)
			continue
		}

		u.lastAttempted[comp.Package] = comp.Version
		go u.updateComponent(ctx, comp)
	}
}

func (u *Updater) updateComponent(ctx context.Context, comp Component) {
	bo := u.componentBackoff[comp.Package]
	if bo == nil {
		bo = NewBackoff(componentBackoffInitial, componentBackoffMax)
		u.componentBackoff[comp.Package] = bo
	}

	u.reportComponent(ctx, comp, StateDownloading, ReasonNone)

	if err := u.downloadComponent(ctx, comp); err != nil {
		u.logger.Printf("ota: component %s download failed: %s", comp.Package, err)
		reason := ReasonDownloadFailure
		if _, ok := err.(*IntegrityError); ok {
			reason = ReasonIntegrityCheckFailure
		}
		u.reportComponent(ctx, comp, StateIdle, reason)
		time.Sleep(bo.Next())
		return
	}
	bo.Reset()

	if err := u.driver.ChangeBootImage(ctx, toDesc(comp)); err != nil {
		u.finishComponent(ctx, comp, StateIdle, ReasonFirmwareUpdateFailed)
		return
	}
	u.finishComponent(ctx, comp, StateUpdating, ReasonNone)
	_ = u.driver.End(ctx, toDesc(comp))
	_ = u.driver.Reboot(ctx)
}

func (u *Updater) finishComponent(ctx context.Context, comp Component, state State, reason Reason) {
	u.reportComponent(ctx, comp, state, reason)
}

// reportComponent posts an in-progress state report for comp, carrying the
// manifest's target version per fw_update.c's FW_REPORT_TARGET_VERSION
// flag. The device's own currently-running version isn't tracked here, so
// it's left unset; only the pending-verify-confirmed-boot report
// (checkPendingVerify) knows and sends a current version.
func (u *Updater) reportComponent(ctx context.Context, comp Component, state State, reason Reason) {
	u.postReport(ctx, componentReport{
		Package:       comp.Package,
		TargetVersion: comp.Version,
		State:         state,
		Reason:        reason,
	})
}

// postReport encodes and posts rep to .u/c/<package>, retrying with its own
// backoff independent of the component download's backoff, per fw_update.c's
// report-resilience constants.
func (u *Updater) postReport(ctx context.Context, rep componentReport) {
	payload, err := cbor.Marshal(rep)
	if err != nil {
		u.logger.Printf("ota: encode report for %s failed: %s", rep.Package, err)
		return
	}

	bo := NewBackoff(reportBackoffInitialSeconds*time.Second, reportBackoffMaxSeconds*time.Second)
	for attempt := 0; attempt < reportMaxAttempts; attempt++ {
		_, err := u.engine.Post(ctx, paths.OTA, "c/"+rep.Package, message.AppCBOR, payload)
		if err == nil {
			return
		}
		u.logger.Printf("ota: report for %s attempt %d failed: %s", rep.Package, attempt+1, err)
		select {
		case <-time.After(bo.Next()):
		case <-ctx.Done():
			return
		}
	}
}
