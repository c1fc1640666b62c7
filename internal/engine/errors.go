package engine

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"time"

	"github.com/cozysync/engine/internal/side"
)

// Fatal classified errors. The reconciliation loop propagates these out
// of Start with a stable message.
var (
	ErrDiskFull         = errors.New("engine: no more disk space")
	ErrQuotaExceeded    = errors.New("engine: cozy is full")
	ErrRevoked          = errors.New("engine: client has been revoked")
	ErrWrongPermissions = errors.New("engine: client has wrong permissions")
)

const httpStatusPayloadTooLarge = 413
const httpStatusBadRequest = 400
const httpStatusForbidden = 403

const defaultOfflineProbeInterval = 60 * time.Second

// diskUsageProber is satisfied by side.RemoteSide; kept as a narrow
// interface so the error handler doesn't need the concrete type.
type diskUsageProber interface {
	DiskUsage(ctx context.Context) error
}

// handleApplyError classifies an apply failure into a fatal outcome or
// nothing. A nil return means the caller should record a per-doc error
// and move on; the only
// non-nil returns are the fatal sentinels above. When the remote side
// does not support a disk-usage probe (a Side with no DiskUsage method),
// it skips straight to the per-doc-error outcome rather than entering
// the offline loop.
func (e *Engine) handleApplyError(ctx context.Context, applyErr error) (fatal error) {
	if isDiskFullError(applyErr) {
		return ErrDiskFull
	}

	var httpErr *side.HTTPError
	if errors.As(applyErr, &httpErr) && httpErr.StatusCode == httpStatusPayloadTooLarge {
		return ErrQuotaExceeded
	}

	prober, ok := e.remote.(diskUsageProber)
	if !ok {
		return nil
	}

	probeErr := prober.DiskUsage(ctx)
	if probeErr == nil {
		return nil // per-doc error recorded by the caller
	}

	var probeHTTPErr *side.HTTPError
	if errors.As(probeErr, &probeHTTPErr) {
		switch probeHTTPErr.StatusCode {
		case httpStatusBadRequest:
			return ErrRevoked
		case httpStatusForbidden:
			return ErrWrongPermissions
		}
	}

	e.offlineWait(ctx, prober)
	return nil
}

func isDiskFullError(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

// offlineWait implements the offline retry loop: emit offline, probe on
// e.offlineProbeInterval (default 60s), emit online and return once the
// probe succeeds. It deliberately ignores the engine's stopped flag:
// only ctx cancellation can interrupt a stall here, not a Stop() call.
func (e *Engine) offlineWait(ctx context.Context, remote diskUsageProber) {
	e.emit(Event{Kind: EventOffline})
	ticker := time.NewTicker(e.offlineProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := remote.DiskUsage(ctx); err == nil {
				e.emit(Event{Kind: EventOnline})
				return
			}
			slog.Debug("engine: offline probe failed, retrying", "interval", e.offlineProbeInterval)
		}
	}
}
