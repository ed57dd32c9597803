package helpdesk

import (
	"context"
	"time"

	"receipthub/internal/config"
	"receipthub/internal/logger"
)

// JobRunner hosts the periodic self-healing sweeps. Each sweep reuses the
// same service operations the HTTP API exposes, so a scheduled run and an
// operator-triggered run behave identically.
type JobRunner struct {
	service  Service
	cfg      config.JobsConfig
	interval time.Duration
	logger   logger.Logger
}

func NewJobRunner(service Service, cfg config.JobsConfig, log logger.Logger) *JobRunner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &JobRunner{
		service:  service,
		cfg:      cfg,
		interval: interval,
		logger:   log,
	}
}

// Enabled reports whether at least one sweep is switched on.
func (r *JobRunner) Enabled() bool {
	return r.cfg.FailedRecoveryEnabled || r.cfg.NotNotifiedRecoveryEnabled || r.cfg.ReviewedPoisonEnabled
}

// Start runs the enabled sweeps on the configured interval until the
// context is cancelled. The first run happens after one full interval so
// a restarting fleet does not stampede the datastore.
func (r *JobRunner) Start(ctx context.Context) error {
	if !r.Enabled() {
		r.logger.Infow("All self-healing jobs disabled, runner idle")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Infow("Self-healing job runner started",
		"interval", r.interval.String(),
		"failed_recovery", r.cfg.FailedRecoveryEnabled,
		"not_notified_recovery", r.cfg.NotNotifiedRecoveryEnabled,
		"reviewed_poison", r.cfg.ReviewedPoisonEnabled,
	)

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *JobRunner) runOnce(ctx context.Context) {
	if r.cfg.FailedRecoveryEnabled {
		result, err := r.service.RecoverReceiptsMassive(ctx, "")
		if err != nil {
			r.logger.ErrorwCtx(ctx, "Failed recovery sweep errored", "error", err)
		} else {
			r.logger.InfowCtx(ctx, "Failed recovery sweep finished",
				"succeeded", result.Succeeded,
				"failed", result.Failed,
				"scanned", result.ItemsScanned,
			)
		}
	}

	if r.cfg.NotNotifiedRecoveryEnabled {
		result, err := r.service.RecoverNotNotifiedMassive(ctx, "")
		if err != nil {
			r.logger.ErrorwCtx(ctx, "Not-notified recovery sweep errored", "error", err)
		} else {
			r.logger.InfowCtx(ctx, "Not-notified recovery sweep finished",
				"succeeded", result.Succeeded,
				"failed", result.Failed,
				"scanned", result.ItemsScanned,
			)
		}
	}

	if r.cfg.ReviewedPoisonEnabled {
		result, err := r.service.RequeueReviewed(ctx)
		if err != nil {
			r.logger.ErrorwCtx(ctx, "Reviewed poison requeue sweep errored", "error", err)
		} else {
			r.logger.InfowCtx(ctx, "Reviewed poison requeue sweep finished",
				"succeeded", result.Succeeded,
				"failed", result.Failed,
				"scanned", result.ItemsScanned,
			)
		}
	}
}
