package helpdesk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/config"
	"receipthub/internal/logger"
	"receipthub/internal/model"
)

func TestJobRunnerRunsEnabledSweeps(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	env.seedReceipt(t, "evt-1", model.ReceiptStatusFailed)
	require.NoError(t, env.errs.Insert(ctx, &model.ReceiptError{
		ID:             "err-1",
		BizEventID:     "evt-2",
		MessagePayload: `[{"id":"evt-2"}]`,
		Status:         model.ReceiptErrorStatusReviewed,
	}))

	runner := NewJobRunner(env.service, config.JobsConfig{
		FailedRecoveryEnabled: true,
		ReviewedPoisonEnabled: true,
		Interval:              time.Hour,
	}, logger.NopLogger())
	require.True(t, runner.Enabled())

	runner.runOnce(ctx)

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusInserted, receipt.Status)

	record, err := env.errs.GetByID(ctx, "err-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptErrorStatusRequeued, record.Status)

	env.audit.mu.Lock()
	defer env.audit.mu.Unlock()
	assert.NotContains(t, env.audit.sweeps, "recover_not_notified_massive",
		"disabled sweeps must not run")
}

func TestJobRunnerDisabled(t *testing.T) {
	env := newHelpdeskEnv(t)
	runner := NewJobRunner(env.service, config.JobsConfig{}, logger.NopLogger())
	assert.False(t, runner.Enabled())
}
