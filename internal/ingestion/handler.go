package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"receipthub/internal/broker"
	"receipthub/internal/model"
	"receipthub/pkg/logging"
	"receipthub/pkg/retry"
)

// HandleMessage adapts the service to the broker consumer. Undecodable
// payloads are fatal: retrying cannot fix them, so they go straight to the
// poison topic.
func (s *Service) HandleMessage(ctx context.Context, msg broker.Message) error {
	var ev model.BizEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return retry.NewFatalError(fmt.Errorf("undecodable payment event: %w", err))
	}

	ctx = logging.WithEventID(ctx, ev.ID)
	return s.ProcessEvent(ctx, &ev)
}
