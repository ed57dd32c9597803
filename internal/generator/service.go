package generator

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"receipthub/internal/broker"
	"receipthub/internal/constants"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
	"receipthub/pkg/metrics"
	"receipthub/pkg/retry"
)

// Service drives PDF generation for queued receipts. One receipt needs
// either a single rendition addressed to the debtor, or a partial debtor
// rendition plus a complete payer one when the two differ.
type Service struct {
	receipts        store.ReceiptStore
	blobs           store.BlobStore
	renderer        Renderer
	producer        broker.Producer
	generationTopic string
	maxRetries      int
	logger          logger.Logger
}

func NewService(
	receipts store.ReceiptStore,
	blobs store.BlobStore,
	renderer Renderer,
	producer broker.Producer,
	generationTopic string,
	maxRetries int,
	log logger.Logger,
) *Service {
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxPDFRetries
	}
	return &Service{
		receipts:        receipts,
		blobs:           blobs,
		renderer:        renderer,
		producer:        producer,
		generationTopic: generationTopic,
		maxRetries:      maxRetries,
		logger:          log,
	}
}

// HandleMessage adapts the service to the broker consumer.
func (s *Service) HandleMessage(ctx context.Context, msg broker.Message) error {
	return s.ProcessMessage(ctx, msg.Value)
}

// ProcessMessage handles one generation queue payload. The raw payload is
// kept around so a retry requeues exactly what arrived.
func (s *Service) ProcessMessage(ctx context.Context, raw []byte) error {
	start := time.Now()
	status, err := s.processMessage(ctx, raw)
	metrics.GenerationReceiptsTotal.WithLabelValues(status).Inc()
	metrics.ObserveGenerationDuration(time.Since(start), status)
	return err
}

func (s *Service) processMessage(ctx context.Context, raw []byte) (string, error) {
	events, err := model.DecodeQueueMessage(raw)
	if err != nil {
		return "undecodable", retry.NewFatalError(fmt.Errorf("undecodable generation message: %w", err))
	}
	if len(events) == 0 {
		return "undecodable", retry.NewFatalError(stderrors.New("generation message carries no events"))
	}

	eventID := model.QueueMessageEventID(events)
	receipt, err := s.receipts.GetByEventID(ctx, eventID)
	if err != nil {
		return "failed", err
	}
	if receipt == nil {
		// The ingestion write may not be visible yet; redeliver.
		return "failed", fmt.Errorf("no receipt found for event %s", eventID)
	}

	if receipt.EventData == nil {
		return "undecodable", retry.NewFatalError(fmt.Errorf("receipt %s has no event data", receipt.ID))
	}

	if receipt.Status != model.ReceiptStatusInserted && receipt.Status != model.ReceiptStatusRetry {
		s.logger.InfowCtx(ctx, "Receipt not awaiting generation, skipping",
			"receipt_id", receipt.ID,
			"status", string(receipt.Status),
		)
		return "skipped", nil
	}

	payerDebtorEqual := receipt.EventData.PayerFiscalCode != "" &&
		receipt.EventData.PayerFiscalCode == receipt.EventData.DebtorFiscalCode
	needPayerDoc := receipt.EventData.PayerFiscalCode != "" && !payerDebtorEqual

	if s.alreadyComplete(receipt, needPayerDoc) {
		s.logger.InfowCtx(ctx, "Receipt documents already generated, skipping",
			"receipt_id", receipt.ID,
			"event_id", eventID,
		)
		return "skipped", nil
	}

	genErr := s.generateDocuments(ctx, receipt, events, payerDebtorEqual, needPayerDoc)
	if genErr == nil {
		receipt.Status = model.ReceiptStatusGenerated
		receipt.GeneratedAt = time.Now().UnixMilli()
		if err := s.receipts.Update(ctx, receipt); err != nil {
			return "failed", err
		}
		return "generated", nil
	}

	return s.handleGenerationFailure(ctx, receipt, raw, genErr)
}

// alreadyComplete reports whether every needed rendition is attached.
// Redelivered messages for finished receipts are acknowledged untouched.
func (s *Service) alreadyComplete(receipt *model.Receipt, needPayerDoc bool) bool {
	if !receipt.MdAttach.Attached() {
		return false
	}
	if needPayerDoc && !receipt.MdAttachPayer.Attached() {
		return false
	}
	return true
}

// generateDocuments renders and stores the missing renditions. Renditions
// already attached from a previous partial attempt are not redone.
func (s *Service) generateDocuments(ctx context.Context, receipt *model.Receipt, events []model.BizEvent, payerDebtorEqual, needPayerDoc bool) error {
	if !receipt.MdAttach.Attached() {
		// When payer and debtor coincide the debtor rendition is the
		// complete receipt; otherwise it is the partial one.
		data := buildTemplate(receipt, events, payerDebtorEqual)
		attach, err := s.renderAndStore(ctx, receipt.ID+"-debtor", data)
		if err != nil {
			s.recordFailure(receipt, err, false)
			return err
		}
		receipt.MdAttach = attach
	}

	if needPayerDoc && !receipt.MdAttachPayer.Attached() {
		data := buildTemplate(receipt, events, true)
		attach, err := s.renderAndStore(ctx, receipt.ID+"-payer", data)
		if err != nil {
			s.recordFailure(receipt, err, true)
			return err
		}
		receipt.MdAttachPayer = attach
	}

	return nil
}

func (s *Service) renderAndStore(ctx context.Context, name string, data TemplateData) (*model.ReceiptMetadata, error) {
	pdf, err := s.renderer.Render(ctx, data)
	if err != nil {
		return nil, err
	}

	blobName := name + ".pdf"
	url, err := s.blobs.Upload(ctx, blobName, pdf)
	if err != nil {
		metrics.BlobUploadsTotal.WithLabelValues("error").Inc()
		return nil, &blobError{cause: err}
	}

	metrics.BlobUploadsTotal.WithLabelValues("success").Inc()
	metrics.BlobUploadSizeBytes.Observe(float64(len(pdf)))

	return &model.ReceiptMetadata{Name: blobName, URL: url}, nil
}

type blobError struct {
	cause error
}

func (e *blobError) Error() string {
	return "blob storage error: " + e.cause.Error()
}

func (e *blobError) Unwrap() error {
	return e.cause
}

// recordFailure stamps the reason on the receipt. The first recorded
// reason is kept across attempts so the root cause survives later noise.
func (s *Service) recordFailure(receipt *model.Receipt, err error, payerDoc bool) {
	reason := model.NewReasonError(reasonCodeOf(err), err.Error())
	if payerDoc {
		if receipt.ReasonErrPayer == nil {
			receipt.ReasonErrPayer = reason
		}
		return
	}
	if receipt.ReasonErr == nil {
		receipt.ReasonErr = reason
	}
}

func reasonCodeOf(err error) int {
	var re *RenderError
	if stderrors.As(err, &re) {
		return re.ReasonCode()
	}
	var be *blobError
	if stderrors.As(err, &be) {
		return model.ReasonCodeBlobStorage
	}
	return model.ReasonCodeGeneric
}

// handleGenerationFailure decides between another attempt and parking the
// receipt. Within budget the receipt goes back on the queue verbatim;
// past it the receipt is failed and the message acknowledged.
func (s *Service) handleGenerationFailure(ctx context.Context, receipt *model.Receipt, raw []byte, genErr error) (string, error) {
	receipt.NumRetry++
	if receipt.NumRetry > s.maxRetries {
		receipt.Status = model.ReceiptStatusFailed
		if err := s.receipts.Update(ctx, receipt); err != nil {
			return "failed", err
		}
		s.logger.ErrorwCtx(ctx, "Generation retry budget exhausted, receipt parked as failed",
			"receipt_id", receipt.ID,
			"event_id", receipt.EventID,
			"num_retry", receipt.NumRetry,
			"error", genErr,
		)
		return "exhausted", nil
	}

	receipt.Status = model.ReceiptStatusRetry
	if err := s.receipts.Update(ctx, receipt); err != nil {
		return "failed", err
	}

	if err := s.producer.Publish(ctx, s.generationTopic, []byte(receipt.EventID), raw); err != nil {
		return "failed", fmt.Errorf("failed to requeue receipt %s: %w", receipt.ID, err)
	}

	metrics.GenerationRetriesTotal.Inc()
	s.logger.WarnwCtx(ctx, "Generation failed, receipt requeued",
		"receipt_id", receipt.ID,
		"event_id", receipt.EventID,
		"num_retry", receipt.NumRetry,
		"error", genErr,
	)
	return "retried", nil
}
