package ingestion

import (
	"context"
	"fmt"

	"receipthub/internal/event"
	"receipthub/internal/model"
	"receipthub/internal/tokenizer"
)

// ReceiptBuilder turns source events into receipt event data: eligibility
// check, field extraction and fiscal-code tokenization. The intake
// pipeline runs it on arrival; helpdesk recovery runs it again so a
// replayed receipt never carries stale or missing tokens.
type ReceiptBuilder struct {
	validator *event.Validator
	extractor *event.Extractor
	tokens    tokenizer.Tokenizer
}

func NewReceiptBuilder(cfg Config, tokens tokenizer.Tokenizer) *ReceiptBuilder {
	return &ReceiptBuilder{
		validator: event.NewValidator(cfg.AuthenticatedChannels, cfg.ECommerceFilterEnabled),
		extractor: event.NewExtractor(cfg.UnwantedRemittanceInfo),
		tokens:    tokens,
	}
}

// Rebuild re-validates the stored source events and replaces the receipt
// event data with a freshly built one, tokens included.
func (b *ReceiptBuilder) Rebuild(ctx context.Context, receipt *model.Receipt, events []model.BizEvent) error {
	if len(events) == 0 {
		return fmt.Errorf("no source events for receipt %s", receipt.EventID)
	}
	for i := range events {
		if err := b.validator.CheckEligibility(&events[i]); err != nil {
			return err
		}
	}

	if receipt.IsCart {
		data, _, err := b.cartEventData(ctx, events)
		if err != nil {
			return err
		}
		receipt.EventData = data
		return nil
	}

	data, err := b.eventData(ctx, &events[0])
	if err != nil {
		return err
	}
	receipt.EventData = data
	return nil
}

// eventData assembles the receipt payload for a single-notice event. On a
// tokenizer failure the partially built data is returned alongside the
// error so a parked receipt still shows its extracted fields.
func (b *ReceiptBuilder) eventData(ctx context.Context, ev *model.BizEvent) (*model.EventData, error) {
	data := &model.EventData{
		Amount:                  event.Amount(ev),
		TransactionCreationDate: event.TransactionCreationDate(ev),
		Cart: []model.CartItem{{
			PayeeName: event.PayeeName(ev),
			Subject:   b.extractor.Subject(ev),
		}},
	}

	debtorToken, payerToken, err := b.tokenizeSubjects(ctx, ev)
	if err != nil {
		return data, err
	}
	data.DebtorFiscalCode = debtorToken
	data.PayerFiscalCode = payerToken
	return data, nil
}

// cartEventData assembles the aggregate payload for a completed cart and
// returns the per-event debtor tokens in event order.
func (b *ReceiptBuilder) cartEventData(ctx context.Context, events []model.BizEvent) (*model.EventData, []string, error) {
	data := &model.EventData{
		Amount:                  event.Amount(&events[0]),
		TransactionCreationDate: event.TransactionCreationDate(&events[0]),
	}

	items := make([]model.CartItem, 0, len(events))
	debtorTokens := make([]string, 0, len(events))
	for i := range events {
		ev := &events[i]
		items = append(items, model.CartItem{
			PayeeName: event.PayeeName(ev),
			Subject:   b.extractor.Subject(ev),
		})

		debtorToken, _, err := b.tokenizeSubjects(ctx, ev)
		if err != nil {
			data.Cart = items
			return data, nil, err
		}
		debtorTokens = append(debtorTokens, debtorToken)
	}
	data.Cart = items

	// A single debtor shared by every notice is carried on the receipt;
	// mixed debtors keep only the per-payment tokens.
	data.DebtorFiscalCode = commonToken(debtorTokens)

	payerCode := event.PayerIdentifier(&events[0])
	if payerCode != "" && event.IsValidFiscalCode(payerCode) && b.validator.IsFromAuthenticatedOrigin(&events[0]) {
		payerToken, err := b.tokens.Tokenize(ctx, payerCode)
		if err != nil {
			return data, nil, err
		}
		data.PayerFiscalCode = payerToken
	}

	return data, debtorTokens, nil
}

// tokenizeSubjects resolves the debtor and payer tokens for one event.
// An invalid debtor identifier collapses to the anonymous placeholder;
// the payer is only carried when the channel is authenticated.
func (b *ReceiptBuilder) tokenizeSubjects(ctx context.Context, ev *model.BizEvent) (debtor string, payer string, err error) {
	debtorCode := event.DebtorIdentifier(ev)
	if debtorCode == model.FiscalCodeAnonymous || !event.IsValidFiscalCode(debtorCode) {
		debtor = model.FiscalCodeAnonymous
	} else {
		debtor, err = b.tokens.Tokenize(ctx, debtorCode)
		if err != nil {
			return "", "", err
		}
	}

	payerCode := event.PayerIdentifier(ev)
	if payerCode != "" && event.IsValidFiscalCode(payerCode) && b.validator.IsFromAuthenticatedOrigin(ev) {
		payer, err = b.tokens.Tokenize(ctx, payerCode)
		if err != nil {
			return "", "", err
		}
	}

	return debtor, payer, nil
}

func commonToken(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	first := tokens[0]
	for _, t := range tokens[1:] {
		if t != first {
			return ""
		}
	}
	return first
}
