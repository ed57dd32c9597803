package model

// CartStatus tracks a multi-notice cart while its events are collected and
// after the aggregate receipt is produced.
type CartStatus string

const (
	CartStatusWaitingForBizEvent CartStatus = "WAITING_FOR_BIZ_EVENT"
	CartStatusInserted           CartStatus = "INSERTED"
	CartStatusFailed             CartStatus = "FAILED"
	CartStatusNotQueueSent       CartStatus = "NOT_QUEUE_SENT"
	CartStatusGenerated          CartStatus = "GENERATED"
	CartStatusSigned             CartStatus = "SIGNED"
	CartStatusIONotified         CartStatus = "IO_NOTIFIED"
	CartStatusIOErrorToNotify    CartStatus = "IO_ERROR_TO_NOTIFY"
	CartStatusIONotifierRetry    CartStatus = "IO_NOTIFIER_RETRY"
	CartStatusUnableToSend       CartStatus = "UNABLE_TO_SEND"
	CartStatusNotToNotify        CartStatus = "NOT_TO_NOTIFY"
	CartStatusToReview           CartStatus = "TO_REVIEW"
)

// RecoverableCartStatuses are the states a cart can be stuck in before an
// aggregate receipt exists. Recovery re-drives the stored events through
// the intake pipeline.
var RecoverableCartStatuses = []CartStatus{
	CartStatusWaitingForBizEvent,
	CartStatusInserted,
	CartStatusNotQueueSent,
	CartStatusFailed,
}

// CartVersionInsert is the version token assigned when a cart document is
// first created. Conditional replacement against the stored token serves
// as the optimistic lock for concurrent event arrival.
const CartVersionInsert = "cart-insert"

type Cart struct {
	// ID is the transaction identifier shared by every event in the cart.
	ID                   string       `json:"id" bson:"_id"`
	Version              string       `json:"version" bson:"version"`
	Status               CartStatus   `json:"status" bson:"status"`
	TotalNotice          int          `json:"totalNotice" bson:"totalNotice"`
	Payload              *CartPayload `json:"payload,omitempty" bson:"payload,omitempty"`
	NumRetry             int          `json:"numRetry" bson:"numRetry"`
	NotificationNumRetry int          `json:"notificationNumRetry" bson:"notificationNumRetry"`
	ReasonErr            *ReasonError `json:"reasonErr,omitempty" bson:"reasonErr,omitempty"`
	InsertedAt           int64        `json:"insertedAt" bson:"insertedAt"`
	NotifiedAt           int64        `json:"notifiedAt,omitempty" bson:"notifiedAt,omitempty"`
}

// CartPayload accumulates the per-notice entries as their events arrive.
type CartPayload struct {
	PayerFiscalCode         string        `json:"payerFiscalCode,omitempty" bson:"payerFiscalCode,omitempty"`
	TransactionCreationDate string        `json:"transactionCreationDate,omitempty" bson:"transactionCreationDate,omitempty"`
	TotalAmount             string        `json:"totalAmount,omitempty" bson:"totalAmount,omitempty"`
	Payments                []CartPayment `json:"payments,omitempty" bson:"payments,omitempty"`
}

type CartPayment struct {
	BizEventID       string       `json:"bizEventId" bson:"bizEventId"`
	DebtorFiscalCode string       `json:"debtorFiscalCode,omitempty" bson:"debtorFiscalCode,omitempty"`
	Amount           string       `json:"amount,omitempty" bson:"amount,omitempty"`
	PayeeName        string       `json:"payeeName,omitempty" bson:"payeeName,omitempty"`
	Subject          string       `json:"subject,omitempty" bson:"subject,omitempty"`
	ReasonErrDebtor  *ReasonError `json:"reasonErrDebtor,omitempty" bson:"reasonErrDebtor,omitempty"`
}

// Contains reports whether an event was already recorded in the cart
// payload, which makes redelivered events no-ops.
func (p *CartPayload) Contains(eventID string) bool {
	if p == nil {
		return false
	}
	for _, pay := range p.Payments {
		if pay.BizEventID == eventID {
			return true
		}
	}
	return false
}

// Complete reports whether every declared notice has been collected.
func (c *Cart) Complete() bool {
	if c.Payload == nil {
		return false
	}
	return c.TotalNotice > 0 && len(c.Payload.Payments) >= c.TotalNotice
}
