package model

// ReceiptStatus tracks a receipt through ingestion, generation and
// notification.
type ReceiptStatus string

const (
	ReceiptStatusNotQueueSent    ReceiptStatus = "NOT_QUEUE_SENT"
	ReceiptStatusInserted        ReceiptStatus = "INSERTED"
	ReceiptStatusRetry           ReceiptStatus = "RETRY"
	ReceiptStatusGenerated       ReceiptStatus = "GENERATED"
	ReceiptStatusSigned          ReceiptStatus = "SIGNED"
	ReceiptStatusFailed          ReceiptStatus = "FAILED"
	ReceiptStatusIONotified      ReceiptStatus = "IO_NOTIFIED"
	ReceiptStatusIOErrorToNotify ReceiptStatus = "IO_ERROR_TO_NOTIFY"
	ReceiptStatusIONotifierRetry ReceiptStatus = "IO_NOTIFIER_RETRY"
	ReceiptStatusUnableToSend    ReceiptStatus = "UNABLE_TO_SEND"
	ReceiptStatusNotToNotify     ReceiptStatus = "NOT_TO_NOTIFY"
	ReceiptStatusToReview        ReceiptStatus = "TO_REVIEW"
)

// DatastoreFailedStatuses are the states a receipt can be stuck in before
// generation ever succeeded; they are the targets of failed-receipt
// recovery.
var DatastoreFailedStatuses = []ReceiptStatus{
	ReceiptStatusNotQueueSent,
	ReceiptStatusInserted,
	ReceiptStatusFailed,
}

// NotNotifiedStatuses are the states targeted by not-notified recovery.
var NotNotifiedStatuses = []ReceiptStatus{
	ReceiptStatusGenerated,
	ReceiptStatusIOErrorToNotify,
}

// IsValidReceiptStatus reports whether s is one of the known receipt
// states. Used to validate helpdesk query parameters.
func IsValidReceiptStatus(s string) bool {
	switch ReceiptStatus(s) {
	case ReceiptStatusNotQueueSent, ReceiptStatusInserted, ReceiptStatusRetry,
		ReceiptStatusGenerated, ReceiptStatusSigned, ReceiptStatusFailed,
		ReceiptStatusIONotified, ReceiptStatusIOErrorToNotify,
		ReceiptStatusIONotifierRetry, ReceiptStatusUnableToSend,
		ReceiptStatusNotToNotify, ReceiptStatusToReview:
		return true
	}
	return false
}

// FiscalCodeAnonymous replaces the payer identifier when the payment was
// carried out without an authenticated user.
const FiscalCodeAnonymous = "ANONIMO"

type Receipt struct {
	ID                   string           `json:"id" bson:"_id"`
	EventID              string           `json:"eventId" bson:"eventId"`
	Status               ReceiptStatus    `json:"status" bson:"status"`
	EventData            *EventData       `json:"eventData,omitempty" bson:"eventData,omitempty"`
	IOMessageData        *IOMessageData   `json:"ioMessageData,omitempty" bson:"ioMessageData,omitempty"`
	MdAttach             *ReceiptMetadata `json:"mdAttach,omitempty" bson:"mdAttach,omitempty"`
	MdAttachPayer        *ReceiptMetadata `json:"mdAttachPayer,omitempty" bson:"mdAttachPayer,omitempty"`
	NumRetry             int              `json:"numRetry" bson:"numRetry"`
	NotificationNumRetry int              `json:"notificationNumRetry" bson:"notificationNumRetry"`
	ReasonErr            *ReasonError     `json:"reasonErr,omitempty" bson:"reasonErr,omitempty"`
	ReasonErrPayer       *ReasonError     `json:"reasonErrPayer,omitempty" bson:"reasonErrPayer,omitempty"`
	InsertedAt           int64            `json:"insertedAt" bson:"insertedAt"`
	GeneratedAt          int64            `json:"generatedAt,omitempty" bson:"generatedAt,omitempty"`
	NotifiedAt           int64            `json:"notifiedAt,omitempty" bson:"notifiedAt,omitempty"`
	IsCart               bool             `json:"isCart,omitempty" bson:"isCart,omitempty"`
}

// EventData is the subset of payment data needed to render and address the
// receipt. Fiscal codes here are already tokenized.
type EventData struct {
	PayerFiscalCode         string     `json:"payerFiscalCode,omitempty" bson:"payerFiscalCode,omitempty"`
	DebtorFiscalCode        string     `json:"debtorFiscalCode,omitempty" bson:"debtorFiscalCode,omitempty"`
	TransactionCreationDate string     `json:"transactionCreationDate,omitempty" bson:"transactionCreationDate,omitempty"`
	Amount                  string     `json:"amount,omitempty" bson:"amount,omitempty"`
	Cart                    []CartItem `json:"cart,omitempty" bson:"cart,omitempty"`
}

type CartItem struct {
	PayeeName string `json:"payeeName,omitempty" bson:"payeeName,omitempty"`
	Subject   string `json:"subject,omitempty" bson:"subject,omitempty"`
}

type IOMessageData struct {
	IDMessageDebtor string `json:"idMessageDebtor,omitempty" bson:"idMessageDebtor,omitempty"`
	IDMessagePayer  string `json:"idMessagePayer,omitempty" bson:"idMessagePayer,omitempty"`
}

type ReceiptMetadata struct {
	Name string `json:"name,omitempty" bson:"name,omitempty"`
	URL  string `json:"url,omitempty" bson:"url,omitempty"`
}

type ReasonError struct {
	Code    int    `json:"code" bson:"code"`
	Message string `json:"message" bson:"message"`
}

// Attached reports whether a rendered document has already been stored for
// this metadata slot.
func (m *ReceiptMetadata) Attached() bool {
	return m != nil && m.URL != ""
}
