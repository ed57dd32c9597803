package model

// ReceiptErrorStatus tracks a poisoned message through manual review.
type ReceiptErrorStatus string

const (
	ReceiptErrorStatusToReview ReceiptErrorStatus = "TO_REVIEW"
	ReceiptErrorStatusReviewed ReceiptErrorStatus = "REVIEWED"
	ReceiptErrorStatusRequeued ReceiptErrorStatus = "REQUEUED"
)

// ReceiptError preserves a message that could not be processed even after
// the single automatic poison retry. The payload is stored verbatim so a
// reviewed record can be requeued unchanged.
type ReceiptError struct {
	ID             string             `json:"id" bson:"_id"`
	BizEventID     string             `json:"bizEventId,omitempty" bson:"bizEventId,omitempty"`
	MessagePayload string             `json:"messagePayload,omitempty" bson:"messagePayload,omitempty"`
	MessageError   string             `json:"messageError,omitempty" bson:"messageError,omitempty"`
	SourceTopic    string             `json:"sourceTopic,omitempty" bson:"sourceTopic,omitempty"`
	Status         ReceiptErrorStatus `json:"status" bson:"status"`
	InsertedAt     int64              `json:"insertedAt" bson:"insertedAt"`
	UpdatedAt      int64              `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}
