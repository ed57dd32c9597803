package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEvent = "receipt:event:"
)

const (
	DefaultIngestionTopic  = "biz_events"
	DefaultCartTopic       = "cart_events"
	DefaultGenerationTopic = "receipt_generation"
	DefaultPoisonTopic     = "receipt_generation_poison"
)

const (
	DefaultMongoDBName = "receipthub"

	CollectionReceipts      = "receipts"
	CollectionCarts         = "carts"
	CollectionReceiptErrors = "receipt_errors"
	CollectionBizEvents     = "biz_events"

	BlobBucketName = "receipt_documents"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// RecoveryPageSize bounds each page of a massive recovery scan.
	RecoveryPageSize = 100
	MaxLimit         = 1000
)

const (
	DefaultDedupTTLSeconds = 3600
)

const (
	// DefaultMaxPDFRetries is the generation attempt budget before a
	// receipt is parked as failed.
	DefaultMaxPDFRetries = 5

	// DefaultLookbackDays bounds scheduled recovery scans to recent
	// documents.
	DefaultLookbackDays = 7
)

const (
	ChannelECommerce = "CHECKOUT"

	DefaultAuthenticatedChannels  = "IO,CHECKOUT,WISP,CHECKOUT_CART"
	DefaultUnwantedRemittanceInfo = "pagamento multibeneficiario,pagamento bpay"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
