package model

// BizEvent is the upstream record describing a completed payment. It is
// read-only input for this system: events are produced by the payment
// platform and consumed from the ingestion topic.
type BizEvent struct {
	ID                   string              `json:"id" bson:"_id"`
	Version              string              `json:"version,omitempty" bson:"version,omitempty"`
	EventStatus          string              `json:"eventStatus" bson:"eventStatus"`
	Debtor               *Subject            `json:"debtor,omitempty" bson:"debtor,omitempty"`
	Payer                *Subject            `json:"payer,omitempty" bson:"payer,omitempty"`
	Creditor             *Creditor           `json:"creditor,omitempty" bson:"creditor,omitempty"`
	DebtorPosition       *DebtorPosition     `json:"debtorPosition,omitempty" bson:"debtorPosition,omitempty"`
	PaymentInfo          *PaymentInfo        `json:"paymentInfo,omitempty" bson:"paymentInfo,omitempty"`
	TransactionDetails   *TransactionDetails `json:"transactionDetails,omitempty" bson:"transactionDetails,omitempty"`
	TransferList         []Transfer          `json:"transferList,omitempty" bson:"transferList,omitempty"`
	AttemptedPoisonRetry bool                `json:"attemptedPoisonRetry" bson:"attemptedPoisonRetry"`
}

// EventStatusDone is the only event status eligible for receipt creation.
const EventStatusDone = "DONE"

type Subject struct {
	FullName                   string `json:"fullName,omitempty" bson:"fullName,omitempty"`
	EntityUniqueIdentifierType string `json:"entityUniqueIdentifierType,omitempty" bson:"entityUniqueIdentifierType,omitempty"`
	EntityUniqueIdentifier     string `json:"entityUniqueIdentifierValue,omitempty" bson:"entityUniqueIdentifierValue,omitempty"`
	Email                      string `json:"eMail,omitempty" bson:"eMail,omitempty"`
}

type Creditor struct {
	CompanyName string `json:"companyName,omitempty" bson:"companyName,omitempty"`
	OfficeName  string `json:"officeName,omitempty" bson:"officeName,omitempty"`
	IDPA        string `json:"idPA,omitempty" bson:"idPA,omitempty"`
}

type DebtorPosition struct {
	IUV          string `json:"iuv,omitempty" bson:"iuv,omitempty"`
	NoticeNumber string `json:"noticeNumber,omitempty" bson:"noticeNumber,omitempty"`
	ModelType    string `json:"modelType,omitempty" bson:"modelType,omitempty"`
}

type PaymentInfo struct {
	PaymentDateTime       string `json:"paymentDateTime,omitempty" bson:"paymentDateTime,omitempty"`
	Amount                string `json:"amount,omitempty" bson:"amount,omitempty"`
	PaymentMethod         string `json:"paymentMethod,omitempty" bson:"paymentMethod,omitempty"`
	Fee                   string `json:"fee,omitempty" bson:"fee,omitempty"`
	RemittanceInformation string `json:"remittanceInformation,omitempty" bson:"remittanceInformation,omitempty"`
	// TotalNotice is the declared number of notices in the owning
	// transaction. It is carried as a string on the wire; nil/empty means
	// a single notice.
	TotalNotice string `json:"totalNotice,omitempty" bson:"totalNotice,omitempty"`
}

type TransactionDetails struct {
	Transaction *Transaction `json:"transaction,omitempty" bson:"transaction,omitempty"`
	Info        *InfoDetails `json:"info,omitempty" bson:"info,omitempty"`
	User        *User        `json:"user,omitempty" bson:"user,omitempty"`
	Wallet      *WalletItem  `json:"wallet,omitempty" bson:"wallet,omitempty"`
}

type Transaction struct {
	IDTransaction     string `json:"idTransaction,omitempty" bson:"idTransaction,omitempty"`
	TransactionID     string `json:"transactionId,omitempty" bson:"transactionId,omitempty"`
	// GrandTotal and Amount are denominated in euro cents.
	GrandTotal        int64  `json:"grandTotal,omitempty" bson:"grandTotal,omitempty"`
	Amount            int64  `json:"amount,omitempty" bson:"amount,omitempty"`
	Fee               int64  `json:"fee,omitempty" bson:"fee,omitempty"`
	RRN               string `json:"rrn,omitempty" bson:"rrn,omitempty"`
	AuthorizationCode string `json:"authorizationCode,omitempty" bson:"authorizationCode,omitempty"`
	CreationDate      string `json:"creationDate,omitempty" bson:"creationDate,omitempty"`
	Origin            string `json:"origin,omitempty" bson:"origin,omitempty"`
	PSP               *PSP   `json:"psp,omitempty" bson:"psp,omitempty"`
}

type PSP struct {
	IDPsp        string `json:"idPsp,omitempty" bson:"idPsp,omitempty"`
	BusinessName string `json:"businessName,omitempty" bson:"businessName,omitempty"`
}

type InfoDetails struct {
	ClientID string `json:"clientId,omitempty" bson:"clientId,omitempty"`
	Type     string `json:"type,omitempty" bson:"type,omitempty"`
	Brand    string `json:"brand,omitempty" bson:"brand,omitempty"`
}

// UserTypeRegistered marks an authenticated payer on e-commerce channels.
const UserTypeRegistered = "REGISTERED"

type User struct {
	FullName   string `json:"fullName,omitempty" bson:"fullName,omitempty"`
	Type       string `json:"type,omitempty" bson:"type,omitempty"`
	FiscalCode string `json:"fiscalCode,omitempty" bson:"fiscalCode,omitempty"`
}

type WalletItem struct {
	Info *InfoDetails `json:"info,omitempty" bson:"info,omitempty"`
}

type Transfer struct {
	IDTransfer            string `json:"idTransfer,omitempty" bson:"idTransfer,omitempty"`
	FiscalCodePA          string `json:"fiscalCodePA,omitempty" bson:"fiscalCodePA,omitempty"`
	CompanyName           string `json:"companyName,omitempty" bson:"companyName,omitempty"`
	Amount                string `json:"amount,omitempty" bson:"amount,omitempty"`
	RemittanceInformation string `json:"remittanceInformation,omitempty" bson:"remittanceInformation,omitempty"`
}

// TransactionID returns the identifier of the owning transaction, used as
// the stable cart key for multi-notice payments.
func (e *BizEvent) TransactionID() string {
	if e.TransactionDetails != nil && e.TransactionDetails.Transaction != nil {
		return e.TransactionDetails.Transaction.TransactionID
	}
	return ""
}
