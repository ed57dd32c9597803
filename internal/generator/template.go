package generator

import (
	"receipthub/internal/event"
	"receipthub/internal/model"
)

// TemplateData is the document model handed to the PDF engine. Fiscal
// codes here are tokens; the engine resolves display values on its side.
type TemplateData struct {
	Transaction TransactionData `json:"transaction"`
	User        *UserData       `json:"user,omitempty"`
	Cart        CartData        `json:"cart"`
	OnlyDebtor  bool            `json:"onlyDebtor"`
}

type TransactionData struct {
	ID            string   `json:"id"`
	Timestamp     string   `json:"timestamp"`
	Amount        string   `json:"amount"`
	RRN           string   `json:"rrn,omitempty"`
	AuthCode      string   `json:"authCode,omitempty"`
	PaymentMethod string   `json:"paymentMethod,omitempty"`
	PSP           *PSPData `json:"psp,omitempty"`
}

type PSPData struct {
	Name string `json:"name"`
	Fee  string `json:"fee,omitempty"`
}

type UserData struct {
	TaxCode string `json:"taxCode"`
}

type CartData struct {
	Items       []CartItemData `json:"items"`
	AmountTotal string         `json:"amountTotal"`
}

type CartItemData struct {
	RefNumber string `json:"refNumber,omitempty"`
	Debtor    string `json:"debtorTaxCode,omitempty"`
	Payee     string `json:"payeeName,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

// buildTemplate assembles the engine payload from the stored receipt and
// the originating events. The debtor rendition omits payer data entirely;
// the payer rendition carries the payer token as the addressed user.
func buildTemplate(receipt *model.Receipt, events []model.BizEvent, forPayer bool) TemplateData {
	first := &events[0]

	tx := TransactionData{
		Timestamp: receipt.EventData.TransactionCreationDate,
		Amount:    receipt.EventData.Amount,
	}
	if first.TransactionDetails != nil && first.TransactionDetails.Transaction != nil {
		t := first.TransactionDetails.Transaction
		tx.ID = t.TransactionID
		tx.RRN = t.RRN
		tx.AuthCode = t.AuthorizationCode
		if t.PSP != nil {
			tx.PSP = &PSPData{
				Name: t.PSP.BusinessName,
				Fee:  event.FormatEuroCents(t.Fee),
			}
		}
	}
	if tx.ID == "" {
		tx.ID = first.ID
	}
	if first.PaymentInfo != nil {
		tx.PaymentMethod = first.PaymentInfo.PaymentMethod
	}

	items := make([]CartItemData, 0, len(events))
	for i := range events {
		ev := &events[i]
		item := CartItemData{
			Debtor: receipt.EventData.DebtorFiscalCode,
			Amount: event.NoticeAmount(ev),
		}
		if ev.DebtorPosition != nil {
			item.RefNumber = ev.DebtorPosition.IUV
		}
		if i < len(receipt.EventData.Cart) {
			item.Payee = receipt.EventData.Cart[i].PayeeName
			item.Subject = receipt.EventData.Cart[i].Subject
		}
		items = append(items, item)
	}

	data := TemplateData{
		Transaction: tx,
		Cart: CartData{
			Items:       items,
			AmountTotal: receipt.EventData.Amount,
		},
		OnlyDebtor: !forPayer,
	}

	if forPayer {
		data.User = &UserData{TaxCode: receipt.EventData.PayerFiscalCode}
	}

	return data
}
