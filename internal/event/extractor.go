package event

import (
	"regexp"
	"strconv"
	"strings"

	"receipthub/internal/constants"
	"receipthub/internal/model"
)

// remittanceTextRegexp extracts the free-text portion of a structured
// remittance string. Anything after the /TXT/ marker is the human-readable
// payment subject.
var remittanceTextRegexp = regexp.MustCompile(`/TXT/(.*)`)

// Extractor derives the receipt presentation fields from a payment event.
type Extractor struct {
	unwantedRemittance []string
}

func NewExtractor(unwantedRemittanceInfo string) *Extractor {
	if unwantedRemittanceInfo == "" {
		unwantedRemittanceInfo = constants.DefaultUnwantedRemittanceInfo
	}

	var unwanted []string
	for _, s := range strings.Split(unwantedRemittanceInfo, ",") {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			unwanted = append(unwanted, s)
		}
	}

	return &Extractor{unwantedRemittance: unwanted}
}

// TotalNotice returns the declared notice count. An absent value means a
// single notice; a non-numeric value is a processing failure, not a
// default.
func TotalNotice(e *model.BizEvent) (int, error) {
	if e.PaymentInfo == nil || e.PaymentInfo.TotalNotice == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(e.PaymentInfo.TotalNotice))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DebtorIdentifier returns the debtor fiscal code as carried on the event.
func DebtorIdentifier(e *model.BizEvent) string {
	if e.Debtor == nil {
		return ""
	}
	return e.Debtor.EntityUniqueIdentifier
}

// PayerIdentifier resolves the payer fiscal code, preferring the
// authenticated user over the declared payer record.
func PayerIdentifier(e *model.BizEvent) string {
	if e.TransactionDetails != nil && e.TransactionDetails.User != nil &&
		e.TransactionDetails.User.FiscalCode != "" {
		return e.TransactionDetails.User.FiscalCode
	}
	if e.Payer != nil {
		return e.Payer.EntityUniqueIdentifier
	}
	return ""
}

// Amount returns the total paid amount formatted for display. The
// transaction grand total wins when present; the notice amount is the
// fallback.
func Amount(e *model.BizEvent) string {
	if e.TransactionDetails != nil && e.TransactionDetails.Transaction != nil &&
		e.TransactionDetails.Transaction.GrandTotal != 0 {
		return FormatEuroCents(e.TransactionDetails.Transaction.GrandTotal)
	}
	if e.PaymentInfo != nil {
		if cents, ok := parseAmountCents(e.PaymentInfo.Amount); ok {
			return FormatEuroCents(cents)
		}
	}
	return ""
}

// NoticeAmount returns the single notice amount formatted for display,
// ignoring the transaction grand total.
func NoticeAmount(e *model.BizEvent) string {
	if e.PaymentInfo == nil {
		return ""
	}
	cents, ok := parseAmountCents(e.PaymentInfo.Amount)
	if !ok {
		return ""
	}
	return FormatEuroCents(cents)
}

// TransactionCreationDate returns the timestamp shown on the receipt.
func TransactionCreationDate(e *model.BizEvent) string {
	if e.TransactionDetails != nil && e.TransactionDetails.Transaction != nil &&
		e.TransactionDetails.Transaction.CreationDate != "" {
		return e.TransactionDetails.Transaction.CreationDate
	}
	if e.PaymentInfo != nil {
		return e.PaymentInfo.PaymentDateTime
	}
	return ""
}

// PayeeName returns the display name of the creditor institution.
func PayeeName(e *model.BizEvent) string {
	if e.Creditor == nil {
		return ""
	}
	return e.Creditor.CompanyName
}

// Subject derives the receipt subject line. The notice remittance
// information is used when meaningful; otherwise the remittance of the
// largest transfer wins, with ties resolved in list order. Placeholder
// subjects from multi-beneficiary plumbing are suppressed entirely.
func (x *Extractor) Subject(e *model.BizEvent) string {
	remittance := ""
	if e.PaymentInfo != nil {
		remittance = e.PaymentInfo.RemittanceInformation
	}

	if remittance == "" || x.isUnwanted(remittance) {
		remittance = largestTransferRemittance(e.TransferList)
	}

	remittance = formatRemittance(remittance)
	if remittance == "" || x.isUnwanted(remittance) {
		return ""
	}
	return remittance
}

func (x *Extractor) isUnwanted(remittance string) bool {
	lower := strings.ToLower(remittance)
	for _, unwanted := range x.unwantedRemittance {
		if strings.HasPrefix(lower, unwanted) {
			return true
		}
	}
	return false
}

func largestTransferRemittance(transfers []model.Transfer) string {
	best := ""
	bestAmount := -1.0
	for _, t := range transfers {
		amount, err := strconv.ParseFloat(strings.TrimSpace(t.Amount), 64)
		if err != nil {
			continue
		}
		if amount > bestAmount {
			bestAmount = amount
			best = t.RemittanceInformation
		}
	}
	return best
}

func formatRemittance(remittance string) string {
	if remittance == "" {
		return ""
	}
	if m := remittanceTextRegexp.FindStringSubmatch(remittance); m != nil {
		return m[1]
	}
	return remittance
}

// parseAmountCents converts a decimal euro amount string to cents.
func parseAmountCents(amount string) (int64, bool) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		return 0, false
	}
	return int64(f*100 + 0.5), true
}

// FormatEuroCents renders an amount in cents using the Italian convention:
// dot as thousands separator, comma before the two decimal digits.
func FormatEuroCents(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}

	whole := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	out := b.String() + "," + pad2(frac)
	if negative {
		return "-" + out
	}
	return out
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
