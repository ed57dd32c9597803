package event

import (
	"fmt"
	"regexp"
	"strings"

	"receipthub/internal/constants"
	"receipthub/internal/model"
)

// Persons are identified by an Italian fiscal code, companies by an
// 11-digit VAT number. Anything else is treated as an invalid identifier.
var (
	personFiscalCodeRegexp = regexp.MustCompile(`^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$`)
	companyVATRegexp       = regexp.MustCompile(`^\d{11}$`)
)

// IsValidFiscalCode reports whether code is a well-formed person or
// company identifier.
func IsValidFiscalCode(code string) bool {
	if code == "" {
		return false
	}
	return personFiscalCodeRegexp.MatchString(code) || companyVATRegexp.MatchString(code)
}

// DiscardError marks an event as ineligible for receipt creation. It is a
// terminal outcome, not a processing failure: the message is acknowledged
// and no receipt is produced.
type DiscardError struct {
	Reason string
}

func (e *DiscardError) Error() string {
	return "event discarded: " + e.Reason
}

func IsDiscard(err error) bool {
	_, ok := err.(*DiscardError)
	return ok
}

func discardf(format string, args ...interface{}) error {
	return &DiscardError{Reason: fmt.Sprintf(format, args...)}
}

// Validator applies the eligibility rules that decide whether a payment
// event becomes a receipt.
type Validator struct {
	authenticatedChannels map[string]struct{}
	ecommerceFilter       bool
}

func NewValidator(authenticatedChannels string, ecommerceFilter bool) *Validator {
	if authenticatedChannels == "" {
		authenticatedChannels = constants.DefaultAuthenticatedChannels
	}

	channels := make(map[string]struct{})
	for _, ch := range strings.Split(authenticatedChannels, ",") {
		ch = strings.TrimSpace(ch)
		if ch != "" {
			channels[ch] = struct{}{}
		}
	}

	return &Validator{
		authenticatedChannels: channels,
		ecommerceFilter:       ecommerceFilter,
	}
}

// IsFromAuthenticatedOrigin reports whether the event arrived through a
// channel whose payer data can be trusted. CHECKOUT serves guests too, so
// it only counts when the paying user is registered.
func (v *Validator) IsFromAuthenticatedOrigin(e *model.BizEvent) bool {
	if e.TransactionDetails == nil {
		return false
	}

	origin, clientID := "", ""
	if tx := e.TransactionDetails.Transaction; tx != nil {
		origin = tx.Origin
	}
	if info := e.TransactionDetails.Info; info != nil {
		clientID = info.ClientID
	}

	if (origin == constants.ChannelECommerce || clientID == constants.ChannelECommerce) &&
		!isRegisteredUser(e) {
		return false
	}

	if _, ok := v.authenticatedChannels[origin]; ok {
		return true
	}
	_, ok := v.authenticatedChannels[clientID]
	return ok
}

func isRegisteredUser(e *model.BizEvent) bool {
	if e.TransactionDetails == nil {
		return false
	}
	user := e.TransactionDetails.User
	return user != nil && user.Type == model.UserTypeRegistered
}

// CheckEligibility returns nil when the event must produce a receipt, a
// DiscardError when it must be skipped, and any other error when the event
// cannot be judged and processing must fail.
func (v *Validator) CheckEligibility(e *model.BizEvent) error {
	if e == nil || e.ID == "" {
		return discardf("missing event id")
	}

	if e.EventStatus != model.EventStatusDone {
		return discardf("event status %s is not %s", e.EventStatus, model.EventStatusDone)
	}

	if !v.hasValidSubject(e) {
		return discardf("no valid debtor or payer identifier")
	}

	if v.ecommerceFilter && isECommerceGuest(e) {
		return discardf("e-commerce event without authenticated user")
	}

	totalNotice, err := TotalNotice(e)
	if err != nil {
		return fmt.Errorf("invalid totalNotice for event %s: %w", e.ID, err)
	}

	if totalNotice == 1 && isLegacyCartComponent(e) {
		return discardf("legacy cart component event")
	}

	return nil
}

// hasValidSubject requires at least one usable identifier. A debtor marked
// anonymous only counts when an authenticated payer is present.
func (v *Validator) hasValidSubject(e *model.BizEvent) bool {
	debtorCode := ""
	if e.Debtor != nil {
		debtorCode = e.Debtor.EntityUniqueIdentifier
	}

	if debtorCode != model.FiscalCodeAnonymous && IsValidFiscalCode(debtorCode) {
		return true
	}

	if !v.IsFromAuthenticatedOrigin(e) {
		return false
	}
	return IsValidFiscalCode(PayerIdentifier(e))
}

// isECommerceGuest reports an e-commerce payment carried out without a
// registered user. Such events get their receipt from the cart flow and
// must not produce one here.
func isECommerceGuest(e *model.BizEvent) bool {
	if e.TransactionDetails == nil || e.TransactionDetails.Info == nil {
		return false
	}
	if e.TransactionDetails.Info.ClientID != constants.ChannelECommerce {
		return false
	}
	return !isRegisteredUser(e)
}

// isLegacyCartComponent detects events produced by the old cart model,
// where each component event carries the full transaction amount but no
// totalNotice. The transaction grand total disagreeing with the single
// notice amount is the telltale.
func isLegacyCartComponent(e *model.BizEvent) bool {
	if e.PaymentInfo == nil || e.PaymentInfo.TotalNotice != "" {
		return false
	}
	if e.TransactionDetails == nil || e.TransactionDetails.Transaction == nil {
		return false
	}

	grandTotal := e.TransactionDetails.Transaction.GrandTotal
	if grandTotal == 0 {
		return false
	}

	amountCents, ok := parseAmountCents(e.PaymentInfo.Amount)
	if !ok {
		return false
	}
	return amountCents != grandTotal
}
