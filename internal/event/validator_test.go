package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/model"
)

func validEvent() *model.BizEvent {
	return &model.BizEvent{
		ID:          "evt-1",
		EventStatus: model.EventStatusDone,
		Debtor: &model.Subject{
			EntityUniqueIdentifier: "RSSMRA80A01H501U",
			FullName:               "Mario Rossi",
		},
		Creditor: &model.Creditor{CompanyName: "Comune di Roma"},
		PaymentInfo: &model.PaymentInfo{
			Amount:                "100.00",
			RemittanceInformation: "TARI 2024",
		},
		TransactionDetails: &model.TransactionDetails{
			Transaction: &model.Transaction{
				TransactionID: "tx-1",
				GrandTotal:    10000,
				Origin:        "IO",
				CreationDate:  "2024-05-01T10:00:00Z",
			},
		},
	}
}

func TestIsValidFiscalCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"valid person code", "RSSMRA80A01H501U", true},
		{"valid company vat", "12345678901", true},
		{"empty", "", false},
		{"anonymous placeholder", "ANONIMO", false},
		{"too short", "RSSMRA80A01", false},
		{"lowercase rejected", "rssmra80a01h501u", false},
		{"vat too long", "123456789012", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFiscalCode(tt.code))
		})
	}
}

func TestCheckEligibility(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(*model.BizEvent)
		ecommerceFilter bool
		wantDiscard     bool
		wantErr         bool
	}{
		{
			name:   "valid event passes",
			mutate: func(e *model.BizEvent) {},
		},
		{
			name:        "missing id",
			mutate:      func(e *model.BizEvent) { e.ID = "" },
			wantDiscard: true,
		},
		{
			name:        "status not done",
			mutate:      func(e *model.BizEvent) { e.EventStatus = "CREATED" },
			wantDiscard: true,
		},
		{
			name: "no valid identifiers",
			mutate: func(e *model.BizEvent) {
				e.Debtor = nil
				e.Payer = nil
			},
			wantDiscard: true,
		},
		{
			name: "anonymous debtor with authenticated payer passes",
			mutate: func(e *model.BizEvent) {
				e.Debtor.EntityUniqueIdentifier = model.FiscalCodeAnonymous
				e.TransactionDetails.User = &model.User{FiscalCode: "VRDLGI85B02H501X"}
			},
		},
		{
			name: "anonymous debtor without payer discarded",
			mutate: func(e *model.BizEvent) {
				e.Debtor.EntityUniqueIdentifier = model.FiscalCodeAnonymous
			},
			wantDiscard: true,
		},
		{
			name: "anonymous debtor with payer on unauthenticated channel discarded",
			mutate: func(e *model.BizEvent) {
				e.Debtor.EntityUniqueIdentifier = model.FiscalCodeAnonymous
				e.TransactionDetails.Transaction.Origin = "UNKNOWN_PSP"
				e.TransactionDetails.User = &model.User{FiscalCode: "VRDLGI85B02H501X"}
			},
			wantDiscard: true,
		},
		{
			name: "ecommerce guest discarded when filter enabled",
			mutate: func(e *model.BizEvent) {
				e.TransactionDetails.Info = &model.InfoDetails{ClientID: "CHECKOUT"}
			},
			ecommerceFilter: true,
			wantDiscard:     true,
		},
		{
			name: "ecommerce registered user passes with filter enabled",
			mutate: func(e *model.BizEvent) {
				e.TransactionDetails.Info = &model.InfoDetails{ClientID: "CHECKOUT"}
				e.TransactionDetails.User = &model.User{Type: model.UserTypeRegistered}
			},
			ecommerceFilter: true,
		},
		{
			name: "ecommerce guest passes when filter disabled",
			mutate: func(e *model.BizEvent) {
				e.TransactionDetails.Info = &model.InfoDetails{ClientID: "CHECKOUT"}
			},
		},
		{
			name: "non numeric totalNotice fails processing",
			mutate: func(e *model.BizEvent) {
				e.PaymentInfo.TotalNotice = "many"
			},
			wantErr: true,
		},
		{
			name: "legacy cart component discarded",
			mutate: func(e *model.BizEvent) {
				e.PaymentInfo.TotalNotice = ""
				e.PaymentInfo.Amount = "60.00"
				e.TransactionDetails.Transaction.GrandTotal = 10000
			},
			wantDiscard: true,
		},
		{
			name: "amount matching grand total passes",
			mutate: func(e *model.BizEvent) {
				e.PaymentInfo.TotalNotice = ""
				e.PaymentInfo.Amount = "100.00"
				e.TransactionDetails.Transaction.GrandTotal = 10000
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator("", tt.ecommerceFilter)
			e := validEvent()
			tt.mutate(e)

			err := v.CheckEligibility(e)
			switch {
			case tt.wantDiscard:
				require.Error(t, err)
				assert.True(t, IsDiscard(err), "expected discard, got %v", err)
			case tt.wantErr:
				require.Error(t, err)
				assert.False(t, IsDiscard(err), "expected hard failure, got discard")
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsFromAuthenticatedOrigin(t *testing.T) {
	v := NewValidator("IO,CHECKOUT", false)

	tests := []struct {
		name   string
		event  *model.BizEvent
		expect bool
	}{
		{
			name: "origin match",
			event: &model.BizEvent{TransactionDetails: &model.TransactionDetails{
				Transaction: &model.Transaction{Origin: "IO"},
			}},
			expect: true,
		},
		{
			name: "client id match",
			event: &model.BizEvent{TransactionDetails: &model.TransactionDetails{
				Info: &model.InfoDetails{ClientID: "CHECKOUT"},
				User: &model.User{Type: model.UserTypeRegistered},
			}},
			expect: true,
		},
		{
			name: "checkout guest by client id",
			event: &model.BizEvent{TransactionDetails: &model.TransactionDetails{
				Info: &model.InfoDetails{ClientID: "CHECKOUT"},
			}},
			expect: false,
		},
		{
			name: "checkout guest by origin",
			event: &model.BizEvent{TransactionDetails: &model.TransactionDetails{
				Transaction: &model.Transaction{Origin: "CHECKOUT"},
				User:        &model.User{Type: "GUEST"},
			}},
			expect: false,
		},
		{
			name: "checkout registered user by origin",
			event: &model.BizEvent{TransactionDetails: &model.TransactionDetails{
				Transaction: &model.Transaction{Origin: "CHECKOUT"},
				User:        &model.User{Type: model.UserTypeRegistered},
			}},
			expect: true,
		},
		{
			name: "no match",
			event: &model.BizEvent{TransactionDetails: &model.TransactionDetails{
				Transaction: &model.Transaction{Origin: "BATCH"},
			}},
			expect: false,
		},
		{
			name:   "no transaction details",
			event:  &model.BizEvent{},
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, v.IsFromAuthenticatedOrigin(tt.event))
		})
	}
}
