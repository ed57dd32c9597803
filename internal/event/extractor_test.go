package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/model"
)

func TestTotalNotice(t *testing.T) {
	tests := []struct {
		name    string
		event   *model.BizEvent
		want    int
		wantErr bool
	}{
		{"absent payment info defaults to one", &model.BizEvent{}, 1, false},
		{"empty value defaults to one", &model.BizEvent{PaymentInfo: &model.PaymentInfo{}}, 1, false},
		{"explicit value", &model.BizEvent{PaymentInfo: &model.PaymentInfo{TotalNotice: "3"}}, 3, false},
		{"padded value", &model.BizEvent{PaymentInfo: &model.PaymentInfo{TotalNotice: " 2 "}}, 2, false},
		{"non numeric fails", &model.BizEvent{PaymentInfo: &model.PaymentInfo{TotalNotice: "abc"}}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TotalNotice(tt.event)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatEuroCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0,00"},
		{5, "0,05"},
		{100, "1,00"},
		{12345, "123,45"},
		{150000, "1.500,00"},
		{123456789, "1.234.567,89"},
		{-2550, "-25,50"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEuroCents(tt.cents))
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name  string
		event *model.BizEvent
		want  string
	}{
		{
			name: "grand total wins",
			event: &model.BizEvent{
				PaymentInfo: &model.PaymentInfo{Amount: "50.00"},
				TransactionDetails: &model.TransactionDetails{
					Transaction: &model.Transaction{GrandTotal: 10050},
				},
			},
			want: "100,50",
		},
		{
			name: "falls back to notice amount",
			event: &model.BizEvent{
				PaymentInfo: &model.PaymentInfo{Amount: "75.30"},
			},
			want: "75,30",
		},
		{
			name:  "nothing available",
			event: &model.BizEvent{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Amount(tt.event))
		})
	}
}

func TestSubject(t *testing.T) {
	x := NewExtractor("")

	tests := []struct {
		name  string
		event *model.BizEvent
		want  string
	}{
		{
			name: "plain remittance",
			event: &model.BizEvent{
				PaymentInfo: &model.PaymentInfo{RemittanceInformation: "TARI 2024"},
			},
			want: "TARI 2024",
		},
		{
			name: "structured remittance text extracted",
			event: &model.BizEvent{
				PaymentInfo: &model.PaymentInfo{RemittanceInformation: "/RFB/0000001/10.00/TXT/Mensa scolastica"},
			},
			want: "Mensa scolastica",
		},
		{
			name: "unwanted remittance replaced by largest transfer",
			event: &model.BizEvent{
				PaymentInfo: &model.PaymentInfo{RemittanceInformation: "pagamento multibeneficiario"},
				TransferList: []model.Transfer{
					{Amount: "10.00", RemittanceInformation: "Quota minore"},
					{Amount: "90.00", RemittanceInformation: "Quota maggiore"},
				},
			},
			want: "Quota maggiore",
		},
		{
			name: "first transfer wins amount tie",
			event: &model.BizEvent{
				TransferList: []model.Transfer{
					{Amount: "50.00", RemittanceInformation: "Prima"},
					{Amount: "50.00", RemittanceInformation: "Seconda"},
				},
			},
			want: "Prima",
		},
		{
			name: "unparseable transfer amounts skipped",
			event: &model.BizEvent{
				TransferList: []model.Transfer{
					{Amount: "n/a", RemittanceInformation: "Rotta"},
					{Amount: "5.00", RemittanceInformation: "Valida"},
				},
			},
			want: "Valida",
		},
		{
			name: "unwanted everywhere yields empty subject",
			event: &model.BizEvent{
				PaymentInfo: &model.PaymentInfo{RemittanceInformation: "pagamento bpay"},
				TransferList: []model.Transfer{
					{Amount: "10.00", RemittanceInformation: "Pagamento BPAY altro"},
				},
			},
			want: "",
		},
		{
			name:  "no remittance at all",
			event: &model.BizEvent{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, x.Subject(tt.event))
		})
	}
}

func TestPayerIdentifier(t *testing.T) {
	t.Run("authenticated user preferred", func(t *testing.T) {
		e := &model.BizEvent{
			Payer: &model.Subject{EntityUniqueIdentifier: "12345678901"},
			TransactionDetails: &model.TransactionDetails{
				User: &model.User{FiscalCode: "RSSMRA80A01H501U"},
			},
		}
		assert.Equal(t, "RSSMRA80A01H501U", PayerIdentifier(e))
	})

	t.Run("payer record fallback", func(t *testing.T) {
		e := &model.BizEvent{
			Payer: &model.Subject{EntityUniqueIdentifier: "12345678901"},
		}
		assert.Equal(t, "12345678901", PayerIdentifier(e))
	})

	t.Run("nothing available", func(t *testing.T) {
		assert.Equal(t, "", PayerIdentifier(&model.BizEvent{}))
	})
}
