package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinancialInfo_Set(t *testing.T) {
	tests := []struct {
		value   any
		check   func(t *testing.T, info FinancialInfo)
		name    string
		field   string
		wantErr error
	}{
		{
			name:  "amount from float",
			field: FieldAmount,
			value: 500.0,
			check: func(t *testing.T, info FinancialInfo) {
				t.Helper()
				require.NotNil(t, info.Amount)
				assert.True(t, info.Amount.Equal(decimal.NewFromInt(500)))
			},
		},
		{
			name:  "amount from string with commas",
			field: FieldAmount,
			value: "1,234.50",
			check: func(t *testing.T, info FinancialInfo) {
				t.Helper()
				assert.Equal(t, "1234.5", info.Amount.String())
			},
		},
		{
			name:  "amount from json number",
			field: FieldAmount,
			value: json.Number("12.25"),
			check: func(t *testing.T, info FinancialInfo) {
				t.Helper()
				assert.Equal(t, "12.25", info.Amount.String())
			},
		},
		{
			name:  "null clears usd amount",
			field: FieldUSDAmount,
			value: nil,
			check: func(t *testing.T, info FinancialInfo) {
				t.Helper()
				assert.Nil(t, info.USDAmount)
			},
		},
		{
			name:  "currency is upper-cased",
			field: FieldCurrency,
			value: " eur ",
			check: func(t *testing.T, info FinancialInfo) {
				t.Helper()
				assert.Equal(t, "EUR", info.Currency)
			},
		},
		{
			name:  "status normalized",
			field: FieldStatus,
			value: "PAID",
			check: func(t *testing.T, info FinancialInfo) {
				t.Helper()
				assert.Equal(t, StatusPaid, info.Status)
			},
		},
		{
			name:    "invalid document type",
			field:   FieldDocumentType,
			value:   "memo",
			wantErr: ErrInvalidFieldValue,
		},
		{
			name:    "non numeric amount",
			field:   FieldAmount,
			value:   "lots",
			wantErr: ErrInvalidFieldValue,
		},
		{
			name:    "unknown field",
			field:   "subject",
			value:   "x",
			wantErr: ErrUnknownField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := FinancialInfo{USDAmount: Dec(decimal.NewFromInt(1))}
			err := info.Set(tt.field, tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, info)
		})
	}
}

func TestFinancialInfo_GetCoversAllFields(t *testing.T) {
	info := FinancialInfo{}
	for _, f := range FieldNames {
		_, err := info.Get(f)
		assert.NoError(t, err, f)
		assert.True(t, HasField(f))
	}
	_, err := info.Get("body")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFinancialRecord_CloneIsDeep(t *testing.T) {
	rec := FinancialRecord{SourceID: "m1"}
	rec.Info.Amount = Dec(decimal.NewFromInt(10))
	rec.Provenance.Anomalies = []string{"a"}

	cp := rec.Clone()
	require.NoError(t, cp.Info.Set(FieldAmount, 20))
	cp.Provenance.Anomalies[0] = "b"

	assert.Equal(t, "10", rec.Info.Amount.String())
	assert.Equal(t, "a", rec.Provenance.Anomalies[0])
}

func TestFormatValue(t *testing.T) {
	var nilDec *decimal.Decimal
	assert.Equal(t, "null", FormatValue(nil))
	assert.Equal(t, "null", FormatValue(nilDec))
	assert.Equal(t, "null", FormatValue(""))
	assert.Equal(t, "12.5", FormatValue(Dec(decimal.RequireFromString("12.5"))))
	assert.Equal(t, "500", FormatValue(500))
}

func TestPreview(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, Preview(short))

	long := make([]rune, 250)
	for i := range long {
		long[i] = 'x'
	}
	p := Preview(string(long))
	assert.Len(t, []rune(p), 203)
	assert.True(t, len(p) > 200)
}
