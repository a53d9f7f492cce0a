package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Field errors.
var (
	ErrUnknownField      = errors.New("unknown financial field")
	ErrInvalidFieldValue = errors.New("invalid field value")
)

// Modifiable financial field names.
const (
	FieldDocumentType = "document_type"
	FieldStatus       = "status"
	FieldCounterparty = "counterparty"
	FieldAmount       = "amount"
	FieldCurrency     = "currency"
	FieldUSDAmount    = "usd_amount"
	FieldExchangeRate = "exchange_rate"
	FieldIssueDate    = "issue_date"
	FieldDueDate      = "due_date"
	FieldStartDate    = "start_date"
)

// FieldNames lists every field that can be read or modified on FinancialInfo, in display order.
var FieldNames = []string{
	FieldDocumentType,
	FieldStatus,
	FieldCounterparty,
	FieldAmount,
	FieldCurrency,
	FieldUSDAmount,
	FieldExchangeRate,
	FieldIssueDate,
	FieldDueDate,
	FieldStartDate,
}

// HasField reports whether name is a financial field.
func HasField(name string) bool {
	for _, f := range FieldNames {
		if f == name {
			return true
		}
	}
	return false
}

// Get returns the current value of a field. Decimal fields yield *decimal.Decimal (possibly nil).
func (f *FinancialInfo) Get(field string) (any, error) {
	switch field {
	case FieldDocumentType:
		return string(f.DocumentType), nil
	case FieldStatus:
		return string(f.Status), nil
	case FieldCounterparty:
		return f.Counterparty, nil
	case FieldAmount:
		return f.Amount, nil
	case FieldCurrency:
		return f.Currency, nil
	case FieldUSDAmount:
		return f.USDAmount, nil
	case FieldExchangeRate:
		return f.ExchangeRate, nil
	case FieldIssueDate:
		return f.IssueDate, nil
	case FieldDueDate:
		return f.DueDate, nil
	case FieldStartDate:
		return f.StartDate, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

// Set assigns a new value to a field, coercing it to the field's type.
func (f *FinancialInfo) Set(field string, value any) error {
	switch field {
	case FieldAmount, FieldUSDAmount, FieldExchangeRate:
		d, err := ToDecimal(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, field, err)
		}
		switch field {
		case FieldAmount:
			f.Amount = d
		case FieldUSDAmount:
			f.USDAmount = d
		default:
			f.ExchangeRate = d
		}
		return nil
	case FieldDocumentType:
		d, ok := ParseDocumentType(toString(value))
		if !ok {
			return fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, field, value)
		}
		f.DocumentType = d
		return nil
	case FieldStatus:
		s, ok := ParseStatus(toString(value))
		if !ok {
			return fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, field, value)
		}
		f.Status = s
		return nil
	case FieldCurrency:
		f.Currency = strings.ToUpper(strings.TrimSpace(toString(value)))
		return nil
	case FieldCounterparty:
		f.Counterparty = toString(value)
		return nil
	case FieldIssueDate:
		f.IssueDate = toString(value)
		return nil
	case FieldDueDate:
		f.DueDate = toString(value)
		return nil
	case FieldStartDate:
		f.StartDate = toString(value)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

// ToDecimal coerces JSON-shaped numeric input into an optional decimal. nil and "" map to nil.
func ToDecimal(value any) (*decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return Dec(v), nil
	case *decimal.Decimal:
		return copyDecimal(v), nil
	case float64:
		return Dec(decimal.NewFromFloat(v)), nil
	case float32:
		return Dec(decimal.NewFromFloat32(v)), nil
	case int:
		return Dec(decimal.NewFromInt(int64(v))), nil
	case int64:
		return Dec(decimal.NewFromInt(v)), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, err
		}
		return Dec(d), nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if s == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return Dec(d), nil
	default:
		return nil, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// FormatValue renders a field value for audit messages.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case *decimal.Decimal:
		if v == nil {
			return "null"
		}
		return v.String()
	case decimal.Decimal:
		return v.String()
	case string:
		if v == "" {
			return "null"
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
