package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/finmail/internal/extract"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type fixedRater struct {
	rate decimal.Decimal
}

func (f fixedRater) Rate(_ context.Context, _, _ string) (decimal.Decimal, error) {
	return f.rate, nil
}

const invoiceBody = "Total Amount Due: $347.35 USD\nDue Date: 02/15/2024"

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("parses fenced JSON and normalizes currency", func(t *testing.T) {
		client := &mockClient{}
		reply := "```json\n" + `{"document_type":"Invoice","status":"pending_receipt","counterparty":"Acme GmbH",` +
			`"amount":"1,250.00","currency":"eur","confidence":0.92,"anomalies":[],` +
			`"extracted_entities":["Acme GmbH","INV-9"],"description":"Consulting invoice"}` + "\n```"
		client.On("Complete", ctx, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Invoice INV-9") && strings.Contains(p, "This appears to be a invoice email.")
		})).Return(reply, nil)

		a := NewAnalyzer(client, WithRater(fixedRater{rate: decimal.RequireFromString("1.1")}))
		got := a.Analyze(ctx, "Invoice INV-9", "Please pay EUR 1,250.00", model.DocumentInvoice)

		assert.Equal(t, FallbackNone, got.FallbackDepth)
		assert.NoError(t, got.Cause)
		assert.Equal(t, model.MethodLLM, got.Provenance.Method)
		assert.InDelta(t, 0.92, got.Provenance.Confidence, 1e-9)
		assert.Equal(t, model.DocumentInvoice, got.Info.DocumentType)
		assert.Equal(t, model.StatusPendingReceipt, got.Info.Status)
		assert.Equal(t, "Acme GmbH", got.Info.Counterparty)
		assert.Equal(t, "EUR", got.Info.Currency)
		require.NotNil(t, got.Info.USDAmount)
		assert.Equal(t, "1375", got.Info.USDAmount.String())
		assert.Equal(t, "1.1", got.Info.ExchangeRate.String())
		assert.Equal(t, []string{"Acme GmbH", "INV-9"}, got.Provenance.ExtractedEntities)
		assert.Empty(t, got.Provenance.Anomalies)
		client.AssertExpectations(t)
	})

	t.Run("model error falls back to full rules", func(t *testing.T) {
		client := &mockClient{}
		client.On("Complete", ctx, mock.Anything).Return("", errors.New("throttled"))

		a := NewAnalyzer(client, WithRules(extract.New(nil)))
		got := a.Analyze(ctx, "Invoice #INV-001 Payment Due", invoiceBody, model.DocumentInvoice)

		assert.Equal(t, model.MethodFallback, got.Provenance.Method)
		assert.Equal(t, FallbackFull, got.FallbackDepth)
		assert.LessOrEqual(t, got.Provenance.Confidence, 0.3)
		assert.Error(t, got.Cause)
		require.NotNil(t, got.Info.Amount)
		assert.Equal(t, "347.35", got.Info.Amount.String())
	})

	t.Run("model error without rules uses simple heuristic", func(t *testing.T) {
		client := &mockClient{}
		client.On("Complete", ctx, mock.Anything).Return("", errors.New("boom"))

		a := NewAnalyzer(client)
		got := a.Analyze(ctx, "Invoice #INV-001 Payment Due", invoiceBody, "")

		assert.Equal(t, model.MethodFallback, got.Provenance.Method)
		assert.Equal(t, FallbackSimple, got.FallbackDepth)
		assert.InDelta(t, 0.2, got.Provenance.Confidence, 1e-9)
		assert.Equal(t, "347.35", got.Info.Amount.String())
	})

	t.Run("rules that find nothing drop to simple", func(t *testing.T) {
		client := &mockClient{}
		client.On("Complete", ctx, mock.Anything).Return("", errors.New("boom"))

		a := NewAnalyzer(client, WithRules(extract.New(nil)))
		got := a.Analyze(ctx, "hello", "nothing", "")

		assert.Equal(t, FallbackSimple, got.FallbackDepth)
		assert.Nil(t, got.Info.Amount)
	})

	t.Run("nil client always falls back", func(t *testing.T) {
		got := NewAnalyzer(nil).Analyze(ctx, "Order 5", "$10", "")
		assert.Equal(t, model.MethodFallback, got.Provenance.Method)
		assert.Error(t, got.Cause)
	})

	t.Run("unparseable reply keeps default confidence and backfills", func(t *testing.T) {
		client := &mockClient{}
		client.On("Complete", ctx, mock.Anything).Return("I could not find anything useful.", nil)

		got := NewAnalyzer(client).Analyze(ctx, "Payment from Initech", "hi", "")
		assert.Equal(t, model.MethodLLM, got.Provenance.Method)
		assert.InDelta(t, 0.5, got.Provenance.Confidence, 1e-9)
		assert.Equal(t, model.DocumentPayment, got.Info.DocumentType)
		assert.Equal(t, "Initech", got.Info.Counterparty)
	})

	t.Run("large amount flagged", func(t *testing.T) {
		client := &mockClient{}
		client.On("Complete", ctx, mock.Anything).Return(`{"amount": 2500000, "currency": "USD", "confidence": 0.9}`, nil)

		got := NewAnalyzer(client).Analyze(ctx, "Statement €", "", "")
		assert.Contains(t, got.Provenance.Anomalies, "unusually large amount: 2500000.00")
		assert.Contains(t, got.Provenance.Anomalies, "currency USD does not match € in subject")
		assert.Equal(t, "2500000", got.Info.USDAmount.String())
	})
}

func TestPolicy_Choose(t *testing.T) {
	p := DefaultPolicy()
	rule := model.Extraction{Provenance: model.Provenance{Method: model.MethodRuleBased, Confidence: 0.3}}

	confident := Analysis{Extraction: model.Extraction{Provenance: model.Provenance{Method: model.MethodLLM, Confidence: 0.71}}}
	got, ok := p.Choose(confident, rule, true)
	assert.True(t, ok)
	assert.Equal(t, model.MethodLLM, got.Provenance.Method)

	borderline := Analysis{Extraction: model.Extraction{Provenance: model.Provenance{Method: model.MethodLLM, Confidence: 0.7}}}
	got, ok = p.Choose(borderline, rule, true)
	assert.True(t, ok)
	assert.Equal(t, model.MethodRuleBased, got.Provenance.Method)

	_, ok = p.Choose(borderline, model.Extraction{}, false)
	assert.False(t, ok)

	custom := Policy{LLMPreferThreshold: 0.5}
	got, ok = custom.Choose(borderline, rule, true)
	assert.True(t, ok)
	assert.Equal(t, model.MethodLLM, got.Provenance.Method)
}

func TestRecommendations(t *testing.T) {
	ex := model.Extraction{
		Info: model.FinancialInfo{
			Amount:   model.Dec(decimal.NewFromInt(20000)),
			Currency: "EUR",
		},
		Provenance: model.Provenance{Confidence: 0.4, Anomalies: []string{"x"}},
	}
	assert.Len(t, Recommendations(ex), 4)

	ex = model.Extraction{
		Info:       model.FinancialInfo{Amount: model.Dec(decimal.NewFromInt(20)), Currency: "USD"},
		Provenance: model.Provenance{Confidence: 0.9},
	}
	assert.Empty(t, Recommendations(ex))
}

func TestBuildPrompt(t *testing.T) {
	body := strings.Repeat("a", 2500)
	prompt := BuildPrompt("Invoice", body, "")

	assert.Contains(t, prompt, strings.Repeat("a", 2000))
	assert.NotContains(t, prompt, strings.Repeat("a", 2001))
	assert.NotContains(t, prompt, "This appears to be")
	assert.Contains(t, prompt, "extracted_entities")
	assert.Contains(t, prompt, "Respond with JSON only")
}
