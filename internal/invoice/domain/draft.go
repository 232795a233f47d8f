package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/portbilling/internal/invoice/format"
	"github.com/smallbiznis/portbilling/pkg/money"
)

// DraftLine is one service code of an unsaved aggregation result.
// UnitPrice is in the settlement currency at full precision.
type DraftLine struct {
	ServiceCode    string          `json:"service_code"`
	Description    string          `json:"description"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Amount         decimal.Decimal `json:"amount"`
	VatCode        string          `json:"vat_code"`
	VatRate        decimal.Decimal `json:"vat_rate"`
	TariffCurrency string          `json:"tariff_currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	RateDate       time.Time       `json:"rate_date"`
	RateIsFallback bool            `json:"rate_is_fallback"`
}

// Draft is a recomputable aggregation result for one (customer, period) key.
type Draft struct {
	CustomerCode string                           `json:"customer_code"`
	Period       billingcycledomain.BillingPeriod `json:"period"`
	Currency     string                           `json:"currency"`
	Lines        []DraftLine                      `json:"lines"`
	Subtotal     decimal.Decimal                  `json:"subtotal"`
	VatAmount    decimal.Decimal                  `json:"vat_amount"`
	GrandTotal   decimal.Decimal                  `json:"grand_total"`
}

// NewDraft orders lines by service code and computes every total.
// Rounding happens only at line amounts and the VAT total.
func NewDraft(customerCode string, period billingcycledomain.BillingPeriod, currency string, lines []DraftLine) Draft {
	out := make([]DraftLine, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ServiceCode < out[j].ServiceCode
	})

	subtotal := decimal.Zero
	vatBase := decimal.Zero
	for i := range out {
		out[i].Amount = money.Round2(out[i].UnitPrice.Mul(decimal.NewFromInt(out[i].Quantity)))
		subtotal = subtotal.Add(out[i].Amount)
		vatBase = vatBase.Add(money.Percent(out[i].Amount, out[i].VatRate))
	}
	vat := money.Round2(vatBase)

	return Draft{
		CustomerCode: strings.ToUpper(strings.TrimSpace(customerCode)),
		Period:       period,
		Currency:     currency,
		Lines:        out,
		Subtotal:     subtotal,
		VatAmount:    vat,
		GrandTotal:   subtotal.Add(vat),
	}
}

// InvoiceNumber is a pure function of customer and period.
func (d Draft) InvoiceNumber() (string, error) {
	return InvoiceNumber(d.CustomerCode, d.Period)
}

func InvoiceNumber(customerCode string, period billingcycledomain.BillingPeriod) (string, error) {
	number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, customerCode, period)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInvoiceNumber, err)
	}
	return number, nil
}

// Validate checks the total invariants.
func (d Draft) Validate() error {
	if len(d.Lines) == 0 {
		return ErrNoBillableLines
	}
	if d.Period.IsZero() || d.CustomerCode == "" || d.Currency == "" {
		return ErrInvalidDraft
	}
	sum := decimal.Zero
	for _, line := range d.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: non-positive quantity on %s", ErrInvalidDraft, line.ServiceCode)
		}
		sum = sum.Add(line.Amount)
	}
	if !sum.Equal(d.Subtotal) {
		return fmt.Errorf("%w: subtotal %s != sum of lines %s", ErrInvalidDraft, d.Subtotal, sum)
	}
	if !d.Subtotal.Add(d.VatAmount).Equal(d.GrandTotal) {
		return fmt.Errorf("%w: grand total mismatch", ErrInvalidDraft)
	}
	return nil
}

// Checksum hashes the billable content: currency, totals and lines.
func (d Draft) Checksum() string {
	return contentChecksum(d.Currency, d.Subtotal, d.VatAmount, d.GrandTotal, d.Lines)
}

// Snapshot renders the draft for the conflict audit trail.
func (d Draft) Snapshot() map[string]any {
	lines := make([]map[string]any, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, map[string]any{
			"service_code":     line.ServiceCode,
			"quantity":         line.Quantity,
			"unit_price":       line.UnitPrice.String(),
			"amount":           line.Amount.String(),
			"vat_rate":         line.VatRate.String(),
			"tariff_currency":  line.TariffCurrency,
			"exchange_rate":    line.ExchangeRate.String(),
			"rate_date":        billingcycledomain.FormatDate(line.RateDate),
			"rate_is_fallback": line.RateIsFallback,
		})
	}
	return map[string]any{
		"customer_code": d.CustomerCode,
		"period":        d.Period.Key(),
		"currency":      d.Currency,
		"subtotal":      d.Subtotal.String(),
		"vat_amount":    d.VatAmount.String(),
		"grand_total":   d.GrandTotal.String(),
		"checksum":      d.Checksum(),
		"lines":         lines,
	}
}

func contentChecksum(currency string, subtotal, vat, grand decimal.Decimal, lines []DraftLine) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s\n", currency, subtotal.String(), vat.String(), grand.String())
	for _, line := range lines {
		fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%t\n",
			line.ServiceCode,
			line.Description,
			line.Quantity,
			line.UnitPrice.String(),
			line.Amount.String(),
			line.VatCode,
			line.VatRate.String(),
			line.TariffCurrency,
			line.ExchangeRate.String(),
			billingcycledomain.FormatDate(line.RateDate),
			line.RateIsFallback,
		)
	}
	return hex.EncodeToString(h.Sum(nil))
}
