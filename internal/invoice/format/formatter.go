package format

import (
	"fmt"
	"strings"

	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{CUTOFF}-{CUSTOMER}"

// FormatInvoiceNumber renders the invoice number for a customer and billing
// period. The same inputs always yield the same number.
func FormatInvoiceNumber(
	template string,
	customerCode string,
	period billingcycledomain.BillingPeriod,
) (string, error) {

	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if period.IsZero() {
		return "", fmt.Errorf("invoice number requires a billing period")
	}

	customer := EncodeCustomerCode(customerCode)
	if customer == "" {
		return "", fmt.Errorf("invalid customer code: %q", customerCode)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", period.StartDate.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", period.StartDate.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", period.StartDate.Format("01"))
	out = strings.ReplaceAll(out, "{CUTOFF}", period.CutoffLabel())
	out = strings.ReplaceAll(out, "{CUSTOMER}", customer)

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

// EncodeCustomerCode renders a customer code for use inside an invoice number.
// A-Z, 0-9 and '-' pass through; every other byte becomes '_' plus two hex
// digits, so distinct codes never share a number.
func EncodeCustomerCode(customerCode string) string {
	code := strings.ToUpper(strings.TrimSpace(customerCode))
	var b strings.Builder
	b.Grow(len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02X", c)
	}
	return b.String()
}
