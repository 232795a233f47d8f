package format

import (
	"testing"
	"time"

	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func periodFor(t *testing.T, y int, m time.Month, d int) billingcycledomain.BillingPeriod {
	t.Helper()
	p, err := billingcycledomain.DefaultCalendar().PeriodFor(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestFormatInvoiceNumberIsStable(t *testing.T) {
	p := periodFor(t, 2024, time.March, 5)

	first, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "CR-001", p)
	require.NoError(t, err)
	second, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "cr-001", p)
	require.NoError(t, err)

	assert.Equal(t, "INV-202403-07-CR-001", first)
	assert.Equal(t, first, second)
}

func TestFormatInvoiceNumberEndOfMonth(t *testing.T) {
	p := periodFor(t, 2024, time.February, 29)

	number, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "ACME LINES", p)
	require.NoError(t, err)
	assert.Equal(t, "INV-202402-EOM-ACME_20LINES", number)
}

func TestFormatInvoiceNumberDistinctPerPeriod(t *testing.T) {
	a, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "CR-001", periodFor(t, 2024, time.March, 7))
	require.NoError(t, err)
	b, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "CR-001", periodFor(t, 2024, time.March, 8))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	p := periodFor(t, 2024, time.March, 5)

	_, err := FormatInvoiceNumber("", "CR-001", p)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "  ", p)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV-{SEQ}", "CR-001", p)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "CR-001", billingcycledomain.BillingPeriod{})
	assert.Error(t, err)
}

func TestFormatInvoiceNumberKeepsCustomerCodesDistinct(t *testing.T) {
	p := periodFor(t, 2024, time.March, 5)

	seen := map[string]string{}
	for _, code := range []string{"CR-001", "CR.001", "CR_001", "CR 001", "CR001", "-CR-001"} {
		number, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, code, p)
		require.NoError(t, err)
		if other, ok := seen[number]; ok {
			t.Fatalf("%q and %q both map to %s", other, code, number)
		}
		seen[number] = code
	}
	assert.Len(t, seen, 6)
}

func TestEncodeCustomerCode(t *testing.T) {
	assert.Equal(t, "CR-001", EncodeCustomerCode(" cr-001 "))
	assert.Equal(t, "CR_2E001", EncodeCustomerCode("CR.001"))
	assert.Equal(t, "CR_5F001", EncodeCustomerCode("CR_001"))
	assert.Equal(t, "_C3_9CLKER", EncodeCustomerCode("ÜLKER"))
}
