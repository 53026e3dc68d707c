package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatCurrency(t *testing.T) {
	require.Equal(t, "$1,234.50", FormatCurrency(1234.5))
	require.Equal(t, "$0.00", FormatCurrency(0))
	require.Equal(t, "$1,000,000.00", FormatCurrency(1_000_000))
	require.Equal(t, "-$12.30", FormatCurrency(-12.3))
}

func TestFormatLetterDate(t *testing.T) {
	date := time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "January 5, 2024", FormatLetterDate(date))
	require.Equal(t, "", FormatLetterDate(time.Time{}))
}

func TestMaskSSN(t *testing.T) {
	cases := map[string]string{
		"123-45-6789": "****6789",
		"123456789":   "****6789",
		"XXX-XX-4321": "****4321",
		"****1234":    "****1234",
		"12":          "",
		"":            "",
	}
	for input, want := range cases {
		require.Equal(t, want, MaskSSN(input), input)
	}
}

func TestMaskAccountNumber(t *testing.T) {
	require.Equal(t, "****1234", MaskAccountNumber("4000 1234 5678 1234"))
	require.Equal(t, "****1234", MaskAccountNumber("****1234"))
	require.Equal(t, "XXXX-1234", MaskAccountNumber("XXXX-1234"))
	require.Equal(t, "****AB12", MaskAccountNumber("ZZ-AB12"))
	require.Equal(t, "****42", MaskAccountNumber("42"))
	require.Equal(t, "", MaskAccountNumber("  "))
}

func TestNormalizeBureau(t *testing.T) {
	require.Equal(t, BureauTransUnion, NormalizeBureau(" TransUnion "))
	require.Equal(t, BureauExperian, NormalizeBureau("EXPERIAN"))
	require.True(t, NormalizeBureau("Equifax").Known())
	require.False(t, NormalizeBureau("innovis").Known())
	require.Equal(t, "Experian", BureauExperian.DisplayName())
}

func TestAddressLines(t *testing.T) {
	addr := Address{Street: "123 Main St", City: "Anytown", State: "CA", Zip: "12345"}
	require.Equal(t, []string{"123 Main St", "Anytown, CA 12345"}, addr.Lines())
	require.Empty(t, Address{}.Lines())
}
