package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerpay/tabfile"
)

func dealerFields() map[string]string {
	return map[string]string{
		"dealer_code": "DLR001",
		"dealer_name": "Acme Motors",
		"gst_number":  "27ABCDE1234F1Z5",
		"pan_number":  "ABCDE1234F",
		"state":       "Maharashtra",
		"email":       "acme@example.com",
		"mobile":      "9876543210",
	}
}

func TestParseDealerRowValid(t *testing.T) {
	row := tabfile.Row{Ordinal: 2, Fields: dealerFields()}
	d, reasons := ParseDealerRow(row, 42)
	require.Empty(t, reasons)
	assert.Equal(t, "DLR001", d.DealerCode)
	assert.Equal(t, int64(42), d.CreatedBy)
	assert.Equal(t, "Pending", string(d.Status))
}

func TestParseDealerRowCollectsAllViolations(t *testing.T) {
	fields := dealerFields()
	fields["dealer_code"] = ""
	fields["gst_number"] = "not-a-gst"
	fields["mobile"] = "12345"
	_, reasons := ParseDealerRow(tabfile.Row{Ordinal: 3, Fields: fields}, 1)
	assert.ElementsMatch(t, []string{
		"Dealer code is required",
		"Invalid GST format",
		"Invalid mobile number",
	}, reasons)
}

func TestParseDealerRowFieldFormats(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		value  string
		reason string
	}{
		{"lowercase gst", "gst_number", "27abcde1234f1z5", "Invalid GST format"},
		{"gst missing z", "gst_number", "27ABCDE1234F1X5", "Invalid GST format"},
		{"short pan", "pan_number", "ABC1234F", "Invalid PAN format"},
		{"email without domain dot", "email", "user@host", "Invalid email format"},
		{"email with space", "email", "us er@host.com", "Invalid email format"},
		{"mobile with dash", "mobile", "98765-4321", "Invalid mobile number"},
		{"mobile 11 digits", "mobile", "98765432101", "Invalid mobile number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := dealerFields()
			fields[tc.key] = tc.value
			_, reasons := ParseDealerRow(tabfile.Row{Ordinal: 2, Fields: fields}, 1)
			assert.Equal(t, []string{tc.reason}, reasons)
		})
	}
}

func TestParseDealerRowOptionalColumns(t *testing.T) {
	fields := dealerFields()
	fields["city"] = "Pune"
	fields["ifsc_code"] = "HDFC0001234"
	d, reasons := ParseDealerRow(tabfile.Row{Ordinal: 2, Fields: fields}, 1)
	require.Empty(t, reasons)
	assert.Equal(t, "Pune", d.City)
	assert.Equal(t, "HDFC0001234", d.IFSCCode)
	assert.Empty(t, d.BankName)
}

func payoutFields() map[string]string {
	return map[string]string{
		"dealer_code":      "DLR001",
		"payout_type":      "Incentive",
		"base_amount":      "200000",
		"incentive_amount": "50000",
	}
}

func TestParsePayoutRowValid(t *testing.T) {
	p, reasons := ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: payoutFields()})
	require.Empty(t, reasons)
	assert.Equal(t, 200000.0, p.BaseAmount)
	assert.Equal(t, 50000.0, p.IncentiveAmount)
	assert.Zero(t, p.DeductionAmount)
	assert.Zero(t, p.RecoveryAmount)
}

func TestParsePayoutRowRequiredFields(t *testing.T) {
	_, reasons := ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: map[string]string{}})
	assert.ElementsMatch(t, []string{
		"Dealer code is required",
		"Payout type is required",
		"Base amount is required",
		"Incentive amount is required",
	}, reasons)
}

func TestParsePayoutRowOptionalAmounts(t *testing.T) {
	fields := payoutFields()
	fields["deduction_amount"] = "1500.50"
	fields["recovery_amount"] = ""
	p, reasons := ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: fields})
	require.Empty(t, reasons)
	assert.Equal(t, 1500.50, p.DeductionAmount)
	assert.Zero(t, p.RecoveryAmount)

	// A present but unparsable optional amount rejects the row instead of
	// being silently treated as zero.
	fields["recovery_amount"] = "oops"
	_, reasons = ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: fields})
	assert.Equal(t, []string{"Invalid recovery amount value: oops"}, reasons)
}

func TestParsePayoutRowInvalidRequiredAmount(t *testing.T) {
	fields := payoutFields()
	fields["base_amount"] = "12,000"
	_, reasons := ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: fields})
	assert.Equal(t, []string{"Invalid base amount value: 12,000"}, reasons)
}

func TestParsePayoutRowNegativeAmount(t *testing.T) {
	fields := payoutFields()
	fields["incentive_amount"] = "-10"
	fields["deduction_amount"] = "-1"
	_, reasons := ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: fields})
	assert.ElementsMatch(t, []string{
		"Incentive amount must be non-negative",
		"Deduction amount must be non-negative",
	}, reasons)
}

func TestParsePayoutRowNonFiniteAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"nan", "NaN"},
		{"inf", "Inf"},
		{"plus inf", "+Inf"},
		{"minus inf", "-Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := payoutFields()
			fields["base_amount"] = tt.raw
			_, reasons := ParsePayoutRow(tabfile.Row{Ordinal: 2, Fields: fields})
			assert.Contains(t, reasons, "Invalid base amount value: "+tt.raw)
		})
	}
}
