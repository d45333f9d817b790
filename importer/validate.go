package importer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"dealerpay/domain"
	"dealerpay/tabfile"
)

var (
	gstPattern    = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	panPattern    = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
)

// ParseDealerRow validates one dealer template row. All violations are
// collected; an empty reason slice means the dealer is safe to persist.
func ParseDealerRow(row tabfile.Row, createdBy int64) (*domain.Dealer, []string) {
	get := func(key string) string { return strings.TrimSpace(row.Fields[key]) }

	d := &domain.Dealer{
		DealerCode:    get("dealer_code"),
		DealerName:    get("dealer_name"),
		GSTNumber:     get("gst_number"),
		PANNumber:     get("pan_number"),
		State:         get("state"),
		Email:         get("email"),
		Mobile:        get("mobile"),
		Address:       get("address"),
		City:          get("city"),
		Pincode:       get("pincode"),
		BankName:      get("bank_name"),
		AccountNumber: get("account_number"),
		IFSCCode:      get("ifsc_code"),
		Branch:        get("branch"),
		Status:        domain.DealerStatusPending,
		CreatedBy:     createdBy,
	}

	var reasons []string
	if d.DealerCode == "" {
		reasons = append(reasons, "Dealer code is required")
	}
	if d.DealerName == "" {
		reasons = append(reasons, "Dealer name is required")
	}
	if d.GSTNumber == "" {
		reasons = append(reasons, "GST number is required")
	} else if !gstPattern.MatchString(d.GSTNumber) {
		reasons = append(reasons, "Invalid GST format")
	}
	if d.PANNumber == "" {
		reasons = append(reasons, "PAN number is required")
	} else if !panPattern.MatchString(d.PANNumber) {
		reasons = append(reasons, "Invalid PAN format")
	}
	if d.State == "" {
		reasons = append(reasons, "State is required")
	}
	if d.Email == "" {
		reasons = append(reasons, "Email is required")
	} else if !emailPattern.MatchString(d.Email) {
		reasons = append(reasons, "Invalid email format")
	}
	if d.Mobile == "" {
		reasons = append(reasons, "Mobile number is required")
	} else if !mobilePattern.MatchString(d.Mobile) {
		reasons = append(reasons, "Invalid mobile number")
	}
	if len(reasons) > 0 {
		return nil, reasons
	}
	return d, nil
}

// PayoutRow is a validated payout template row ready for calculation.
type PayoutRow struct {
	DealerCode      string
	PayoutType      string
	BaseAmount      float64
	IncentiveAmount float64
	DeductionAmount float64
	RecoveryAmount  float64
}

// ParsePayoutRow validates one payout template row. Deduction and recovery are
// optional and default to zero when the column is empty, but a present value
// that does not parse as a number rejects the row.
func ParsePayoutRow(row tabfile.Row) (*PayoutRow, []string) {
	get := func(key string) string { return strings.TrimSpace(row.Fields[key]) }

	p := &PayoutRow{
		DealerCode: get("dealer_code"),
		PayoutType: get("payout_type"),
	}

	var reasons []string
	if p.DealerCode == "" {
		reasons = append(reasons, "Dealer code is required")
	}
	if p.PayoutType == "" {
		reasons = append(reasons, "Payout type is required")
	}

	p.BaseAmount = parseRequiredAmount(get("base_amount"), "Base amount", &reasons)
	p.IncentiveAmount = parseRequiredAmount(get("incentive_amount"), "Incentive amount", &reasons)
	p.DeductionAmount = parseOptionalAmount(get("deduction_amount"), "Deduction amount", &reasons)
	p.RecoveryAmount = parseOptionalAmount(get("recovery_amount"), "Recovery amount", &reasons)

	if len(reasons) > 0 {
		return nil, reasons
	}
	return p, nil
}

func parseRequiredAmount(raw, label string, reasons *[]string) float64 {
	if raw == "" {
		*reasons = append(*reasons, label+" is required")
		return 0
	}
	return parseAmount(raw, label, reasons)
}

func parseOptionalAmount(raw, label string, reasons *[]string) float64 {
	if raw == "" {
		return 0
	}
	return parseAmount(raw, label, reasons)
}

func parseAmount(raw, label string, reasons *[]string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	// ParseFloat accepts "NaN" and "Inf"; those are not money.
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*reasons = append(*reasons, fmt.Sprintf("Invalid %s value: %s", strings.ToLower(label), raw))
		return 0
	}
	if v < 0 {
		*reasons = append(*reasons, label+" must be non-negative")
		return 0
	}
	return v
}
