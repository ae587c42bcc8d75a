package verification

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Failure reasons reported in verifyFailureReason.
const (
	ReasonInvalidFormat     = "Invalid phone number format"
	ReasonUnsupportedRegion = "Unsupported region"
	ReasonDifferentRegion   = "Phone number is registered in a different region"
	ReasonNotFound          = "Phone number not found in records"
)

// E.164 allows at most 15 digits; anything shorter than 7 is not a subscriber number.
const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

var (
	phoneFormatRe  = regexp.MustCompile(`^\+?[0-9][0-9 ().-]*$`)
	regionFormatRe = regexp.MustCompile(`^\+?[0-9]{1,4}$`)
)

// Result is the outcome of a lookup.
type Result struct {
	Verified      bool
	FailureReason string
}

// Verifier looks phone numbers up in a Dataset.
type Verifier struct {
	dataset *Dataset
	logger  *slog.Logger
}

// NewVerifier creates a Verifier. A nil logger uses slog.Default().
func NewVerifier(dataset *Dataset, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{dataset: dataset, logger: logger}
}

// Verify reports whether phone is on record for region. The number may be
// given with or without its region prefix and with common separators.
func (v *Verifier) Verify(ctx context.Context, phone, region string) Result {
	phone = strings.TrimSpace(phone)
	region = strings.TrimSpace(region)

	if !phoneFormatRe.MatchString(phone) {
		return fail(ReasonInvalidFormat)
	}
	digits := digitsOnly(phone)
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return fail(ReasonInvalidFormat)
	}

	if !regionFormatRe.MatchString(region) {
		return fail(ReasonUnsupportedRegion)
	}
	region = digitsOnly(region)
	if !v.dataset.HasRegion(region) {
		return fail(ReasonUnsupportedRegion)
	}

	// National number with the caller's region prepended.
	if rec, ok := v.dataset.lookup(region + digits); ok && rec.Region == region {
		return Result{Verified: true}
	}

	// Number already carrying a region prefix.
	if rec, ok := v.dataset.lookup(digits); ok {
		if rec.Region == region {
			return Result{Verified: true}
		}
		v.logger.DebugContext(ctx, "Phone number registered in another region",
			"requested_region", region,
			"record_region", rec.Region)
		return fail(ReasonDifferentRegion)
	}

	// National number that only exists under another region.
	for other := range v.dataset.regions {
		if other == region {
			continue
		}
		if _, ok := v.dataset.lookup(other + digits); ok {
			return fail(ReasonDifferentRegion)
		}
	}

	return fail(ReasonNotFound)
}

func fail(reason string) Result {
	return Result{FailureReason: reason}
}
