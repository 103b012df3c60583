package domain

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTrackingNumber is returned when an invalid tracking number is provided
var ErrInvalidTrackingNumber = errors.New("invalid tracking number")

// Carrier codes detected from tracking number formats
const (
	CarrierUPS     = "UPS"
	CarrierFedEx   = "FEDEX"
	CarrierUSPS    = "USPS"
	CarrierDHL     = "DHL"
	CarrierUnknown = "UNKNOWN"
)

var (
	// UPS: 18 characters starting with "1Z"
	upsPattern = regexp.MustCompile(`^1Z[A-Z0-9]{16}$`)

	// FedEx: 12 or 15 digits
	fedexPattern = regexp.MustCompile(`^\d{12}$|^\d{15}$`)

	// USPS: 20-22 digits
	uspsPattern = regexp.MustCompile(`^\d{20,22}$`)

	// DHL: 10 or 11 digits
	dhlPattern = regexp.MustCompile(`^\d{10,11}$`)

	basicPattern = regexp.MustCompile(`^[A-Z0-9]{8,30}$`)
)

// GeneratedTrackingNumberLength is the length of numbers produced by DefaultTrackingNumberGenerator
const GeneratedTrackingNumberLength = 20

// TrackingNumberGenerator produces a fresh tracking number for a new shipment
type TrackingNumberGenerator func() string

// DefaultTrackingNumberGenerator returns 20 uppercase hex characters of a random UUID
func DefaultTrackingNumberGenerator() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[:GeneratedTrackingNumberLength]
}

// TrackingNumber represents an immutable tracking number value object
type TrackingNumber struct {
	value   string
	carrier string
}

// NewTrackingNumber normalizes and validates a tracking number, detecting its carrier.
// Numbers that match no carrier are accepted when they fit the generic format.
func NewTrackingNumber(trackingNumber string) (TrackingNumber, error) {
	trackingNumber = strings.ToUpper(strings.TrimSpace(trackingNumber))

	if trackingNumber == "" {
		return TrackingNumber{}, errors.New("tracking number cannot be empty")
	}

	carrier := detectCarrier(trackingNumber)
	if carrier == "" {
		if !basicPattern.MatchString(trackingNumber) {
			return TrackingNumber{}, ErrInvalidTrackingNumber
		}
		carrier = CarrierUnknown
	}

	return TrackingNumber{
		value:   trackingNumber,
		carrier: carrier,
	}, nil
}

// IsValidTrackingNumber reports whether s would be accepted by NewTrackingNumber
func IsValidTrackingNumber(s string) bool {
	_, err := NewTrackingNumber(s)
	return err == nil
}

// Carrier returns the detected carrier code
func (tn TrackingNumber) Carrier() string {
	return tn.carrier
}

func (tn TrackingNumber) String() string {
	return tn.value
}

// TrackingURL returns the carrier's public tracking page, or "" for unknown carriers
func (tn TrackingNumber) TrackingURL() string {
	switch tn.carrier {
	case CarrierUPS:
		return "https://www.ups.com/track?tracknum=" + tn.value
	case CarrierFedEx:
		return "https://www.fedex.com/fedextrack/?trknbr=" + tn.value
	case CarrierUSPS:
		return "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + tn.value
	case CarrierDHL:
		return "https://www.dhl.com/en/express/tracking.html?AWB=" + tn.value
	default:
		return ""
	}
}

func detectCarrier(trackingNumber string) string {
	switch {
	case upsPattern.MatchString(trackingNumber):
		return CarrierUPS
	case fedexPattern.MatchString(trackingNumber):
		return CarrierFedEx
	case uspsPattern.MatchString(trackingNumber):
		return CarrierUSPS
	case dhlPattern.MatchString(trackingNumber):
		return CarrierDHL
	default:
		return ""
	}
}
