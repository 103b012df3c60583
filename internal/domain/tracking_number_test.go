package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackingNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		carrier string
		wantErr bool
	}{
		{"ups", "1Z999AA10123456784", CarrierUPS, false},
		{"fedex 12 digits", "123456789012", CarrierFedEx, false},
		{"usps", "94001118992231234567", CarrierUSPS, false},
		{"dhl", "1234567890", CarrierDHL, false},
		{"generic lowercase normalized", "  abc12345xyz ", CarrierUnknown, false},
		{"too short", "AB12", "", true},
		{"punctuation", "ABC-12345", "", true},
		{"empty", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn, err := NewTrackingNumber(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.carrier, tn.Carrier())
		})
	}
}

func TestTrackingNumber_TrackingURL(t *testing.T) {
	ups, err := NewTrackingNumber("1Z999AA10123456784")
	require.NoError(t, err)
	assert.Equal(t, "https://www.ups.com/track?tracknum=1Z999AA10123456784", ups.TrackingURL())

	generic, err := NewTrackingNumber("ABCDEF123456")
	require.NoError(t, err)
	assert.Empty(t, generic.TrackingURL())
}

func TestDefaultTrackingNumberGenerator(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tn := DefaultTrackingNumberGenerator()
		assert.Len(t, tn, GeneratedTrackingNumberLength)
		assert.True(t, IsValidTrackingNumber(tn), tn)
		assert.NotEqual(t, "00000000000000000000", tn)
		seen[tn] = true
	}
	assert.Len(t, seen, 100)
}

func TestNewShipment(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	s := NewShipment("id-1", "O1", "U1", "1 Main St", "ABCDEF123456", now)

	assert.Equal(t, "id-1", s.ID)
	assert.Equal(t, "O1", s.OrderID)
	assert.Equal(t, time.UTC, s.ShippingDate.Location())
	assert.True(t, now.Equal(s.ShippingDate))

	c := s.Clone()
	c.OrderID = "O2"
	assert.Equal(t, "O1", s.OrderID)
}
