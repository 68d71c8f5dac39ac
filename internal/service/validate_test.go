package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimart/orders/internal/domain"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "local with leading zero", in: "08031234567", want: "+2348031234567"},
		{name: "local with separators", in: "0803 123-4567", want: "+2348031234567"},
		{name: "international", in: "+44 20 7946 0958", want: "+442079460958"},
		{name: "parentheses", in: "+1 (555) 123-4567", want: "+15551234567"},
		{name: "letters rejected", in: "0803abc4567", wantErr: true},
		{name: "too short", in: "12345", wantErr: true},
		{name: "too long", in: "+1234567890123456", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizePhone(tc.in)
			if tc.wantErr {
				var validation *ValidationError
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, "phone", validation.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateContact(t *testing.T) {
	t.Run("valid pickup", func(t *testing.T) {
		info := testContact()
		require.NoError(t, validateContact(&info))
	})

	t.Run("rewrites phone", func(t *testing.T) {
		info := testContact()
		info.Phone = "0803 123 4567"
		require.NoError(t, validateContact(&info))
		assert.Equal(t, "+2348031234567", info.Phone)
	})

	t.Run("bad email", func(t *testing.T) {
		info := testContact()
		info.Email = "not-an-email"
		var validation *ValidationError
		require.ErrorAs(t, validateContact(&info), &validation)
		assert.Equal(t, "email", validation.Field)
	})

	t.Run("delivery requires address", func(t *testing.T) {
		info := testContact()
		info.DeliveryMethod = domain.DeliveryMethodDelivery
		info.Address = "  "
		var validation *ValidationError
		require.ErrorAs(t, validateContact(&info), &validation)
		assert.Equal(t, "address", validation.Field)
	})

	t.Run("delivery with address", func(t *testing.T) {
		info := testContact()
		info.DeliveryMethod = domain.DeliveryMethodDelivery
		info.Address = "12 Broad Street, Lagos"
		require.NoError(t, validateContact(&info))
	})

	t.Run("unknown delivery method", func(t *testing.T) {
		info := testContact()
		info.DeliveryMethod = "DRONE"
		var validation *ValidationError
		require.ErrorAs(t, validateContact(&info), &validation)
		assert.Equal(t, "delivery_method", validation.Field)
	})
}
