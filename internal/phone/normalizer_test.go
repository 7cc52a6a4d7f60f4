package phone

import (
	"testing"

	"github.com/hitoshi/userapi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ValidNumbers(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name           string
		countryCode    int
		nationalNumber int64
		want           model.PhoneNumber
	}{
		{
			name:           "フランスの携帯番号",
			countryCode:    33,
			nationalNumber: 612345678,
			want:           model.PhoneNumber{CountryCode: 33, NationalNumber: 612345678},
		},
		{
			name:           "米国の番号",
			countryCode:    1,
			nationalNumber: 2015550123,
			want:           model.PhoneNumber{CountryCode: 1, NationalNumber: 2015550123},
		},
		{
			// "+4" + "42070313000" は +44 20 7031 3000 として再解釈される
			name:           "国番号がパーサーにより再導出される",
			countryCode:    4,
			nationalNumber: 42070313000,
			want:           model.PhoneNumber{CountryCode: 44, NationalNumber: 2070313000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.countryCode, tt.nationalNumber)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_InvalidNumbers(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name           string
		countryCode    int
		nationalNumber int64
	}{
		{name: "桁数不足", countryCode: 33, nationalNumber: 123},
		{name: "存在しない国番号", countryCode: 999, nationalNumber: 123456789},
		{name: "国番号が0", countryCode: 0, nationalNumber: 612345678},
		{name: "負の国内番号", countryCode: 33, nationalNumber: -612345678},
		{name: "負の国番号", countryCode: -33, nationalNumber: 612345678},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.countryCode, tt.nationalNumber)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPhone)
			assert.Equal(t, model.PhoneNumber{}, got)
		})
	}
}

func TestFormatE164(t *testing.T) {
	got := FormatE164(model.PhoneNumber{CountryCode: 33, NationalNumber: 612345678})
	assert.Equal(t, "+33612345678", got)
}
