package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		absent  bool
		wantErr bool
	}{
		{name: "new year", raw: "01012024", want: "01/01/2024"},
		{name: "end of month", raw: "31122023", want: "31/12/2023"},
		{name: "leap day", raw: "29022024", want: "29/02/2024"},
		{name: "zero date is absent", raw: "00000000", absent: true},
		{name: "leap day in common year", raw: "29022023", wantErr: true},
		{name: "february 30", raw: "30022024", wantErr: true},
		{name: "month 13", raw: "01132024", wantErr: true},
		{name: "day zero", raw: "00012024", wantErr: true},
		{name: "too short", raw: "0101202", wantErr: true},
		{name: "non digits", raw: "01-01-24", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidDate))
				return
			}
			require.NoError(t, err)
			if tt.absent {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestNormalizeDate_RoundTripsEveryDayOfLeapYear(t *testing.T) {
	days := []int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	for m, n := range days {
		for d := 1; d <= n; d++ {
			raw := pad2(d) + pad2(m+1) + "2024"
			got, err := NormalizeDate(raw)
			require.NoError(t, err, raw)
			assert.Equal(t, pad2(d)+"/"+pad2(m+1)+"/2024", *got)
		}
	}
}

func TestNormalizeSignedDecimal(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{raw: "123.45", want: "123.45"},
		{raw: "  123.45  ", want: "123.45"},
		{raw: "123.45-", want: "-123.45"},
		{raw: "500-", want: "-500"},
		{raw: "-500", want: "-500"},
		{raw: "1,234.50", want: "1234.5"},
		{raw: "BHD 10.000", want: "10"},
		{raw: "+42", want: "42"},
		{raw: "0", want: "0"},
		{raw: "", wantErr: ErrEmptyValue},
		{raw: "   ", wantErr: ErrEmptyValue},
		{raw: "abc", wantErr: ErrInvalidNumber},
		{raw: "1.2.3", wantErr: ErrInvalidNumber},
		{raw: "-", wantErr: ErrInvalidNumber},
		{raw: "5-5", wantErr: ErrInvalidNumber},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeSignedDecimal(tt.raw)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNormalizeSignedDecimal_TrailingMinusMatchesLeadingMinus(t *testing.T) {
	for _, v := range []string{"0.5", "500", "123.45", "99999999.999"} {
		trailing, err := NormalizeSignedDecimal(v + "-")
		require.NoError(t, err)
		leading, err := NormalizeSignedDecimal("-" + v)
		require.NoError(t, err)
		assert.True(t, trailing.Equal(leading), v)
	}
}

func TestNormalizeScaledAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "1000", want: "1.000"},
		{raw: "1000.50", want: "1000.500"},
		{raw: "0", want: "0.000"},
		{raw: "1500-", want: "-1.500"},
		{raw: "-25", want: "-0.025"},
		{raw: "12.3456", want: "12.346"},
		{raw: "12.3454", want: "12.345"},
		{raw: "1", want: "0.001"},
		{raw: "5.0", want: "0.005"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeScaledAmount(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(3))
		})
	}
}

func TestNormalizeScaledAmount_PropagatesErrors(t *testing.T) {
	_, err := NormalizeScaledAmount("")
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = NormalizeScaledAmount("x.y.z")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
