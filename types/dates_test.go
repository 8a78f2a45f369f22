package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       DateRange
		wantErr bool
	}{
		{name: "empty", r: DateRange{}},
		{name: "year bounds", r: DateRange{Start: "2015", End: "2020"}},
		{name: "mixed granularity", r: DateRange{Start: "2015-06", End: "2020"}},
		{name: "day bounds", r: DateRange{Start: "2020-01-01", End: "2020-12-31"}},
		{name: "open start", r: DateRange{End: "2020"}},
		{name: "open end", r: DateRange{Start: "2020"}},
		{name: "equal year bounds", r: DateRange{Start: "2020", End: "2020"}},
		{name: "reversed", r: DateRange{Start: "2021", End: "2020"}, wantErr: true},
		{name: "reversed within year", r: DateRange{Start: "2020-07", End: "2020-03"}, wantErr: true},
		{name: "bad format", r: DateRange{Start: "2020/01"}, wantErr: true},
		{name: "bad month width", r: DateRange{Start: "2020-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrInvalidRequest, GetErrorCode(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDateRangeContains(t *testing.T) {
	tests := []struct {
		name string
		r    DateRange
		date string
		want bool
	}{
		{name: "inside year bounds", r: DateRange{Start: "2015", End: "2020"}, date: "2018", want: true},
		{name: "before start", r: DateRange{Start: "2015", End: "2020"}, date: "2014-12", want: false},
		{name: "after end", r: DateRange{Start: "2015", End: "2020"}, date: "2021-01-01", want: false},
		{name: "year overlaps month end", r: DateRange{End: "2020-06"}, date: "2020", want: true},
		{name: "month inside year", r: DateRange{Start: "2020", End: "2020"}, date: "2020-12", want: true},
		{name: "day at start boundary", r: DateRange{Start: "2020-03"}, date: "2020-03-01", want: true},
		{name: "day before start boundary", r: DateRange{Start: "2020-03"}, date: "2020-02-29", want: false},
		{name: "open range", r: DateRange{}, date: "1999", want: true},
		{name: "malformed observation date", r: DateRange{Start: "2015"}, date: "latest", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Contains(tt.date))
		})
	}
}

func TestDateRangeIsZero(t *testing.T) {
	var nilRange *DateRange
	assert.True(t, nilRange.IsZero())
	assert.True(t, (&DateRange{}).IsZero())
	assert.False(t, (&DateRange{Start: "2020"}).IsZero())
}
