package pipeline

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	march5 := civil.Date{Year: 2024, Month: time.March, Day: 5}

	tests := []struct {
		name  string
		raw   string
		order domain.DateOrder
		want  civil.Date
	}{
		{name: "DMY slashes", raw: "05/03/2024", order: domain.DateOrderDMY, want: march5},
		{name: "MDY slashes", raw: "03/05/2024", order: domain.DateOrderMDY, want: march5},
		{name: "YMD dashes", raw: "2024-03-05", order: domain.DateOrderYMD, want: march5},
		{name: "ISO under DMY", raw: "2024-03-05", order: domain.DateOrderDMY, want: march5},
		{name: "dots", raw: "5.3.2024", order: domain.DateOrderDMY, want: march5},
		{name: "two digit year", raw: "05/03/24", order: domain.DateOrderDMY, want: march5},
		{name: "month name", raw: "5 Mar 2024", order: domain.DateOrderDMY, want: march5},
		{name: "month name first", raw: "March 5, 2024", order: domain.DateOrderMDY, want: march5},
		{name: "month name with year first", raw: "2024-Mar-05", order: domain.DateOrderDMY, want: march5},
		{name: "trailing time", raw: "05/03/2024 10:22:33", order: domain.DateOrderDMY, want: march5},
		{name: "RFC 3339", raw: "2024-03-05T10:22:33Z", order: domain.DateOrderDMY, want: march5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.raw, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		order domain.DateOrder
	}{
		{name: "empty", raw: "", order: domain.DateOrderDMY},
		{name: "text", raw: "yesterday", order: domain.DateOrderDMY},
		{name: "month 13", raw: "01/13/2024", order: domain.DateOrderDMY},
		{name: "february 30", raw: "30/02/2024", order: domain.DateOrderDMY},
		{name: "two parts", raw: "03/2024", order: domain.DateOrderDMY},
		{name: "three digit year", raw: "05/03/202", order: domain.DateOrderDMY},
		{name: "wrong order", raw: "25/12/2024", order: domain.DateOrderMDY},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDate(tt.raw, tt.order)
			assert.ErrorIs(t, err, errBadDate)
		})
	}
}
