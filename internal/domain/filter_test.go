package domain

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func TestFilterState_Matches(t *testing.T) {
	rec := FinancialRecord{
		LedgerAccountCode: "80",
		BookingDate:       civil.Date{Year: 2024, Month: time.May, Day: 5},
	}

	tests := []struct {
		name   string
		filter FilterState
		want   bool
	}{
		{"empty filter matches everything", FilterState{}, true},
		{"year selected", FilterState{Years: []int{2023, 2024}}, true},
		{"other year", FilterState{Years: []int{2023}}, false},
		{"month selected", FilterState{Months: []int{5}}, true},
		{"other month", FilterState{Months: []int{6}}, false},
		{"second quarter", FilterState{Quarters: []int{2}}, true},
		{"first quarter", FilterState{Quarters: []int{1}}, false},
		{"account selected", FilterState{Accounts: []string{"80"}}, true},
		{"other account", FilterState{Accounts: []string{"81"}}, false},
		{"all dimensions", FilterState{Years: []int{2024}, Quarters: []int{2}, Accounts: []string{"80"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(rec))
		})
	}
}

func TestFilterState_IsEmpty(t *testing.T) {
	assert.True(t, FilterState{}.IsEmpty())
	assert.False(t, FilterState{Months: []int{1}}.IsEmpty())
}

func TestFinancialRecord_Key(t *testing.T) {
	n := int64(7)
	d := civil.Date{Year: 2024, Month: time.January, Day: 5}

	withNumber := FinancialRecord{LedgerAccountCode: "80", BookingDate: d, BookingNumber: &n}
	withoutNumber := FinancialRecord{LedgerAccountCode: "80", BookingDate: d}

	assert.Equal(t, BusinessKey{LedgerAccountCode: "80", BookingDate: d, BookingNumber: 7, HasBookingNumber: true}, withNumber.Key())
	assert.NotEqual(t, withNumber.Key(), withoutNumber.Key())
}

func TestSnapshot_SizeMB(t *testing.T) {
	s := Snapshot{SizeBytes: 3 * 1024 * 1024 / 2}
	assert.Equal(t, 1.5, s.SizeMB())
}
