package domain

import "cloud.google.com/go/civil"

// FilterState scopes a query by year, month, quarter and ledger account.
// The zero value matches everything. It is owned by the caller and never
// stored by the core.
type FilterState struct {
	Years    []int    `json:"years,omitempty"`
	Months   []int    `json:"months,omitempty"`
	Quarters []int    `json:"quarters,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
}

// IsEmpty reports whether no selection is active.
func (f FilterState) IsEmpty() bool {
	return len(f.Years) == 0 && len(f.Months) == 0 && len(f.Quarters) == 0 && len(f.Accounts) == 0
}

// MatchesDate reports whether d falls inside the year/month/quarter selection.
func (f FilterState) MatchesDate(d civil.Date) bool {
	if len(f.Years) > 0 && !containsInt(f.Years, d.Year) {
		return false
	}
	if len(f.Months) > 0 && !containsInt(f.Months, int(d.Month)) {
		return false
	}
	if len(f.Quarters) > 0 && !containsInt(f.Quarters, (int(d.Month)-1)/3+1) {
		return false
	}
	return true
}

// MatchesAccount reports whether account is selected.
func (f FilterState) MatchesAccount(account string) bool {
	if len(f.Accounts) == 0 {
		return true
	}
	for _, a := range f.Accounts {
		if a == account {
			return true
		}
	}
	return false
}

// Matches applies every active selection to a record.
func (f FilterState) Matches(r FinancialRecord) bool {
	return f.MatchesDate(r.BookingDate) && f.MatchesAccount(r.LedgerAccountCode)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
