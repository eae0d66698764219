package core

// LedgerSummary is the aggregate shown on the members index.
type LedgerSummary struct {
	MemberCount  int
	TotalBalance Money
}

// BalanceDrift describes a member whose cached balance no longer matches
// the sum of its transactions.
type BalanceDrift struct {
	MemberID int64
	Number   string
	Balance  Money
	Expected Money
}

// Delta is how far the cached balance is off.
func (d BalanceDrift) Delta() Money {
	return d.Balance.Sub(d.Expected)
}
