package turnover

import (
	"turnline/internal/config"
	"turnline/internal/domain"
	"turnline/internal/money"
)

// TotalShares sums the shares held by active, free persons.
func TotalShares(roster []domain.Person) int {
	total := 0
	for _, p := range roster {
		if p.IsActive() && p.IsFree() && p.Shares > 0 {
			total += p.Shares
		}
	}
	return total
}

// ShareValue is the cash value of one share: the campaign's net worth, less
// large craft when they are excluded, divided by the shares outstanding. It is
// zero when the share system is off or there is nothing to divide.
func ShareValue(c domain.Campaign, roster []domain.Person, opts config.Options) money.Money {
	if !opts.UseShareSystem {
		return money.Zero()
	}
	worth := c.NetWorth
	if opts.SharesExcludeLargeCraft && c.LargeCraftValue.IsPositive() {
		worth = worth.Minus(c.LargeCraftValue)
	}
	total := TotalShares(roster)
	if !worth.IsPositive() || total <= 0 {
		return money.Zero()
	}
	return worth.DividedBy(int64(total))
}
