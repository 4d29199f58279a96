// Package debt implements interest accrual and amortization math for a
// single debt.
package debt

import (
	"math"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
	daysInYear   = decimal.NewFromInt(365)
)

// PaymentResult carries the interest/principal breakdown of one payment and
// the debt state after it. PrincipalPaid + InterestPaid always equals the
// payment amount.
type PaymentResult struct {
	PrincipalPaid decimal.Decimal
	InterestPaid  decimal.Decimal
	Debt          core.Debt
}

// ProcessPayment applies a payment to the debt.
//
// Monthly compounding debts accrue one period of interest at payment time:
// interest due is amountOwed * APR/12, the payment covers interest first and
// principal with the remainder. Daily-compounding and non-compounding debts
// take the whole payment as principal; daily interest is already folded into
// the owed amount by CatchUpDailyCompounding.
func ProcessPayment(d core.Debt, amount decimal.Decimal) PaymentResult {
	res := PaymentResult{Debt: d}
	switch d.Compounding {
	case core.CompoundMonthly:
		r := d.InterestRate.Div(hundred).Div(monthsInYear)
		interestDue := core.Round2(d.AmountOwed.Mul(r))
		res.InterestPaid = decimal.Min(amount, interestDue)
		res.PrincipalPaid = amount.Sub(res.InterestPaid)
	default:
		res.InterestPaid = decimal.Zero
		res.PrincipalPaid = amount
	}
	res.Debt.AmountOwed = core.Round2(d.AmountOwed.Sub(res.PrincipalPaid))
	return res
}

// ReversePayment re-credits a previously recorded principal portion back
// onto the debt. Interest that would have accrued absent the payment is not
// re-applied; that drift is accepted.
func ReversePayment(d core.Debt, principalPaid decimal.Decimal) core.Debt {
	d.AmountOwed = core.Round2(d.AmountOwed.Add(principalPaid))
	return d
}

// CatchUpDailyCompounding folds accrued daily interest into the owed amount
// of a daily-compounding debt, up to midnight of asOf. Whole days only; the
// result is rounded half-up to cents. Re-invoking with the same asOf is a
// no-op.
func CatchUpDailyCompounding(d core.Debt, asOf core.Date) core.Debt {
	if d.Compounding != core.CompoundDaily {
		return d
	}
	days := asOf.DaysSince(d.LastCompounded)
	if days <= 0 {
		return d
	}
	dailyRate := d.InterestRate.Div(hundred).Div(daysInYear)
	factor := decimal.NewFromInt(1).Add(dailyRate).Pow(decimal.NewFromInt(int64(days)))
	d.AmountOwed = core.Round2(d.AmountOwed.Mul(factor))
	d.LastCompounded = asOf
	return d
}

// Amortization is the projected payoff schedule for a fixed monthly payment.
// When the payment cannot retire the debt, Insufficient is true and
// TermMonths is +Inf.
type Amortization struct {
	TermMonths    float64
	TotalInterest decimal.Decimal
	Insufficient  bool
}

// Amortize projects how many months a fixed payment needs to retire the
// principal at the given monthly rate, and the total interest paid along the
// way. A payment at or below the monthly accruing interest never converges;
// that is reported as the Insufficient condition rather than an error.
func Amortize(principal, monthlyPayment, monthlyRate decimal.Decimal) Amortization {
	if monthlyPayment.LessThanOrEqual(decimal.Zero) {
		return Amortization{TermMonths: math.Inf(1), Insufficient: true}
	}
	if monthlyRate.IsZero() {
		n, _ := principal.Div(monthlyPayment).Float64()
		return Amortization{TermMonths: n, TotalInterest: decimal.Zero}
	}
	if monthlyPayment.LessThanOrEqual(principal.Mul(monthlyRate)) {
		return Amortization{TermMonths: math.Inf(1), Insufficient: true}
	}

	p, _ := principal.Float64()
	m, _ := monthlyPayment.Float64()
	r, _ := monthlyRate.Float64()
	n := -math.Log(1-p*r/m) / math.Log(1+r)
	total := core.Round2(decimal.NewFromFloat(n*m - p))
	return Amortization{TermMonths: n, TotalInterest: total}
}
