// Package ledger computes advisory order figures: ex-tax and inc-tax
// totals, delivered value, amount paid, and amount pending. All
// computations are pure and error-free; malformed line data contributes
// zero instead of failing, matching the screens these figures feed.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/armature-build/armature/internal/money"
	"github.com/armature-build/armature/internal/procure"
)

// Totals holds order value before and after tax.
type Totals struct {
	ExTax  decimal.Decimal
	IncTax decimal.Decimal
}

// PaidStatuses is the payment status set counted as transferred.
var PaidStatuses = StatusSet(procure.PaymentPaid)

// PendingStatuses is the payment status set counted as in-flight.
var PendingStatuses = StatusSet(procure.PaymentRequested, procure.PaymentApproved)

// StatusSet builds a payment status set.
func StatusSet(statuses ...procure.PaymentStatus) map[procure.PaymentStatus]struct{} {
	set := make(map[procure.PaymentStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// ComputeTotals sums order lines into ex-tax and inc-tax totals.
func ComputeTotals(order procure.Order) Totals {
	totals := Totals{ExTax: decimal.Zero, IncTax: decimal.Zero}
	for _, line := range order.Lines {
		lineValue := line.Rate.Mul(line.Quantity)
		totals.ExTax = totals.ExTax.Add(lineValue)
		totals.IncTax = totals.IncTax.Add(lineValue).Add(money.ApplyTax(lineValue, line.TaxPercent))
	}
	return totals
}

// ComputeDeliveredValue sums rate times delivered quantity. Service
// requests have no delivery concept; ok is false for them.
func ComputeDeliveredValue(order procure.Order) (decimal.Decimal, bool) {
	if order.Type == procure.ParentServiceRequest {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, line := range order.Lines {
		total = total.Add(line.Rate.Mul(line.DeliveredQuantity))
	}
	return total, true
}

// ComputeAmountPaid sums the gross amount of payments whose status is in
// the given set. TDS is tracked on the record but not subtracted; paid
// amount is the gross transferred amount.
func ComputeAmountPaid(payments []procure.Payment, statuses map[procure.PaymentStatus]struct{}) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if _, ok := statuses[p.Status]; ok {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// ComputeAmountPending returns max(0, inc-tax total minus amount paid)
// for the order's own payments.
func ComputeAmountPending(order procure.Order, payments []procure.Payment) decimal.Decimal {
	paid := ComputeAmountPaid(PaymentsFor(order, payments), PaidStatuses)
	pending := ComputeTotals(order).IncTax.Sub(paid)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// PaymentsFor filters payments belonging to the order.
func PaymentsFor(order procure.Order, payments []procure.Payment) []procure.Payment {
	var out []procure.Payment
	for _, p := range payments {
		if p.DocumentName == order.ID {
			out = append(out, p)
		}
	}
	return out
}

// Summary is the full advisory figure set for one order.
type Summary struct {
	TotalExTax     decimal.Decimal
	TotalIncTax    decimal.Decimal
	DeliveredValue decimal.Decimal
	HasDelivery    bool
	AmountPaid     decimal.Decimal
	AmountPending  decimal.Decimal
	RoundOff       decimal.Decimal
}

// Summarize computes every figure for one order against the given
// payment set.
func Summarize(order procure.Order, payments []procure.Payment) Summary {
	totals := ComputeTotals(order)
	own := PaymentsFor(order, payments)
	delivered, hasDelivery := ComputeDeliveredValue(order)
	_, roundOff := money.RoundCurrency(totals.IncTax)
	return Summary{
		TotalExTax:     totals.ExTax,
		TotalIncTax:    totals.IncTax,
		DeliveredValue: delivered,
		HasDelivery:    hasDelivery,
		AmountPaid:     ComputeAmountPaid(own, PaidStatuses),
		AmountPending:  ComputeAmountPending(order, payments),
		RoundOff:       roundOff,
	}
}
