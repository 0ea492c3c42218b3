// Package billing holds the pure date and money arithmetic used by
// subscription renewals and plan changes.
//
// Nothing here touches storage or the network. Billing cycles carry both a
// calendar length (months, used to move billing dates) and a nominal day
// count (30, 90 or 365, used for proration):
//
//	next := billing.NextBillingDate(start, billing.Quarterly)
//	p := billing.Prorate(oldPrice, newPrice, billing.Monthly, now, periodEnd)
//	if p.IsCharge() {
//	    cents, _ := billing.ToMinorUnits(p.Amount, "USD")
//	    // charge cents
//	}
//
// Money is represented with shopspring/decimal so that proration results are
// exact; conversion to gateway minor units happens at the edge.
package billing
