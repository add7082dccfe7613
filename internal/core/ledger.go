package core

type (
	// Summary is the billing view of one month: count of delivery days, total
	// quantity, the price in effect and the resulting bill.
	Summary struct {
		MilkDays      int   `json:"milk_days"`
		TotalQuantity int   `json:"total_quantity"`
		Price         int64 `json:"price"`
		TotalBill     int64 `json:"total_bill"`
	}

	// Ledger is the derived monthly view combining entries and price.
	Ledger struct {
		Month    Month
		Days     map[string]int // ISO date -> quantity, absent = no delivery
		Summary  Summary
		Editable bool
	}
)

// BuildLedger reduces a month's entries and the price in effect to the
// deterministic billing view: total_bill = total_quantity * price. Price is 0
// when unset; no rounding or currency logic beyond integer multiplication.
func BuildLedger(month Month, entries []Entry, price int64, clock Clock) Ledger {
	days := make(map[string]int, len(entries))
	total := 0
	for _, e := range entries {
		days[e.Day.ISO()] = e.Quantity
		total += e.Quantity
	}

	return Ledger{
		Month: month,
		Days:  days,
		Summary: Summary{
			MilkDays:      len(days),
			TotalQuantity: total,
			Price:         price,
			TotalBill:     int64(total) * price,
		},
		Editable: month.Editable(clock),
	}
}
