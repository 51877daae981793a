package sales

import (
	"fmt"
	"strings"
	"time"
)

// Receipt is the printable summary of a committed sale.
type Receipt struct {
	TransactionID  string            `json:"transaction_id"`
	Items          []TransactionItem `json:"items"`
	Total          Amount            `json:"total"`
	AmountReceived Amount            `json:"amount_received"`
	Change         Amount            `json:"change"`
	Timestamp      time.Time         `json:"timestamp"`
	// Offline is set when the sale was queued for later synchronization.
	Offline bool `json:"offline"`
}

const receiptRule = "--------------------------------"

// Text renders the receipt as plain text for line printers.
func (r Receipt) Text(currency string, exponent int32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Receipt %s\n", r.TransactionID)
	fmt.Fprintf(&b, "%s\n", r.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString(receiptRule + "\n")
	for _, item := range r.Items {
		sub := item.UnitPrice * Amount(item.Quantity)
		fmt.Fprintf(&b, "%s x%d @ %s = %s\n",
			item.ProductName, item.Quantity,
			item.UnitPrice.Format("", exponent), sub.Format("", exponent))
	}
	b.WriteString(receiptRule + "\n")
	fmt.Fprintf(&b, "Total: %s\n", r.Total.Format(currency, exponent))
	fmt.Fprintf(&b, "Received: %s\n", r.AmountReceived.Format(currency, exponent))
	fmt.Fprintf(&b, "Change: %s\n", r.Change.Format(currency, exponent))
	if r.Offline {
		b.WriteString("(offline, pending sync)\n")
	}
	return b.String()
}
