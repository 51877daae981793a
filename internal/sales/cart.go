package sales

import "fmt"

// Banknotes lists the tender denominations offered at the register, in IQD.
var Banknotes = []Amount{250, 1000, 5000, 10000, 25000, 50000}

// Cart is the cashier's working order. It is not safe for concurrent use.
type Cart struct {
	lines []CartLine
}

// Add puts qty units of the product in the cart, merging with an existing line.
func (c *Cart) Add(p Product, qty int64) {
	c.AddLine(CartLine{ProductID: p.ID, Name: p.Name, UnitPrice: p.Price, Quantity: qty})
}

// AddLine appends l, or adds its quantity to the line already holding the
// product. The existing line keeps its name and price. Non-positive
// quantities are ignored.
func (c *Cart) AddLine(l CartLine) {
	if l.Quantity <= 0 {
		return
	}
	for i := range c.lines {
		if c.lines[i].ProductID == l.ProductID {
			c.lines[i].Quantity += l.Quantity
			return
		}
	}
	c.lines = append(c.lines, l)
}

// Lines returns a copy of the cart lines in the order they were added.
func (c *Cart) Lines() []CartLine {
	return append([]CartLine(nil), c.lines...)
}

func (c *Cart) Total() Amount {
	return Total(c.lines)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Total sums the line subtotals.
func Total(lines []CartLine) Amount {
	var total Amount
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// Tender returns the change due for a payment.
func Tender(total, received Amount) (Amount, error) {
	if received < total {
		return 0, fmt.Errorf("%w: received %d, total %d", ErrInsufficientPayment, received, total)
	}
	return received - total, nil
}
