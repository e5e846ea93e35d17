package domain

import "fmt"

// Money is an amount in US cents.
type Money int64

// Dollars returns a Money value for a whole-dollar amount.
func Dollars(d int64) Money { return Money(d * 100) }

func (m Money) Cents() int64 { return int64(m) }

// String renders whole-dollar amounts without cents ("$15") and others with them ("$12.50").
func (m Money) String() string {
	if m%100 == 0 {
		return fmt.Sprintf("$%d", int64(m)/100)
	}
	return fmt.Sprintf("$%d.%02d", int64(m)/100, int64(m)%100)
}

// Decimal renders the amount the way the payment gateway expects it ("15.00").
func (m Money) Decimal() string {
	return fmt.Sprintf("%d.%02d", int64(m)/100, int64(m)%100)
}
