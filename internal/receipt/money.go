package receipt

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Quantity is an exact rational amount of an item. Claims move in steps of
// 1/totalVoters, so float64 would drift after repeated adjustments.
type Quantity struct {
	r *big.Rat
}

func QuantityFromInt(n int64) Quantity {
	return Quantity{r: new(big.Rat).SetInt64(n)}
}

// QuantityRatio returns num/den. den must be non-zero.
func QuantityRatio(num, den int64) Quantity {
	return Quantity{r: big.NewRat(num, den)}
}

func ParseQuantity(s string) (Quantity, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Quantity{}, fmt.Errorf("invalid quantity %q", s)
	}
	return Quantity{r: r}, nil
}

func (q Quantity) rat() *big.Rat {
	if q.r == nil {
		return new(big.Rat)
	}
	return q.r
}

func (q Quantity) Add(o Quantity) Quantity {
	return Quantity{r: new(big.Rat).Add(q.rat(), o.rat())}
}

func (q Quantity) Sub(o Quantity) Quantity {
	return Quantity{r: new(big.Rat).Sub(q.rat(), o.rat())}
}

func (q Quantity) Neg() Quantity {
	return Quantity{r: new(big.Rat).Neg(q.rat())}
}

func (q Quantity) Cmp(o Quantity) int {
	return q.rat().Cmp(o.rat())
}

func (q Quantity) Sign() int {
	return q.rat().Sign()
}

func (q Quantity) IsZero() bool {
	return q.rat().Sign() == 0
}

// String renders the exact value, e.g. "3" or "7/2". Used for persistence;
// ParseQuantity accepts the same format.
func (q Quantity) String() string {
	return q.rat().RatString()
}

// Display renders a human-readable value with up to two decimals.
func (q Quantity) Display() string {
	r := q.rat()
	if r.IsInt() {
		return r.Num().String()
	}
	return r.FloatString(2)
}

// Money is an exact monetary amount. Settlement must satisfy the conservation
// law, so amounts share the rational representation with Quantity.
type Money struct {
	r *big.Rat
}

func MoneyFromInt(n int64) Money {
	return Money{r: new(big.Rat).SetInt64(n)}
}

// MoneyFromDecimal converts an exact decimal price without rounding.
func MoneyFromDecimal(d decimal.Decimal) Money {
	r := new(big.Rat).SetFrac(d.Coefficient(), big.NewInt(1))
	exp := int64(d.Exponent())
	if exp < 0 {
		den := new(big.Int).Exp(big.NewInt(10), big.NewInt(-exp), nil)
		r.Quo(r, new(big.Rat).SetFrac(den, big.NewInt(1)))
	} else if exp > 0 {
		mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
		r.Mul(r, new(big.Rat).SetFrac(mul, big.NewInt(1)))
	}
	return Money{r: r}
}

func ParseMoney(s string) (Money, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Money{}, fmt.Errorf("invalid amount %q", s)
	}
	return Money{r: r}, nil
}

func (m Money) rat() *big.Rat {
	if m.r == nil {
		return new(big.Rat)
	}
	return m.r
}

func (m Money) Add(o Money) Money {
	return Money{r: new(big.Rat).Add(m.rat(), o.rat())}
}

// MulQuantity returns the exact price of q units at unit price m.
func (m Money) MulQuantity(q Quantity) Money {
	return Money{r: new(big.Rat).Mul(m.rat(), q.rat())}
}

func (m Money) Cmp(o Money) int {
	return m.rat().Cmp(o.rat())
}

func (m Money) IsZero() bool {
	return m.rat().Sign() == 0
}

func (m Money) String() string {
	return m.rat().RatString()
}

// Display renders the amount with two decimals for messages.
func (m Money) Display() string {
	return m.rat().FloatString(2)
}
