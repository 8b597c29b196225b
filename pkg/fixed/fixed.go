package fixed

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Num is an 18-decimal fixed-point number backed by big.Int.
// The raw integer value represents value × 10^18 (wad scaling), matching
// the on-chain representation the vault ledger settles in.
//
// Num is immutable: every operation returns a new value. The zero value
// of Num is usable and equals 0.
type Num struct {
	i *big.Int
}

// wad is the fixed-point scale factor (10^18).
var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Zero returns the zero value
func Zero() Num {
	return Num{}
}

// FromBig wraps a raw wad-scaled integer
func FromBig(i *big.Int) Num {
	if i == nil {
		return Num{}
	}
	return Num{i: new(big.Int).Set(i)}
}

// FromInt64 converts whole units to fixed-point (1 -> 10^18)
func FromInt64(units int64) Num {
	return Num{i: new(big.Int).Mul(big.NewInt(units), wad)}
}

// FromDecimal converts a decimal to fixed-point, truncating past 18 places
func FromDecimal(d decimal.Decimal) Num {
	return Num{i: d.Shift(18).Truncate(0).BigInt()}
}

// Parse converts a decimal string ("2000.5") to fixed-point
func Parse(s string) (Num, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Num{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for constants in tests and wiring; panics on bad input
func MustParse(s string) Num {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// big returns the backing integer, treating the zero value as 0
func (n Num) big() *big.Int {
	if n.i == nil {
		return new(big.Int)
	}
	return n.i
}

// Big returns a copy of the raw wad-scaled integer
func (n Num) Big() *big.Int {
	return new(big.Int).Set(n.big())
}

// Decimal converts back to a decimal value
func (n Num) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(n.big(), -18)
}

// Add returns n + m
func (n Num) Add(m Num) Num {
	return Num{i: new(big.Int).Add(n.big(), m.big())}
}

// Sub returns n - m
func (n Num) Sub(m Num) Num {
	return Num{i: new(big.Int).Sub(n.big(), m.big())}
}

// Mul returns n × m with wad scaling: (n·m)/10^18.
// Truncates toward zero, the same as EVM integer math.
func (n Num) Mul(m Num) Num {
	p := new(big.Int).Mul(n.big(), m.big())
	return Num{i: p.Quo(p, wad)}
}

// Div returns n ÷ m with wad scaling: (n·10^18)/m.
// Truncates toward zero. m must be non-zero.
func (n Num) Div(m Num) Num {
	p := new(big.Int).Mul(n.big(), wad)
	return Num{i: p.Quo(p, m.big())}
}

// MulUint returns n × k for an integer multiplier (no rescaling needed)
func (n Num) MulUint(k uint64) Num {
	return Num{i: new(big.Int).Mul(n.big(), new(big.Int).SetUint64(k))}
}

// Neg returns -n
func (n Num) Neg() Num {
	return Num{i: new(big.Int).Neg(n.big())}
}

// Abs returns |n|
func (n Num) Abs() Num {
	return Num{i: new(big.Int).Abs(n.big())}
}

// Cmp compares n and m: -1 if n < m, 0 if equal, +1 if n > m
func (n Num) Cmp(m Num) int {
	return n.big().Cmp(m.big())
}

// Sign returns -1, 0, or +1
func (n Num) Sign() int {
	return n.big().Sign()
}

// IsZero reports whether n == 0
func (n Num) IsZero() bool {
	return n.big().Sign() == 0
}

// Equal reports whether n == m
func (n Num) Equal(m Num) bool {
	return n.Cmp(m) == 0
}

// String renders the decimal value ("500", "0.5")
func (n Num) String() string {
	return n.Decimal().String()
}

// MarshalJSON encodes as a decimal string to keep full precision over the wire
func (n Num) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or bare JSON number
func (n *Num) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	n.i = parsed.big()
	return nil
}
