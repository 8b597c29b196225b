package fixed

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestFromInt64(t *testing.T) {
	n := FromInt64(500)

	want, _ := new(big.Int).SetString("500000000000000000000", 10)
	if n.Big().Cmp(want) != 0 {
		t.Errorf("raw value = %s, want %s", n.Big(), want)
	}
	if n.String() != "500" {
		t.Errorf("String() = %s, want 500", n.String())
	}
}

func TestParse(t *testing.T) {
	n, err := Parse("0.5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	want, _ := new(big.Int).SetString("500000000000000000", 10)
	if n.Big().Cmp(want) != 0 {
		t.Errorf("raw value = %s, want %s", n.Big(), want)
	}

	if _, err := Parse("not-a-number"); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestZeroValueUsable(t *testing.T) {
	var n Num
	if !n.IsZero() {
		t.Error("zero value should equal 0")
	}
	if got := n.Add(FromInt64(3)); !got.Equal(FromInt64(3)) {
		t.Errorf("0 + 3 = %s, want 3", got)
	}
}

func TestMulDiv(t *testing.T) {
	// syntheticSize = amount × leverage ÷ price: 500 × 2 / 2000 = 0.5
	amount := FromInt64(500)
	price := FromInt64(2000)
	size := amount.MulUint(2).Div(price)

	if !size.Equal(MustParse("0.5")) {
		t.Errorf("size = %s, want 0.5", size)
	}

	// pnl = size × delta: 0.5 × 1000 = 500
	pnl := size.Mul(FromInt64(1000))
	if !pnl.Equal(FromInt64(500)) {
		t.Errorf("pnl = %s, want 500", pnl)
	}
}

func TestTruncationTowardZero(t *testing.T) {
	// 1 / 3 truncates: 0.333...3 with exactly 18 places
	got := FromInt64(1).Div(FromInt64(3))
	want, _ := new(big.Int).SetString("333333333333333333", 10)
	if got.Big().Cmp(want) != 0 {
		t.Errorf("1/3 raw = %s, want %s", got.Big(), want)
	}

	// negative division also truncates toward zero (EVM semantics)
	got = FromInt64(-1).Div(FromInt64(3))
	if got.Big().Cmp(new(big.Int).Neg(want)) != 0 {
		t.Errorf("-1/3 raw = %s, want -%s", got.Big(), want)
	}
}

func TestSignNegAbs(t *testing.T) {
	n := FromInt64(5).Sub(FromInt64(8))
	if n.Sign() != -1 {
		t.Errorf("sign = %d, want -1", n.Sign())
	}
	if !n.Abs().Equal(FromInt64(3)) {
		t.Errorf("abs = %s, want 3", n.Abs())
	}
	if !n.Neg().Equal(FromInt64(3)) {
		t.Errorf("neg = %s, want 3", n.Neg())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		V Num `json:"v"`
	}

	data, err := json.Marshal(wrapper{V: MustParse("1234.5")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"v":"1234.5"}` {
		t.Errorf("marshal = %s", data)
	}

	var w wrapper
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !w.V.Equal(MustParse("1234.5")) {
		t.Errorf("round trip = %s, want 1234.5", w.V)
	}

	// bare numbers are accepted too
	if err := json.Unmarshal([]byte(`{"v":42}`), &w); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if !w.V.Equal(FromInt64(42)) {
		t.Errorf("number = %s, want 42", w.V)
	}
}
