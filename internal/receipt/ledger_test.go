package receipt

import "testing"

func testCatalog() Catalog {
	return Normalize([]RawItem{
		{Name: "пицца маргарита", UnitPrice: MoneyFromInt(100), Quantity: 4},
		{Name: "кола", UnitPrice: MoneyFromInt(90), Quantity: 2},
	})
}

func TestTryAdjustClamps(t *testing.T) {
	tests := []struct {
		name       string
		deltas     []Quantity
		wantActual []Quantity
		wantFinal  Quantity
	}{
		{
			name:       "simple increments",
			deltas:     []Quantity{QuantityFromInt(1), QuantityFromInt(1)},
			wantActual: []Quantity{QuantityFromInt(1), QuantityFromInt(1)},
			wantFinal:  QuantityFromInt(2),
		},
		{
			name:       "overshoot is clamped to capacity",
			deltas:     []Quantity{QuantityFromInt(3), QuantityFromInt(3)},
			wantActual: []Quantity{QuantityFromInt(3), QuantityFromInt(1)},
			wantFinal:  QuantityFromInt(4),
		},
		{
			name:       "increment at capacity is a no-op",
			deltas:     []Quantity{QuantityFromInt(4), QuantityFromInt(1)},
			wantActual: []Quantity{QuantityFromInt(4), QuantityFromInt(0)},
			wantFinal:  QuantityFromInt(4),
		},
		{
			name:       "decrement at zero is a no-op",
			deltas:     []Quantity{QuantityFromInt(-1)},
			wantActual: []Quantity{QuantityFromInt(0)},
			wantFinal:  QuantityFromInt(0),
		},
		{
			name:       "undershoot is clamped to zero",
			deltas:     []Quantity{QuantityFromInt(2), QuantityFromInt(-3)},
			wantActual: []Quantity{QuantityFromInt(2), QuantityFromInt(-2)},
			wantFinal:  QuantityFromInt(0),
		},
		{
			name: "fractional steps stay exact",
			deltas: []Quantity{
				QuantityRatio(1, 3), QuantityRatio(1, 3), QuantityRatio(1, 3),
			},
			wantActual: []Quantity{
				QuantityRatio(1, 3), QuantityRatio(1, 3), QuantityRatio(1, 3),
			},
			wantFinal: QuantityFromInt(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(testCatalog())
			for i, d := range tt.deltas {
				actual := l.TryAdjust(0, d)
				if actual.Cmp(tt.wantActual[i]) != 0 {
					t.Errorf("TryAdjust #%d = %s, want %s", i, actual, tt.wantActual[i])
				}
			}
			if got := l.Claimed(0); got.Cmp(tt.wantFinal) != 0 {
				t.Errorf("Claimed() = %s, want %s", got, tt.wantFinal)
			}
		})
	}
}

func TestTryAdjustNeverLeavesRange(t *testing.T) {
	l := NewLedger(testCatalog())
	capacity := QuantityFromInt(4)
	deltas := []Quantity{
		QuantityFromInt(2), QuantityFromInt(5), QuantityFromInt(-1),
		QuantityRatio(-7, 2), QuantityRatio(1, 2), QuantityFromInt(10),
		QuantityFromInt(-10), QuantityRatio(3, 4),
	}
	for i, d := range deltas {
		l.TryAdjust(0, d)
		got := l.Claimed(0)
		if got.Sign() < 0 || got.Cmp(capacity) > 0 {
			t.Fatalf("after delta #%d (%s): claimed %s out of [0, %s]", i, d, got, capacity)
		}
	}
}

func TestTryAdjustUnknownItem(t *testing.T) {
	l := NewLedger(testCatalog())
	if actual := l.TryAdjust(99, QuantityFromInt(1)); !actual.IsZero() {
		t.Errorf("TryAdjust on unknown item = %s, want 0", actual)
	}
	if got := l.Claimed(99); !got.IsZero() {
		t.Errorf("Claimed on unknown item = %s, want 0", got)
	}
}
