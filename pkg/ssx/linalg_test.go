package ssx

import (
	"math"
	"testing"
)

func TestSolve(t *testing.T) {
	x, ok := solve([][]float64{{2, 1}, {1, 3}}, []float64{3, 5})
	if !ok {
		t.Fatal("solve() reported a singular system")
	}
	if math.Abs(x[0]-0.8) > 1e-12 || math.Abs(x[1]-1.4) > 1e-12 {
		t.Errorf("solve() = %v, want [0.8 1.4]", x)
	}
	if _, ok := solve([][]float64{{1, 2}, {2, 4}}, []float64{1, 2}); ok {
		t.Error("solve() accepted a singular system")
	}
}

func TestMinNorm(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
		rhs  []float64
		want []float64
		ok   bool
	}{
		{"underdetermined", [][]float64{{1, 1}}, []float64{2}, []float64{1, 1}, true},
		{"rank deficient", [][]float64{{1, 0}, {0, 0}}, []float64{3, 1}, []float64{3, 0}, true},
		{"zero", [][]float64{{0, 0}, {0, 0}}, []float64{1, 1}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := minNorm(tt.rows, tt.rhs)
			if ok != tt.ok {
				t.Fatalf("minNorm() ok = %t, want %t", ok, tt.ok)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("minNorm() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}
