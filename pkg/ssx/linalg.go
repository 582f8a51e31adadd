package ssx

import (
	"gonum.org/v1/gonum/mat"
)

// rankCond is the relative singular value below which a direction of a
// system is treated as missing.
const rankCond = 1e-10

func dense(rows [][]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m
}

// solve returns x with m x = rhs for a square m. It reports false for a
// singular or badly conditioned system.
func solve(m [][]float64, rhs []float64) ([]float64, bool) {
	var x mat.VecDense
	if err := x.SolveVec(dense(m), mat.NewVecDense(len(rhs), append([]float64(nil), rhs...))); err != nil {
		return nil, false
	}
	return x.RawVector().Data, true
}

// minNorm returns the least norm, least squares solution of rows x = rhs
// from the SVD of the system. Rank deficient systems are solved in the
// span of their significant singular vectors; a system of rank zero
// reports false.
func minNorm(rows [][]float64, rhs []float64) ([]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(dense(rows), mat.SVDThin) {
		return nil, false
	}
	rank := svd.Rank(rankCond)
	if rank == 0 {
		return nil, false
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, mat.NewVecDense(len(rhs), append([]float64(nil), rhs...)), rank)
	return x.RawVector().Data, true
}
