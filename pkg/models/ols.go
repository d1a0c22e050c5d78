package models

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fitOLS fits y = intercept + coef·x by ordinary least squares.
//
// Features and target are centered so the intercept drops out, then the
// centered system is solved through a thin SVD. Singular values below
// eps·max(n, NumFeatures) relative to the largest are discarded, which
// yields the minimum-norm solution for constant or collinear columns.
func fitOLS(x []FeatureRow, y []float64) (intercept float64, coef [NumFeatures]float64) {
	n := len(x)

	var xMean [NumFeatures]float64
	col := make([]float64, n)
	for j := 0; j < NumFeatures; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		xMean[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	a := mat.NewDense(n, NumFeatures, nil)
	b := mat.NewDense(n, 1, nil)
	for i, row := range x {
		for j := range row {
			a.Set(i, j, row[j]-xMean[j])
		}
		b.Set(i, 0, y[i]-yMean)
	}

	if beta, ok := solveLeastSquares(a, b, n); ok {
		for j := 0; j < NumFeatures; j++ {
			coef[j] = beta.At(j, 0)
		}
	}

	intercept = yMean
	for j := 0; j < NumFeatures; j++ {
		intercept -= coef[j] * xMean[j]
	}
	return intercept, coef
}

// solveLeastSquares returns the minimum-norm solution of a·beta ≈ b. It
// reports false when a has numerical rank zero.
func solveLeastSquares(a, b *mat.Dense, n int) (*mat.Dense, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, false
	}

	eps := math.Nextafter(1, 2) - 1
	rank := svd.Rank(eps * float64(max(n, NumFeatures)))
	if rank == 0 {
		return nil, false
	}

	var beta mat.Dense
	svd.SolveTo(&beta, b, rank)
	return &beta, true
}

// r2Score returns the coefficient of determination of pred against y.
// A constant target scores 1 when predicted exactly and 0 otherwise.
func r2Score(y, pred []float64) float64 {
	mean := stat.Mean(y, nil)

	ssRes, ssTot := 0.0, 0.0
	for i, v := range y {
		r := v - pred[i]
		ssRes += r * r
		d := v - mean
		ssTot += d * d
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
