package gonudg

import (
	"gonum.org/v1/gonum/mat"
)

// Vandermonde1D initializes the 1D Vandermonde matrix V_ij = P_j(r_i) of
// the orthonormal Legendre basis up to order N
func Vandermonde1D(N int, r []float64) *mat.Dense {
	V1D := mat.NewDense(len(r), N+1, nil)
	for j := 0; j <= N; j++ {
		V1D.SetCol(j, JacobiP(r, 0, 0, j))
	}
	return V1D
}

// GradVandermonde1D initializes the matrix of first derivatives of the
// modal basis, Vr_ij = dP_j/dr(r_i)
func GradVandermonde1D(N int, r []float64) *mat.Dense {
	Vr := mat.NewDense(len(r), N+1, nil)
	for j := 0; j <= N; j++ {
		Vr.SetCol(j, GradJacobiP(r, 0, 0, j))
	}
	return Vr
}

// Grad2Vandermonde1D initializes the matrix of second derivatives of the
// modal basis
func Grad2Vandermonde1D(N int, r []float64) *mat.Dense {
	Vrr := mat.NewDense(len(r), N+1, nil)
	for j := 0; j <= N; j++ {
		Vrr.SetCol(j, Grad2JacobiP(r, 0, 0, j))
	}
	return Vrr
}

// Dmatrix1D returns the nodal differentiation matrix Dr = Vr * V^-1
func Dmatrix1D(N int, r []float64, V *mat.Dense) *mat.Dense {
	var Vinv mat.Dense
	if err := Vinv.Inverse(V); err != nil {
		panic(err)
	}
	Vr := GradVandermonde1D(N, r)
	Dr := mat.NewDense(len(r), N+1, nil)
	Dr.Mul(Vr, &Vinv)
	return Dr
}
