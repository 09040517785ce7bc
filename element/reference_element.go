package element

import (
	"gonum.org/v1/gonum/mat"
)

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D elements (points)
	D1                       // 1D elements (lines, edges)
	D2                       // 2D elements (triangles, quadrilaterals)
	D3                       // 3D elements (tetrahedra, hexahedra, etc.)
)

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	Point GeometryType = iota
	Line
)

func (g GeometryType) String() string {
	switch g {
	case Point:
		return "Point"
	case Line:
		return "Line"
	default:
		return "Unknown"
	}
}

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string         // Full descriptive name (e.g., "Lagrange Line Order 3")
	ShortName  string         // Abbreviated name (e.g., "Line3")
	Type       GeometryType   // Element shape
	Order      int            // Polynomial order
	Np         int            // Total number of nodes/points in element
	NFp        int            // Number of nodes per face
	NVp        int            // Number of vertex nodes (equals number of vertices)
	NIp        int            // Number of strictly interior nodes
	NFaces     int            // Number of faces in each element
	Dimensions Dimensionality // Spatial dimension
}

// ReferenceGeometry defines the layout of nodes in reference space [-1,1]^d
type ReferenceGeometry struct {
	// Node coordinates in reference space; only R is used in 1D
	R []float64

	// Node classification by topological entity
	VertexPoints   []int   // Indices of nodes located at vertices
	FacePoints     [][]int // [face_num][point_indices] - nodes on each face
	InteriorPoints []int   // Indices of nodes strictly inside the element
}

// NodalModalMatrices contains transformation matrices between nodal and modal representations
type NodalModalMatrices struct {
	V    mat.Matrix // Vandermonde matrix: modal to nodal transformation [Np × Np]
	Vinv mat.Matrix // Inverse Vandermonde: nodal to modal transformation [Np × Np]
	M    mat.Matrix // Mass matrix in nodal space [Np × Np]
	Minv mat.Matrix // Inverse mass matrix [Np × Np]
}

// ReferenceOperators contains differential operators in reference space [-1,1]^d
type ReferenceOperators struct {
	Dr mat.Matrix // Derivative with respect to r [Np × Np]
}

// ReferenceElement defines element properties and operators in reference space
// This interface is implemented once per element type (e.g., Line1, Line3)
type ReferenceElement interface {
	GetProperties() ElementProperties
	GetReferenceGeometry() ReferenceGeometry
	GetNodalModal() NodalModalMatrices
	GetReferenceOperators() ReferenceOperators
}

// BasisEvaluator evaluates the nodal basis of a reference element at
// arbitrary reference points. Rows of the returned matrices are points,
// columns are local basis functions.
type BasisEvaluator interface {
	Phi(r []float64) *mat.Dense
	PhiR(r []float64) *mat.Dense
	PhiRR(r []float64) *mat.Dense
}
