package tensor

import (
	"math"
	"math/rand/v2"
)

// Mat represents a dense row-major matrix of float32 values.
//
// R and C are the number of rows and columns. Data holds R*C values, row i
// starting at i*C. Bias vectors are stored as 1xN matrices so every model
// parameter shares one representation on disk.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zeroed matrix with the given number of rows and columns.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// NewVec allocates a zeroed 1xn matrix.
func NewVec(n int) Mat {
	return NewMat(1, n)
}

// NewMatFromData wraps existing data. len(data) must equal r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{R: r, C: c, Data: data}
}

// Row returns a view of the i-th row. Writes through the slice update the
// matrix.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.C
	return m.Data[start : start+m.C]
}

// Shape returns the dimensions in the order they are written to disk.
func (m *Mat) Shape() []int {
	return []int{m.R, m.C}
}

// FillXavier fills m with values drawn from U(-a, a), a = sqrt(6/(R+C)).
func FillXavier(m *Mat, rng *rand.Rand) {
	if m.R+m.C == 0 {
		return
	}
	a := math.Sqrt(6 / float64(m.R+m.C))
	for i := range m.Data {
		m.Data[i] = float32((rng.Float64()*2 - 1) * a)
	}
}

// FillRand fills m with small reproducible values in (-0.01, 0.01).
func FillRand(m *Mat, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x5DEECE66D))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}
