package diff

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// rosen is the 2-D Rosenbrock function with its analytic gradient.
var rosen = Scalar{
	F: func(x []float64) (float64, error) {
		a, b := 1-x[0], x[1]-x[0]*x[0]
		return a*a + 100*b*b, nil
	},
	Grad: func(g, x []float64) error {
		b := x[1] - x[0]*x[0]
		g[0] = -2*(1-x[0]) - 400*x[0]*b
		g[1] = 200 * b
		return nil
	},
}

// cubes are the two tutorial constraints (a*x0+b)^3 - x1.
var cubes = Vector{
	Dim: 2,
	F: func(dst, x []float64) error {
		dst[0] = math.Pow(2*x[0], 3) - x[1]
		dst[1] = math.Pow(-x[0]+1, 3) - x[1]
		return nil
	},
}

func cubesJac(x []float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		6 * 4 * x[0] * x[0], -1,
		-3 * (-x[0] + 1) * (-x[0] + 1), -1,
	})
}

func TestScalarPullbackAnalytic(t *testing.T) {
	r := NewReverse(0)
	x := []float64{-1.2, 1}

	v, pb, err := r.ScalarPullback(rosen, x)
	require.NoError(t, err)
	assert.InDelta(t, 24.2, v, 1e-12)

	g := make([]float64, 2)
	require.NoError(t, Gradient(g, pb))
	want := make([]float64, 2)
	require.NoError(t, rosen.Grad(want, x))
	assert.Equal(t, want, g)

	// Seeds scale the adjoint.
	require.NoError(t, pb(g, []float64{-2}))
	assert.Equal(t, []float64{-2 * want[0], -2 * want[1]}, g)
}

func TestScalarPullbackFiniteDifference(t *testing.T) {
	r := &Reverse{}
	f := Scalar{F: rosen.F}
	x := []float64{0.5, 0.3}

	_, pb, err := r.ScalarPullback(f, x)
	require.NoError(t, err)

	g := make([]float64, 2)
	require.NoError(t, Gradient(g, pb))
	want := make([]float64, 2)
	require.NoError(t, rosen.Grad(want, x))
	assert.InDeltaSlice(t, want, g, 1e-5)
}

func TestVectorPullbackJacobian(t *testing.T) {
	r := NewReverse(1e-6)
	x := []float64{0.7, 0.2}

	values, pb, err := r.VectorPullback(cubes, x)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(1.4, 3)-0.2, values[0], 1e-12)

	jac := mat.NewDense(2, 2, nil)
	require.NoError(t, Jacobian(jac, pb))
	assert.True(t, mat.EqualApprox(cubesJac(x), jac, 1e-5), "got %v", mat.Formatted(jac))
}

func TestJacobianOneSeedPerRow(t *testing.T) {
	var seeds [][]float64
	pb := func(dst, seed []float64) error {
		seeds = append(seeds, append([]float64(nil), seed...))
		for j := range dst {
			dst[j] = float64(len(seeds)*10 + j)
		}
		return nil
	}

	jac := mat.NewDense(3, 2, nil)
	require.NoError(t, Jacobian(jac, pb))
	assert.Equal(t, [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, seeds)
	assert.Equal(t, []float64{10, 11}, mat.Row(nil, 0, jac))
	assert.Equal(t, []float64{30, 31}, mat.Row(nil, 2, jac))
}

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	r := NewReverse(0)

	_, _, err := r.ScalarPullback(Scalar{F: func([]float64) (float64, error) { return 0, boom }}, []float64{1})
	assert.ErrorIs(t, err, boom)

	calls := 0
	f := Scalar{F: func([]float64) (float64, error) {
		calls++
		if calls > 1 {
			return 0, boom
		}
		return 1, nil
	}}
	_, pb, err := r.ScalarPullback(f, []float64{1})
	require.NoError(t, err)
	assert.ErrorIs(t, Gradient(make([]float64, 1), pb), boom)

	_, pb, err = r.VectorPullback(Vector{
		Dim: 1,
		F:   func(dst, x []float64) error { dst[0] = x[0]; return nil },
		Jac: func(*mat.Dense, []float64) error { return boom },
	}, []float64{1})
	require.NoError(t, err)
	assert.ErrorIs(t, Jacobian(mat.NewDense(1, 1, nil), pb), boom)
}

func TestVectorLen(t *testing.T) {
	var v *Vector
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 0, (&Vector{Dim: 3}).Len())
	assert.Equal(t, 2, cubes.Len())
}

func BenchmarkJacobian(b *testing.B) {
	r := NewReverse(0)
	x := []float64{0.7, 0.2}
	jac := mat.NewDense(2, 2, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, pb, _ := r.VectorPullback(cubes, x)
		_ = Jacobian(jac, pb)
	}
}
