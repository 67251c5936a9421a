package evalcache

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/diff"
)

// FromModel builds a cache Config from m. Constraints of zero length come
// back as nil.
func FromModel(m optimization.Model) Config {
	obj := m.Objective()
	return Config{
		Objective:    diff.Scalar{F: obj.F, Grad: obj.Grad},
		Inequality:   vectorOf(m.Inequality()),
		Equality:     vectorOf(m.Equality()),
		InitialPoint: append([]float64(nil), m.InitialPoint()...),
	}
}

func vectorOf(c *optimization.Constraints) *diff.Vector {
	if c.Len() == 0 {
		return nil
	}
	v := &diff.Vector{Dim: c.Dim, F: c.F}
	if c.Jac != nil {
		jac := c.Jac
		v.Jac = func(dst *mat.Dense, x []float64) error {
			m, n := dst.Dims()
			buf := make([]float64, m*n)
			if err := jac(buf, x); err != nil {
				return err
			}
			dst.Copy(mat.NewDense(m, n, buf))
			return nil
		}
	}
	return v
}
