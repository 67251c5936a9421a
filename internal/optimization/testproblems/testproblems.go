// Package testproblems provides named nonlinear programs with analytic
// derivatives and known solutions. The server and CLI solve them by name.
package testproblems

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
)

// Case is a named problem with its known solution.
type Case struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Minimizer   []float64 `json:"minimizer"`
	Minimum     float64   `json:"minimum"`

	// New builds the model. dim is ignored by fixed-dimension problems and
	// defaults to 2 when not positive.
	New func(dim int) *optimization.Problem `json:"-"`
	// Fixed is the dimension of fixed-dimension problems, zero otherwise.
	Fixed int `json:"fixed_dimension,omitempty"`
}

var registry = map[string]Case{
	"tutorial": {
		Name:        "tutorial",
		Description: "min sqrt(x1) s.t. x1 >= (2 x0)^3, x1 >= (1 - x0)^3, x1 >= 0",
		Minimizer:   []float64{1.0 / 3.0, 8.0 / 27.0},
		Minimum:     math.Sqrt(8.0 / 27.0),
		New:         func(int) *optimization.Problem { return Tutorial() },
		Fixed:       2,
	},
	"sphere": {
		Name:        "sphere",
		Description: "min sum x_i^2",
		Minimum:     0,
		New:         Sphere,
	},
	"rosenbrock": {
		Name:        "rosenbrock",
		Description: "min sum 100 (x_{i+1} - x_i^2)^2 + (1 - x_i)^2",
		Minimum:     0,
		New:         Rosenbrock,
	},
	"bounded-quadratic": {
		Name:        "bounded-quadratic",
		Description: "min sum (x_i - 2)^2 on [-1, 1]^n",
		Minimum:     0,
		New:         BoundedQuadratic,
	},
}

// Names returns the registered problem names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named case with Minimizer and Minimum resolved for dim.
func Get(name string, dim int) (Case, error) {
	c, ok := registry[name]
	if !ok {
		return Case{}, optimization.NewErrorf(optimization.KindInvalidModel, "unknown test problem %q", name).
			WithComponent("testproblems").WithOperation("Get")
	}
	if c.Fixed > 0 {
		return c, nil
	}
	if dim <= 0 {
		dim = 2
	}
	switch name {
	case "sphere":
		c.Minimizer = make([]float64, dim)
	case "rosenbrock":
		c.Minimizer = filled(dim, 1)
	case "bounded-quadratic":
		c.Minimizer = filled(dim, 1)
		c.Minimum = float64(dim)
	}
	return c, nil
}

// Model builds the named model of dimension dim.
func Model(name string, dim int) (*optimization.Problem, error) {
	c, err := Get(name, dim)
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		dim = 2
	}
	return c.New(dim), nil
}

// Tutorial is the two-variable problem of the NLopt tutorial with two
// cubic inequality constraints.
func Tutorial() *optimization.Problem {
	cubic := [][2]float64{{2, 0}, {-1, 1}}
	return &optimization.Problem{
		Obj: optimization.Objective{
			F: func(x []float64) (float64, error) {
				if x[1] < 0 {
					return math.NaN(), fmt.Errorf("sqrt of negative x1 %v", x[1])
				}
				return math.Sqrt(x[1]), nil
			},
			Grad: func(grad, x []float64) error {
				grad[0] = 0
				grad[1] = 0.5 / math.Sqrt(x[1])
				return nil
			},
		},
		Ineq: &optimization.Constraints{
			Dim: len(cubic),
			F: func(dst, x []float64) error {
				for i, ab := range cubic {
					dst[i] = math.Pow(ab[0]*x[0]+ab[1], 3) - x[1]
				}
				return nil
			},
			Jac: func(jac, x []float64) error {
				for i, ab := range cubic {
					u := ab[0]*x[0] + ab[1]
					jac[2*i] = 3 * ab[0] * u * u
					jac[2*i+1] = -1
				}
				return nil
			},
		},
		Lower:   []float64{math.Inf(-1), 0},
		Upper:   []float64{math.Inf(1), math.Inf(1)},
		Initial: []float64{1.234, 5.678},
	}
}

// BoxedTutorial is Tutorial restricted to [0, 10]x[0, 10] and started from
// (1.234, 2.345).
func BoxedTutorial() *optimization.Problem {
	p := Tutorial()
	p.Lower = []float64{0, 0}
	p.Upper = []float64{10, 10}
	p.Initial = []float64{1.234, 2.345}
	return p
}

// Sphere is the unconstrained sum of squares started at (1, ..., 1).
func Sphere(dim int) *optimization.Problem {
	return &optimization.Problem{
		Obj: optimization.Objective{
			F: func(x []float64) (float64, error) { return floats.Dot(x, x), nil },
			Grad: func(grad, x []float64) error {
				floats.ScaleTo(grad, 2, x)
				return nil
			},
		},
		Initial: filled(dim, 1),
	}
}

// Rosenbrock is the extended Rosenbrock function started at (-1.2, 1, ...).
func Rosenbrock(dim int) *optimization.Problem {
	x0 := make([]float64, dim)
	for i := range x0 {
		if i%2 == 0 {
			x0[i] = -1.2
		} else {
			x0[i] = 1
		}
	}
	return &optimization.Problem{
		Obj: optimization.Objective{
			F: func(x []float64) (float64, error) {
				var sum float64
				for i := 0; i < len(x)-1; i++ {
					a, b := 1-x[i], x[i+1]-x[i]*x[i]
					sum += a*a + 100*b*b
				}
				return sum, nil
			},
			Grad: func(grad, x []float64) error {
				for i := range grad {
					grad[i] = 0
				}
				for i := 0; i < len(x)-1; i++ {
					a, b := 1-x[i], x[i+1]-x[i]*x[i]
					grad[i] += -2*a - 400*x[i]*b
					grad[i+1] += 200 * b
				}
				return nil
			},
		},
		Initial: x0,
	}
}

// BoundedQuadratic pulls every variable towards 2 while the box [-1, 1]
// holds it at the upper bound.
func BoundedQuadratic(dim int) *optimization.Problem {
	return &optimization.Problem{
		Obj: optimization.Objective{
			F: func(x []float64) (float64, error) {
				var sum float64
				for _, xi := range x {
					sum += (xi - 2) * (xi - 2)
				}
				return sum, nil
			},
			Grad: func(grad, x []float64) error {
				for i, xi := range x {
					grad[i] = 2 * (xi - 2)
				}
				return nil
			},
		},
		Lower:   filled(dim, -1),
		Upper:   filled(dim, 1),
		Initial: make([]float64, dim),
	}
}

func filled(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}
