package gonum

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// converger applies NLopt-style stopping tolerances to the major iterations
// of a gonum method. A zero tolerance is disabled. A fallback
// FunctionConverge bounds runs that set no tolerance at all.
type converger struct {
	ftolRel, ftolAbs float64
	xtolRel, xtolAbs float64
	stopVal          float64
	patience         int

	fallback optimize.FunctionConverge

	started bool
	prevF   float64
	prevX   []float64
	fHeld   int
	xHeld   int
}

var _ optimize.Converger = (*converger)(nil)

func (c *converger) Init(dim int) {
	c.started = false
	c.prevX = make([]float64, dim)
	c.fHeld, c.xHeld = 0, 0
	if c.patience < 1 {
		c.patience = 1
	}
	c.fallback = optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-12, Iterations: 100}
	c.fallback.Init(dim)
}

func (c *converger) Converged(loc *optimize.Location) optimize.Status {
	if loc.F <= c.stopVal {
		return statusStopval
	}
	if !c.started {
		c.record(loc)
		c.started = true
		return c.fallback.Converged(loc)
	}

	if c.ftolAbs > 0 || c.ftolRel > 0 {
		df := math.Abs(loc.F - c.prevF)
		if (c.ftolAbs > 0 && df <= c.ftolAbs) || (c.ftolRel > 0 && df <= c.ftolRel*math.Abs(loc.F)) {
			c.fHeld++
		} else {
			c.fHeld = 0
		}
		if c.fHeld >= c.patience {
			return optimize.FunctionConvergence
		}
	}

	if c.xtolAbs > 0 || c.xtolRel > 0 {
		if c.smallStep(loc.X) {
			c.xHeld++
		} else {
			c.xHeld = 0
		}
		if c.xHeld >= c.patience {
			return optimize.StepConvergence
		}
	}

	c.record(loc)
	return c.fallback.Converged(loc)
}

func (c *converger) smallStep(x []float64) bool {
	for i, xi := range x {
		dx := math.Abs(xi - c.prevX[i])
		if (c.xtolAbs > 0 && dx <= c.xtolAbs) || (c.xtolRel > 0 && dx <= c.xtolRel*math.Abs(xi)) {
			continue
		}
		return false
	}
	return true
}

func (c *converger) record(loc *optimize.Location) {
	c.prevF = loc.F
	copy(c.prevX, loc.X)
}
