package evalcache

// Counter counts objective value computations.
type Counter struct {
	n int
}

// Inc records one evaluation.
func (c *Counter) Inc() { c.n++ }

// Count returns the number of evaluations recorded since the last Reset.
func (c *Counter) Count() int { return c.n }

// Reset sets the count to zero.
func (c *Counter) Reset() { c.n = 0 }
