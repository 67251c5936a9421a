package algorithm

// Config is a validated algorithm configuration. It is either a Standalone
// algorithm or a Composite of a meta algorithm and its local optimizer.
type Config interface {
	// Top returns the algorithm the engine problem is created with.
	Top() ID
	// Concrete returns the algorithm that evaluates the user functions:
	// the local optimizer of a Composite, otherwise Top.
	Concrete() ID
	String() string

	isConfig()
}

// Standalone is a single non-composite algorithm.
type Standalone struct {
	ID ID
}

// Composite is a meta algorithm driving a local optimizer.
type Composite struct {
	Meta  ID
	Local ID
}

func (s Standalone) Top() ID        { return s.ID }
func (s Standalone) Concrete() ID   { return s.ID }
func (s Standalone) String() string { return string(s.ID) }
func (Standalone) isConfig()        {}

func (c Composite) Top() ID        { return c.Meta }
func (c Composite) Concrete() ID   { return c.Local }
func (c Composite) String() string { return string(c.Meta) + "+" + string(c.Local) }
func (Composite) isConfig()        {}

// DerivativeFree reports whether cfg never needs gradients.
func DerivativeFree(cfg Config) bool {
	return cfg.Concrete().DerivativeFree()
}

// NewConfig validates alg and the optional local optimizer and returns the
// matching Config variant. An empty local means none.
//
// A non-meta algorithm may still carry a local optimizer (MLSL variants and
// the AUGLAG family use one when given); the result is then a Composite.
func NewConfig(alg, local ID) (Config, error) {
	var lp *ID
	if local != "" {
		lp = &local
	}
	if err := ValidatePair(alg, lp); err != nil {
		return nil, err
	}
	if lp == nil {
		return Standalone{ID: alg}, nil
	}
	return Composite{Meta: alg, Local: local}, nil
}

// MustConfig is like NewConfig but panics on error. Intended for tests and
// package-level defaults.
func MustConfig(alg, local ID) Config {
	cfg, err := NewConfig(alg, local)
	if err != nil {
		panic(err)
	}
	return cfg
}
