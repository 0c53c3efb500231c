package optim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// kronState is the preconditioner state of one joint group: a pair of square
// Kronecker factors (C, K) and a matching pair of momentum matrices.
//
// C is d_C x d_C, K is d_K x d_K where (d_C, d_K) are the two axes of the
// group's grouped matrix. The dimensions are fixed for the lifetime of the
// group. Factors start at the identity, momenta at zero.
type kronState struct {
	dC, dK  int
	factors []*mat.Dense // exactly two: C then K
	momenta []*mat.Dense // exactly two: m_C then m_K
}

// newKronState creates identity factors and zero momenta for the given
// grouped-matrix dimensions.
func newKronState(dC, dK int) *kronState {
	return &kronState{
		dC:      dC,
		dK:      dK,
		factors: []*mat.Dense{identity(dC), identity(dK)},
		momenta: []*mat.Dense{mat.NewDense(dC, dC, nil), mat.NewDense(dK, dK, nil)},
	}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// check verifies the two-factor invariant. Any other factor count is a fatal
// condition, never silently handled.
func (s *kronState) check() error {
	if len(s.factors) != 2 || len(s.momenta) != 2 {
		return fmt.Errorf("preconditioner has %d factors and %d momenta: exactly two of each are supported",
			len(s.factors), len(s.momenta))
	}
	return nil
}

// C returns the first Kronecker factor (d_C x d_C).
func (s *kronState) C() *mat.Dense { return s.factors[0] }

// K returns the second Kronecker factor (d_K x d_K).
func (s *kronState) K() *mat.Dense { return s.factors[1] }
