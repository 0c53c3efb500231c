package optim

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewKronState(t *testing.T) {
	s := newKronState(3, 2)

	require.Equal(t, 3, s.dC)
	require.Equal(t, 2, s.dK)
	require.NoError(t, s.check())

	// Factors start at identity, momenta at zero.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			require.Equal(t, want, s.C().At(i, j))
			require.Equal(t, 0.0, s.momenta[0].At(i, j))
		}
	}
	for i := 0; i < 2; i++ {
		require.Equal(t, 1.0, s.K().At(i, i))
	}
}

// A 1x1 group reduces the recurrence to scalar arithmetic, so every quantity
// can be checked by hand:
//
//	S   = c g k
//	m_c = a2 m_c + 0.5 (B S^2 + lam k^2 c^2 - 1)
//	c   = c - b2 m_c
func TestUpdateScalarCase(t *testing.T) {
	s := newKronState(1, 1)
	g := mat.NewDense(1, 1, []float64{2})

	const (
		alpha2 = 0.5
		beta2  = 0.1
		lam    = 0.01
	)
	require.NoError(t, s.update(g, 1, alpha2, beta2, lam))

	// m = 0.5 * (1*4 + 0.01*1*1 - 1) = 1.505, c = 1 - 0.1*1.505.
	wantM := 0.5 * (4 + 0.01 - 1)
	wantC := 1 - beta2*wantM
	require.InDelta(t, wantM, s.momenta[0].At(0, 0), 1e-12)
	require.InDelta(t, wantM, s.momenta[1].At(0, 0), 1e-12)
	require.InDelta(t, wantC, s.C().At(0, 0), 1e-12)
	require.InDelta(t, wantC, s.K().At(0, 0), 1e-12)

	// Second update folds the old momentum in through alpha2.
	c := s.C().At(0, 0)
	k := s.K().At(0, 0)
	sVal := c * 2 * k
	wantM2 := alpha2*wantM + 0.5*(sVal*sVal+lam*k*k*c*c-1)
	require.NoError(t, s.update(g, 1, alpha2, beta2, lam))
	require.InDelta(t, wantM2, s.momenta[0].At(0, 0), 1e-12)
	require.InDelta(t, c-beta2*wantM2, s.C().At(0, 0), 1e-12)
}

// With a zero gradient and zero damping the momentum only sees the identity
// penalty, which pulls the factors outward.
func TestUpdateZeroGradient(t *testing.T) {
	s := newKronState(2, 2)
	g := mat.NewDense(2, 2, nil)

	require.NoError(t, s.update(g, 4, 0, 0.01, 0))

	// m_C = (0.5/2)(0 + 0 - 2 I) = -0.5 I, so C = I + 0.005 I.
	for i := 0; i < 2; i++ {
		require.InDelta(t, -0.5, s.momenta[0].At(i, i), 1e-12)
		require.InDelta(t, 1.005, s.C().At(i, i), 1e-12)
	}
}

func TestPreconditionIdentityIsExact(t *testing.T) {
	s := newKronState(2, 3)
	g := mat.NewDense(2, 3, []float64{1, -2, 3, 0.5, 0, -1.25})

	u, err := s.precondition(g)
	require.NoError(t, err)
	require.True(t, mat.Equal(g, u), "identity factors must pass the gradient through unchanged")

	// precondition has no side effects on the factors.
	require.Equal(t, 1.0, s.C().At(0, 0))
	require.Equal(t, 0.0, s.C().At(0, 1))
}

func TestPreconditionScalesWithFactors(t *testing.T) {
	s := newKronState(1, 1)
	s.C().Set(0, 0, 2)
	s.K().Set(0, 0, 3)
	g := mat.NewDense(1, 1, []float64{1})

	u, err := s.precondition(g)
	require.NoError(t, err)
	// (c c^T) g (k k^T) = 4 * 1 * 9.
	require.InDelta(t, 36.0, u.At(0, 0), 1e-12)
}
