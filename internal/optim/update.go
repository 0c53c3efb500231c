package optim

import (
	"gonum.org/v1/gonum/mat"
)

// update advances the factors and their momenta by one step of the
// Riemannian-momentum recurrence, given the grouped gradient G and the batch
// size B:
//
//	S   = C^T G K
//	m_C = alpha2 m_C + (0.5/d_K) (B S S^T + lam tr(K K^T) C^T C - d_K I)
//	m_K = alpha2 m_K + (0.5/d_C) (B S^T S + lam tr(C C^T) K^T K - d_C I)
//	C   = C - beta2 m_C
//	K   = K - beta2 m_K
//
// This is a first-order (Euler) truncation of the exponential-map update on
// the factor manifold. All operations are dense products, traces and sums;
// no matrix inverse or matrix root appears anywhere.
func (s *kronState) update(g *mat.Dense, batchSize int, alpha2, beta2, lam float64) error {
	if err := s.check(); err != nil {
		return err
	}

	c, k := s.factors[0], s.factors[1]
	mC, mK := s.momenta[0], s.momenta[1]
	dC, dK := float64(s.dC), float64(s.dK)
	b := float64(batchSize)

	// Shared term S = C^T G K.
	var ctg, sm mat.Dense
	ctg.Mul(c.T(), g)
	sm.Mul(&ctg, k)

	// tr(K K^T) and tr(C C^T) are squared Frobenius norms.
	nk := mat.Norm(k, 2)
	nc := mat.Norm(c, 2)
	trKKt := nk * nk
	trCCt := nc * nc

	// m_C = alpha2 m_C + (0.5/d_K) (B S S^T + lam tr(K K^T) C^T C - d_K I)
	var sst, ctc, accC, dampC mat.Dense
	sst.Mul(&sm, sm.T())
	ctc.Mul(c.T(), c)
	accC.Scale(b, &sst)
	dampC.Scale(lam*trKKt, &ctc)
	accC.Add(&accC, &dampC)
	for i := 0; i < s.dC; i++ {
		accC.Set(i, i, accC.At(i, i)-dK)
	}
	accC.Scale(0.5/dK, &accC)
	mC.Scale(alpha2, mC)
	mC.Add(mC, &accC)

	// m_K = alpha2 m_K + (0.5/d_C) (B S^T S + lam tr(C C^T) K^T K - d_C I)
	var sts, ktk, accK, dampK mat.Dense
	sts.Mul(sm.T(), &sm)
	ktk.Mul(k.T(), k)
	accK.Scale(b, &sts)
	dampK.Scale(lam*trCCt, &ktk)
	accK.Add(&accK, &dampK)
	for i := 0; i < s.dK; i++ {
		accK.Set(i, i, accK.At(i, i)-dC)
	}
	accK.Scale(0.5/dC, &accK)
	mK.Scale(alpha2, mK)
	mK.Add(mK, &accK)

	// First-order step on the factors: additive corrections only.
	var stepC, stepK mat.Dense
	stepC.Scale(beta2, mC)
	c.Sub(c, &stepC)
	stepK.Scale(beta2, mK)
	k.Sub(k, &stepK)

	return nil
}

// precondition maps a grouped gradient to the preconditioned grouped update
//
//	U = (C C^T) G (K K^T)
//
// without side effects on the state. With identity factors U equals G
// exactly.
func (s *kronState) precondition(g *mat.Dense) (*mat.Dense, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	c, k := s.factors[0], s.factors[1]

	var cct, kkt, tmp, u mat.Dense
	cct.Mul(c, c.T())
	kkt.Mul(k, k.T())
	tmp.Mul(&cct, g)
	u.Mul(&tmp, &kkt)

	return &u, nil
}
