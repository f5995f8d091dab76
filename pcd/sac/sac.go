// Package sac implements random sample consensus model fitting.
package sac

import (
	"github.com/seqsense/pcgol/mat"
)

type Sampler interface {
	Sample() int
}

type Model interface {
	NumRange() (min, max int)
	Fit([]int) (ModelCoefficients, bool)
}

type ModelCoefficients interface {
	// Evaluate returns the score of the model. Larger is better.
	Evaluate() int
	Inliers(float32) []int
	IsIn(mat.Vec3, float32) bool
}

type SAC struct {
	Sampler Sampler
	Model   Model

	bestCoeff ModelCoefficients
	bestScore int
}

func New(s Sampler, m Model) *SAC {
	return &SAC{Sampler: s, Model: m}
}

// Compute fits the model to n random samples and keeps the best one.
// It returns false if no sample fits.
func (s *SAC) Compute(n int) bool {
	var bestCoeff ModelCoefficients
	var bestE int

	num, _ := s.Model.NumRange()
	ids := make([]int, num)

L_SAMPLE:
	for i := 0; i < n; i++ {
		for j := 0; j < num; j++ {
			ids[j] = s.Sampler.Sample()
			for k := 0; k < j; k++ {
				if ids[k] == ids[j] {
					continue L_SAMPLE
				}
			}
		}
		coeff, ok := s.Model.Fit(ids)
		if !ok {
			continue
		}
		e := coeff.Evaluate()
		if e > bestE {
			bestE = e
			bestCoeff = coeff
		}
	}
	if bestCoeff == nil {
		return false
	}
	s.bestCoeff = bestCoeff
	s.bestScore = bestE
	return true
}

func (s *SAC) Coefficients() ModelCoefficients {
	return s.bestCoeff
}

// Score returns the evaluation of the best model.
func (s *SAC) Score() int {
	return s.bestScore
}
