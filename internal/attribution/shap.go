package attribution

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"
)

// kernelSHAP estimates Shapley values of the target class probability. With
// few features every coalition is enumerated, so the weighted least squares
// fit under the Shapley kernel recovers the exact values. Features outside a
// coalition take their background value.
//
// The efficiency constraint sum(phi) = f(x) - f(background) is enforced by
// eliminating the last feature before solving.
func kernelSHAP(m Model, x, background []float64, target int) ([]float64, error) {
	n := len(x)
	if n < 2 {
		return nil, fmt.Errorf("kernel shap needs at least 2 features: %w", ErrUnavailable)
	}
	eval := func(z []float64) (float64, error) {
		probs, err := m.Predict(z)
		if err != nil {
			return 0, err
		}
		if target < 0 || target >= len(probs) {
			return 0, fmt.Errorf("target %d outside %d outputs: %w", target, len(probs), ErrUnavailable)
		}
		return probs[target], nil
	}

	base, err := eval(background)
	if err != nil {
		return nil, err
	}
	full, err := eval(x)
	if err != nil {
		return nil, err
	}
	delta := full - base

	last := n - 1
	ata := mat.NewDense(last, last, nil)
	aty := mat.NewVecDense(last, nil)
	row := make([]float64, last)
	z := make([]float64, n)

	for mask := 1; mask < (1<<n)-1; mask++ {
		size := 0
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				z[i] = x[i]
				size++
			} else {
				z[i] = background[i]
			}
		}
		fz, err := eval(z)
		if err != nil {
			return nil, err
		}

		w := shapleyKernel(n, size)
		inLast := 0.0
		if mask&(1<<last) != 0 {
			inLast = 1
		}
		y := fz - base - inLast*delta
		for j := 0; j < last; j++ {
			in := 0.0
			if mask&(1<<j) != 0 {
				in = 1
			}
			row[j] = in - inLast
		}
		for i := 0; i < last; i++ {
			if row[i] == 0 {
				continue
			}
			aty.SetVec(i, aty.AtVec(i)+w*row[i]*y)
			for j := 0; j < last; j++ {
				ata.Set(i, j, ata.At(i, j)+w*row[i]*row[j])
			}
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(ata, aty); err != nil {
		return nil, fmt.Errorf("kernel shap solve: %v: %w", err, ErrUnavailable)
	}

	phi := make([]float64, n)
	sum := 0.0
	for i := 0; i < last; i++ {
		phi[i] = sol.AtVec(i)
		sum += phi[i]
	}
	phi[last] = delta - sum
	return phi, nil
}

// shapleyKernel is the Kernel SHAP weight of a coalition of the given size
// among n features.
func shapleyKernel(n, size int) float64 {
	return float64(n-1) / (float64(combin.Binomial(n, size)) * float64(size) * float64(n-size))
}
