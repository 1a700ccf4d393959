package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticConfig describes a toy cohort where each class is a different mix
// of Gaussian cell populations.
type SyntheticConfig struct {
	// Populations holds one mean vector per cell population.
	Populations [][]float64
	// Abundance[k][p] is the share of population p in patients of class k.
	Abundance [][]float64
	// Patients per class and cells per patient.
	Patients int
	Cells    int
	// Sigma is the per-feature standard deviation of every population.
	Sigma float64
	Seed  uint64
}

// Synthetic draws a cohort from cfg. Patient IDs are "c<class>-p<index>".
func Synthetic(cfg SyntheticConfig) (Split, error) {
	if len(cfg.Populations) == 0 || len(cfg.Abundance) == 0 {
		return nil, errors.NewValueError("Synthetic", "populations and abundance are required")
	}
	if cfg.Patients < 1 || cfg.Cells < 1 {
		return nil, errors.NewValidationError("patients/cells", "must be positive", [2]int{cfg.Patients, cfg.Cells})
	}
	if cfg.Sigma <= 0 {
		return nil, errors.NewValidationError("sigma", "must be positive", cfg.Sigma)
	}
	d := len(cfg.Populations[0])
	for _, mu := range cfg.Populations {
		if len(mu) != d {
			return nil, errors.NewDimensionError("Synthetic", d, len(mu), 1)
		}
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	noise := distuv.Normal{Mu: 0, Sigma: cfg.Sigma, Src: src}

	var out Split
	for k, abundance := range cfg.Abundance {
		if len(abundance) != len(cfg.Populations) {
			return nil, errors.NewDimensionError("Synthetic", len(cfg.Populations), len(abundance), 1)
		}
		pick := distuv.NewCategorical(abundance, src)
		for p := 0; p < cfg.Patients; p++ {
			cells := mat.NewDense(cfg.Cells, d, nil)
			for i := 0; i < cfg.Cells; i++ {
				mu := cfg.Populations[int(pick.Rand())]
				for j := 0; j < d; j++ {
					cells.Set(i, j, mu[j]+noise.Rand())
				}
			}
			out = append(out, Patient{
				ID:    fmt.Sprintf("c%d-p%d", k, p),
				Cells: cells,
				Y:     float64(k),
			})
		}
	}
	return out, nil
}
