package linear

import (
	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultRcond はnumpy.linalg.pinvと同じ既定の相対カットオフ
const DefaultRcond = 1e-15

// PseudoInverse はSVDによりMoore-Penrose擬似逆行列を計算する
// rcond*最大特異値 以下の特異値は0として扱う（ランク落ちした計画行列でも解ける）
// 戻り値の2番目は数値ランク
func PseudoInverse(a mat.Matrix, rcond float64) (*mat.Dense, int, error) {
	r, c := a.Dims()
	if r == 0 || c == 0 {
		return nil, 0, errors.NewModelError("PseudoInverse", "empty matrix", errors.ErrEmptyData)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, 0, errors.NewModelError("PseudoInverse", "SVD factorization failed", errors.ErrSingularMatrix)
	}

	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := rcond * values[0] // Values は降順
	rank := 0
	// V の各列を 1/σ でスケーリング（カットオフ以下は0）
	_, k := v.Dims()
	for j := 0; j < k; j++ {
		scale := 0.0
		if values[j] > cutoff {
			scale = 1 / values[j]
			rank++
		}
		for i := 0; i < c; i++ {
			v.Set(i, j, v.At(i, j)*scale)
		}
	}

	// A^+ = V Σ^+ U^T
	pinv := mat.NewDense(c, r, nil)
	pinv.Mul(&v, u.T())
	return pinv, rank, nil
}
