// Package repair rebuilds damaged or chemically modified residues by rigidly
// superposing reference conformers onto the surviving atoms.
package repair

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/bindscape/meshbind/pkg/errors"
)

// minSuperposePairs guards against an empty fit. A single pair still yields a
// translation that maps the moving point exactly onto the fixed one.
const minSuperposePairs = 1

// Superposition is a rigid transform (rotation then translation) mapping a
// moving point set onto a fixed one, with the post-fit RMSD.
type Superposition struct {
	Rotation    [3][3]float64
	Translation [3]float64
	RMSD        float64
}

// Superpose computes the least-squares rigid transform that maps moving onto
// fixed using the Kabsch method: centroids are removed, the 3x3 covariance is
// decomposed by SVD, and the rotation determinant is corrected to avoid
// reflections.
func Superpose(moving, fixed [][3]float64) (Superposition, error) {
	if len(moving) != len(fixed) {
		return Superposition{}, errors.ShapeMismatch("point sets differ in length").
			WithDetail("superposition requires paired coordinates")
	}
	if len(moving) < minSuperposePairs {
		return Superposition{}, errors.InvalidParameter("too few point pairs for a rigid superposition")
	}

	n := float64(len(moving))
	var cm, cf [3]float64
	for i := range moving {
		for k := 0; k < 3; k++ {
			cm[k] += moving[i][k]
			cf[k] += fixed[i][k]
		}
	}
	for k := 0; k < 3; k++ {
		cm[k] /= n
		cf[k] /= n
	}

	// Covariance H = sum (m - cm)(f - cf)^T.
	h := mat.NewDense(3, 3, nil)
	for i := range moving {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+(moving[i][r]-cm[r])*(fixed[i][c]-cf[c]))
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return Superposition{}, errors.Internal("covariance SVD failed to converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V D U^T with D = diag(1, 1, sign(det(V U^T))).
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1.0
	}
	sign := mat.NewDiagDense(3, []float64{1, 1, d})
	var r mat.Dense
	r.Mul(&v, sign)
	r.Mul(&r, u.T())

	var sp Superposition
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sp.Rotation[i][j] = r.At(i, j)
		}
	}
	for i := 0; i < 3; i++ {
		sp.Translation[i] = cf[i] - (sp.Rotation[i][0]*cm[0] + sp.Rotation[i][1]*cm[1] + sp.Rotation[i][2]*cm[2])
	}

	var ss float64
	for i := range moving {
		var p [3]float64
		for k := 0; k < 3; k++ {
			p[k] = sp.Rotation[k][0]*moving[i][0] + sp.Rotation[k][1]*moving[i][1] +
				sp.Rotation[k][2]*moving[i][2] + sp.Translation[k]
		}
		for k := 0; k < 3; k++ {
			dlt := p[k] - fixed[i][k]
			ss += dlt * dlt
		}
	}
	sp.RMSD = math.Sqrt(ss / n)
	return sp, nil
}
