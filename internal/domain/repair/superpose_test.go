package repair

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rotateZ(p [3]float64, theta float64) [3]float64 {
	c, s := math.Cos(theta), math.Sin(theta)
	return [3]float64{c*p[0] - s*p[1], s*p[0] + c*p[1], p[2]}
}

func TestSuperpose_RecoversRotationAndTranslation(t *testing.T) {
	moving := [][3]float64{
		{0, 0, 0},
		{1.5, 0, 0},
		{1.5, 1.5, 0},
		{0.3, 0.7, 1.2},
	}
	theta := math.Pi / 3
	trans := [3]float64{2, -1, 4}
	fixed := make([][3]float64, len(moving))
	for i, p := range moving {
		q := rotateZ(p, theta)
		fixed[i] = [3]float64{q[0] + trans[0], q[1] + trans[1], q[2] + trans[2]}
	}

	sp, err := Superpose(moving, fixed)
	require.NoError(t, err)
	assert.InDelta(t, 0, sp.RMSD, 1e-9)

	// Check the fit maps a held-out point correctly.
	p := [3]float64{-0.5, 2.0, 0.8}
	q := rotateZ(p, theta)
	want := [3]float64{q[0] + trans[0], q[1] + trans[1], q[2] + trans[2]}
	var got [3]float64
	for k := 0; k < 3; k++ {
		got[k] = sp.Rotation[k][0]*p[0] + sp.Rotation[k][1]*p[1] + sp.Rotation[k][2]*p[2] + sp.Translation[k]
	}
	for k := 0; k < 3; k++ {
		assert.InDelta(t, want[k], got[k], 1e-9)
	}
}

func TestSuperpose_NoReflection(t *testing.T) {
	// Mirrored point sets must still yield a proper rotation (det +1).
	moving := [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	fixed := [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, -1}}

	sp, err := Superpose(moving, fixed)
	require.NoError(t, err)

	r := sp.Rotation
	det := r[0][0]*(r[1][1]*r[2][2]-r[1][2]*r[2][1]) -
		r[0][1]*(r[1][0]*r[2][2]-r[1][2]*r[2][0]) +
		r[0][2]*(r[1][0]*r[2][1]-r[1][1]*r[2][0])
	assert.InDelta(t, 1.0, det, 1e-9)
	assert.Greater(t, sp.RMSD, 0.0)
}

func TestSuperpose_SinglePairTranslation(t *testing.T) {
	moving := [][3]float64{{2.0, -0.8, 1.2}}
	fixed := [][3]float64{{11.98, -2.15, 6.2}}

	sp, err := Superpose(moving, fixed)
	require.NoError(t, err)
	assert.InDelta(t, 0, sp.RMSD, 1e-9)

	// Whatever rotation the degenerate fit picks, the moving point must land
	// exactly on the fixed one.
	var got [3]float64
	for k := 0; k < 3; k++ {
		got[k] = sp.Rotation[k][0]*moving[0][0] + sp.Rotation[k][1]*moving[0][1] +
			sp.Rotation[k][2]*moving[0][2] + sp.Translation[k]
	}
	for k := 0; k < 3; k++ {
		assert.InDelta(t, fixed[0][k], got[k], 1e-9)
	}
}

func TestSuperpose_InputValidation(t *testing.T) {
	_, err := Superpose([][3]float64{{0, 0, 0}}, [][3]float64{{0, 0, 0}, {1, 1, 1}})
	assert.Error(t, err)

	_, err = Superpose(nil, nil)
	assert.Error(t, err)
}
