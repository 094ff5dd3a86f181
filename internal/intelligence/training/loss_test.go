package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassWeights_InverseFrequency(t *testing.T) {
	labels := []int{0, 0, 0, 1}
	w := ClassWeights(labels, nil, 2)
	assert.InDelta(t, 4.0/6.0, w[0], 1e-12)
	assert.InDelta(t, 2.0, w[1], 1e-12)
}

func TestClassWeights_MaskAndAbsentClass(t *testing.T) {
	labels := []int{0, 0, 1, 1}
	mask := []bool{true, true, false, false}
	w := ClassWeights(labels, mask, 2)
	assert.InDelta(t, 1.0, w[0], 1e-12)
	assert.Equal(t, 0.0, w[1])
}

func TestCrossEntropy_UniformLogits(t *testing.T) {
	logits := [][]float64{{0, 0}, {0, 0}}
	labels := []int{0, 1}
	loss, grad, err := crossEntropy(logits, labels, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), loss, 1e-12)

	// d/dlogit = (p - onehot) / count
	assert.InDelta(t, -0.25, grad[0][0], 1e-12)
	assert.InDelta(t, 0.25, grad[0][1], 1e-12)
	assert.InDelta(t, 0.25, grad[1][0], 1e-12)
	assert.InDelta(t, -0.25, grad[1][1], 1e-12)
}

func TestCrossEntropy_MaskedRowsZeroGradient(t *testing.T) {
	logits := [][]float64{{5, -5}, {5, -5}}
	labels := []int{0, 1}
	mask := []bool{true, false}

	loss, grad, err := crossEntropy(logits, labels, mask, nil)
	require.NoError(t, err)
	assert.Less(t, loss, 0.01)
	assert.Equal(t, []float64{0, 0}, grad[1])
}

func TestCrossEntropy_ClassWeightsScaleLoss(t *testing.T) {
	logits := [][]float64{{0, 0}}
	labels := []int{1}

	plain, _, err := crossEntropy(logits, labels, nil, nil)
	require.NoError(t, err)
	weighted, grad, err := crossEntropy(logits, labels, nil, []float64{1, 3})
	require.NoError(t, err)

	assert.InDelta(t, 3*plain, weighted, 1e-12)
	assert.InDelta(t, 3*0.5, grad[0][0], 1e-12)
}

func TestCrossEntropy_EmptyMaskIsZero(t *testing.T) {
	logits := [][]float64{{1, 2}}
	loss, grad, err := crossEntropy(logits, []int{0}, []bool{false}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
	assert.Equal(t, []float64{0, 0}, grad[0])
}

func TestCrossEntropy_Validation(t *testing.T) {
	_, _, err := crossEntropy([][]float64{{0, 0}}, []int{0, 1}, nil, nil)
	assert.Error(t, err)

	_, _, err = crossEntropy([][]float64{{0, 0}}, []int{5}, nil, nil)
	assert.Error(t, err)
}
