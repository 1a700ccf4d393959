package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func twoBlobs() *mat.Dense {
	return mat.NewDense(8, 2, []float64{
		0.0, 0.1,
		0.2, 0.0,
		0.1, 0.2,
		-0.1, 0.0,
		10.0, 10.1,
		10.2, 9.9,
		9.8, 10.0,
		10.1, 10.2,
	})
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	km := NewKMeans(WithKMeansNClusters(2), WithKMeansRandomState(0))
	require.NoError(t, km.Fit(twoBlobs(), nil))

	labels := km.Labels()
	require.Len(t, labels, 8)
	for i := 1; i < 4; i++ {
		assert.Equal(t, labels[0], labels[i])
	}
	for i := 5; i < 8; i++ {
		assert.Equal(t, labels[4], labels[i])
	}
	assert.NotEqual(t, labels[0], labels[4])

	centers := km.ClusterCenters()
	low := centers[labels[0]]
	assert.InDelta(t, 0.05, low[0], 1e-9)
	assert.InDelta(t, 0.075, low[1], 1e-9)
	assert.Less(t, km.Inertia(), 1.0)
	assert.GreaterOrEqual(t, km.NIter(), 1)
}

func TestKMeansDeterministicWithSeed(t *testing.T) {
	a := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	b := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	require.NoError(t, a.Fit(twoBlobs(), nil))
	require.NoError(t, b.Fit(twoBlobs(), nil))
	assert.Equal(t, a.Labels(), b.Labels())
	assert.Equal(t, a.ClusterCenters(), b.ClusterCenters())
}

func TestKMeansPredict(t *testing.T) {
	km := NewKMeans(WithKMeansNClusters(2), WithKMeansRandomState(1), WithKMeansInit("random"))
	pred, err := km.FitPredict(twoBlobs(), nil)
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 1, c)

	out, err := km.Predict(mat.NewDense(2, 2, []float64{0, 0, 11, 11}))
	require.NoError(t, err)
	assert.Equal(t, pred.At(0, 0), out.At(0, 0))
	assert.Equal(t, pred.At(4, 0), out.At(1, 0))
}

func TestKMeansErrors(t *testing.T) {
	tests := []struct {
		name string
		km   *KMeans
		X    mat.Matrix
	}{
		{"fewer samples than clusters", NewKMeans(WithKMeansNClusters(3)), mat.NewDense(2, 1, []float64{1, 2})},
		{"zero clusters", NewKMeans(WithKMeansNClusters(0)), mat.NewDense(2, 1, []float64{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.km.Fit(tt.X, nil))
		})
	}

	km := NewKMeans(WithKMeansNClusters(1))
	_, err := km.Predict(mat.NewDense(1, 1, nil))
	assert.Error(t, err)

	require.NoError(t, km.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), nil))
	_, err = km.Predict(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}
