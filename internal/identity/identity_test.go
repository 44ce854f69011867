package identity

import (
	"context"
	"errors"
	"math"
	"testing"

	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDescriptors struct {
	apps  map[string]types.Descriptor
	users map[string]types.Descriptor
}

func newMemoryDescriptors() *memoryDescriptors {
	return &memoryDescriptors{apps: map[string]types.Descriptor{}, users: map[string]types.Descriptor{}}
}

func (m *memoryDescriptors) GetApplicationDescriptor(_ context.Context, id string) (types.Descriptor, error) {
	d, ok := m.apps[id]
	if !ok {
		return nil, types.NewNotFoundError("memory.app_descriptor", "投递不存在")
	}
	return d, nil
}

func (m *memoryDescriptors) GetUserDescriptor(_ context.Context, id string) (types.Descriptor, error) {
	return m.users[id], nil
}

func (m *memoryDescriptors) SaveUserDescriptor(_ context.Context, id string, d types.Descriptor) error {
	m.users[id] = d
	return nil
}

func TestEuclideanDistance(t *testing.T) {
	d, err := EuclideanDistance([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)

	_, err = EuclideanDistance([]float64{1}, []float64{1, 2})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestVerify_SameVectorMatches(t *testing.T) {
	store := newMemoryDescriptors()
	v := types.Descriptor{0.1, 0.2, 0.3}
	store.apps["app-1"] = v
	gate := NewGate(store, 0.0001, 3, zerolog.Nop())

	res, err := gate.Verify(context.Background(), v, "app-1", "")
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Zero(t, res.Distance)
	assert.Equal(t, "application", res.Source)
	assert.False(t, res.NeedsRegistration)
}

func TestVerify_ApplicationBeforeUser(t *testing.T) {
	store := newMemoryDescriptors()
	store.apps["app-1"] = types.Descriptor{1, 0, 0}
	store.users["u-1"] = types.Descriptor{0, 0, 0}
	gate := NewGate(store, 0.5, 3, zerolog.Nop())

	res, err := gate.Verify(context.Background(), types.Descriptor{0, 0, 0}, "app-1", "u-1")
	require.NoError(t, err)
	assert.False(t, res.Match, "应与投递级向量比对，距离为 1")
	assert.InDelta(t, 1.0, res.Distance, 1e-9)
	assert.Equal(t, 0.5, res.Threshold)
}

func TestVerify_FallsBackToUser(t *testing.T) {
	store := newMemoryDescriptors()
	store.apps["app-1"] = nil
	store.users["u-1"] = types.Descriptor{0, 0, 0.1}
	gate := NewGate(store, 0.5, 3, zerolog.Nop())

	res, err := gate.Verify(context.Background(), types.Descriptor{0, 0, 0}, "app-1", "u-1")
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, "user", res.Source)
}

func TestVerify_NeedsRegistration(t *testing.T) {
	store := newMemoryDescriptors()
	store.apps["app-1"] = nil
	gate := NewGate(store, 0.5, 3, zerolog.Nop())

	res, err := gate.Verify(context.Background(), types.Descriptor{0, 0, 0}, "app-1", "u-unknown")
	require.NoError(t, err)
	assert.True(t, res.NeedsRegistration)
	assert.False(t, res.Match)

	res, err = gate.Verify(context.Background(), types.Descriptor{0, 0, 0}, "", "")
	require.NoError(t, err)
	assert.True(t, res.NeedsRegistration)
}

func TestVerify_ThresholdIsStrict(t *testing.T) {
	store := newMemoryDescriptors()
	store.users["u-1"] = types.Descriptor{0.5, 0, 0}
	gate := NewGate(store, 0.5, 3, zerolog.Nop())

	res, err := gate.Verify(context.Background(), types.Descriptor{0, 0, 0}, "", "u-1")
	require.NoError(t, err)
	assert.False(t, res.Match, "距离等于阈值不算匹配")
}

func TestVerify_InvalidDescriptor(t *testing.T) {
	gate := NewGate(newMemoryDescriptors(), 0.5, 3, zerolog.Nop())
	cases := map[string]types.Descriptor{
		"empty":        {},
		"wrong length": {1, 2},
		"not a number": {1, math.NaN(), 3},
		"infinite":     {1, math.Inf(1), 3},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := gate.Verify(context.Background(), d, "", "u-1")
			assert.True(t, errors.Is(err, types.ErrValidation))
		})
	}
}

func TestVerify_UnknownApplication(t *testing.T) {
	gate := NewGate(newMemoryDescriptors(), 0.5, 3, zerolog.Nop())
	_, err := gate.Verify(context.Background(), types.Descriptor{0, 0, 0}, "missing", "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestRegister(t *testing.T) {
	store := newMemoryDescriptors()
	gate := NewGate(store, 0, 3, zerolog.Nop())
	assert.Equal(t, DefaultThreshold, gate.Threshold())

	require.NoError(t, gate.Register(context.Background(), "u-1", types.Descriptor{0.1, 0.2, 0.3}))
	res, err := gate.Verify(context.Background(), types.Descriptor{0.1, 0.2, 0.3}, "", "u-1")
	require.NoError(t, err)
	assert.True(t, res.Match)

	err = gate.Register(context.Background(), "", types.Descriptor{0.1, 0.2, 0.3})
	assert.True(t, errors.Is(err, types.ErrValidation))
	err = gate.Register(context.Background(), "u-2", types.Descriptor{0.1})
	assert.True(t, errors.Is(err, types.ErrValidation))
}
