package giftcards

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAdmin = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	testAlice = uuid.MustParse("00000000-0000-0000-0000-00000000a002")
	testBob   = uuid.MustParse("00000000-0000-0000-0000-00000000a003")
)

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry(testAdmin)

	tpl, err := r.Create(testAdmin, 1000, 1, 1, 10000, 12000)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), tpl.ID)
	assert.Equal(t, uint64(1000), tpl.InitialSupply)
	assert.Equal(t, uint64(1000), tpl.RemainingSupply)
	assert.Equal(t, int64(10000), tpl.FaceValueCents)
	assert.Equal(t, int64(12000), tpl.ListPriceCents)
	assert.True(t, tpl.Active)

	second, err := r.Create(testAdmin, 5, 0, 2, 5000, 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_CreateRequiresAdmin(t *testing.T) {
	r := NewRegistry(testAdmin)

	_, err := r.Create(testAlice, 1000, 1, 1, 10000, 12000)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, r.Len())

	_, err = r.Create(uuid.Nil, 1000, 1, 1, 10000, 12000)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegistry_CreateRejectsNegativeMoney(t *testing.T) {
	r := NewRegistry(testAdmin)

	_, err := r.Create(testAdmin, 1, 0, 1, -1, 100)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = r.Create(testAdmin, 1, 0, 1, 100, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Zero(t, r.Len())
}

func TestRegistry_SetRemainingSupply(t *testing.T) {
	r := NewRegistry(testAdmin)
	_, err := r.Create(testAdmin, 1000, 1, 1, 10000, 12000)
	require.NoError(t, err)

	require.NoError(t, r.SetRemainingSupply(testAdmin, 0, 50))

	tpl, err := r.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), tpl.RemainingSupply)
	assert.Equal(t, uint64(1000), tpl.InitialSupply)

	// Overrides are not bounded by the initial supply.
	require.NoError(t, r.SetRemainingSupply(testAdmin, 0, 5000))
	tpl, _ = r.Get(0)
	assert.Equal(t, uint64(5000), tpl.RemainingSupply)
}

func TestRegistry_SetInitialSupply(t *testing.T) {
	r := NewRegistry(testAdmin)
	_, err := r.Create(testAdmin, 1000, 1, 1, 10000, 12000)
	require.NoError(t, err)

	require.NoError(t, r.SetInitialSupply(testAdmin, 0, 2000))

	tpl, _ := r.Get(0)
	assert.Equal(t, uint64(2000), tpl.InitialSupply)
	assert.Equal(t, uint64(1000), tpl.RemainingSupply)
}

func TestRegistry_AdminSettersErrors(t *testing.T) {
	r := NewRegistry(testAdmin)
	_, err := r.Create(testAdmin, 10, 0, 1, 100, 100)
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"active by non admin", func() error { return r.SetActive(testAlice, 0, false) }, ErrUnauthorized},
		{"active unknown template", func() error { return r.SetActive(testAdmin, 7, false) }, ErrNotFound},
		{"remaining by non admin", func() error { return r.SetRemainingSupply(testAlice, 0, 1) }, ErrUnauthorized},
		{"remaining unknown template", func() error { return r.SetRemainingSupply(testAdmin, 7, 1) }, ErrNotFound},
		{"initial by non admin", func() error { return r.SetInitialSupply(testAlice, 0, 1) }, ErrUnauthorized},
		{"initial unknown template", func() error { return r.SetInitialSupply(testAdmin, 7, 1) }, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}

	tpl, _ := r.Get(0)
	assert.True(t, tpl.Active)
	assert.Equal(t, uint64(10), tpl.RemainingSupply)
	assert.Equal(t, uint64(10), tpl.InitialSupply)
}

func TestRegistry_ListActive(t *testing.T) {
	r := NewRegistry(testAdmin)
	for i := 0; i < 3; i++ {
		_, err := r.Create(testAdmin, 10, 0, 1, 100, 100)
		require.NoError(t, err)
	}
	require.NoError(t, r.SetActive(testAdmin, 1, false))

	active := r.ListActive()
	require.Len(t, active, 2)
	assert.Equal(t, uint64(0), active[0].ID)
	assert.Equal(t, uint64(2), active[1].ID)

	assert.Len(t, r.List(), 3)

	require.NoError(t, r.SetActive(testAdmin, 1, true))
	assert.Len(t, r.ListActive(), 3)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry(testAdmin)
	_, err := r.Create(testAdmin, 10, 0, 1, 100, 100)
	require.NoError(t, err)

	tpl, err := r.Get(0)
	require.NoError(t, err)
	tpl.RemainingSupply = 0

	again, _ := r.Get(0)
	assert.Equal(t, uint64(10), again.RemainingSupply)

	_, err = r.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)
}
