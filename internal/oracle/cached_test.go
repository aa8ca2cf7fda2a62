package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) LatestRate(ctx context.Context) (Rate, error) {
	args := m.Called(ctx)
	return args.Get(0).(Rate), args.Error(1)
}

func testRate() Rate {
	return Rate{
		Answer:    2000_00000000,
		Decimals:  8,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func encodeRate(t *testing.T, rate Rate) string {
	t.Helper()
	data, err := json.Marshal(rate)
	require.NoError(t, err)
	return string(data)
}

func TestCachedOracle_Hit(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	source := new(mockOracle)
	cached := NewCachedOracle(source, client, "", time.Minute)

	redisMock.ExpectGet(DefaultCacheKey).SetVal(encodeRate(t, testRate()))

	rate, err := cached.LatestRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRate(), rate)
	source.AssertNotCalled(t, "LatestRate", mock.Anything)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedOracle_MissPopulatesCache(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	source := new(mockOracle)
	cached := NewCachedOracle(source, client, "rate", 30*time.Second)

	source.On("LatestRate", mock.Anything).Return(testRate(), nil).Once()
	redisMock.ExpectGet("rate").RedisNil()
	redisMock.ExpectSet("rate", encodeRate(t, testRate()), 30*time.Second).SetVal("OK")

	rate, err := cached.LatestRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRate(), rate)
	source.AssertExpectations(t)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedOracle_RedisFailureFallsThrough(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	source := new(mockOracle)
	cached := NewCachedOracle(source, client, "rate", time.Minute)

	source.On("LatestRate", mock.Anything).Return(testRate(), nil).Once()
	redisMock.ExpectGet("rate").SetErr(errors.New("connection refused"))
	redisMock.ExpectSet("rate", encodeRate(t, testRate()), time.Minute).SetErr(errors.New("connection refused"))

	rate, err := cached.LatestRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRate(), rate)
	source.AssertExpectations(t)
}

func TestCachedOracle_SourceErrorIsNotCached(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	source := new(mockOracle)
	cached := NewCachedOracle(source, client, "rate", time.Minute)

	source.On("LatestRate", mock.Anything).Return(Rate{}, ErrInvalidRate).Once()
	redisMock.ExpectGet("rate").RedisNil()

	_, err := cached.LatestRate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRate)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedOracle_UnreadableEntryIsRefreshed(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	source := new(mockOracle)
	cached := NewCachedOracle(source, client, "rate", time.Minute)

	source.On("LatestRate", mock.Anything).Return(testRate(), nil).Once()
	redisMock.ExpectGet("rate").SetVal("not-json")
	redisMock.ExpectSet("rate", encodeRate(t, testRate()), time.Minute).SetVal("OK")

	rate, err := cached.LatestRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRate(), rate)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
