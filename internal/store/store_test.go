package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 5, func() error {
		calls++
		if calls < 3 {
			return ErrVersionConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, func() error {
		calls++
		return ErrVersionConflict
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, calls)
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := WithRetry(context.Background(), 5, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestCheckWritesRejectsDuplicateKeys(t *testing.T) {
	err := CheckWrites([]Write{{Key: Shifts}, {Key: Shifts}})
	assert.Error(t, err)

	assert.Error(t, CheckWrites([]Write{{Key: ""}}))
	assert.NoError(t, CheckWrites([]Write{{Key: Shifts}, {Key: ActiveShifts}}))
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("P1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}

func TestDecodeRecordsTreatsEmptyAsEmptyList(t *testing.T) {
	records, err := DecodeRecords(nil)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	payload, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload))
}
