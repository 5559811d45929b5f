package repository

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVehicleID = "65f1c0ffee00000000000001"

func TestRedisVehicleLock_Acquire(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock redismock.ClientMock)
		wantErr error
	}{
		{
			name: "free lock is acquired",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(LockKey(testVehicleID), "owner-a", 5*time.Second).SetVal(true)
			},
		},
		{
			name: "held lock is reported",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(LockKey(testVehicleID), "owner-a", 5*time.Second).SetVal(false)
			},
			wantErr: bookingserrors.ErrLockHeld,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			tt.setup(mock)

			repo := NewRedisVehicleLockRepository(db)
			err := repo.Acquire(context.Background(), testVehicleID, "owner-a", 5*time.Second)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisVehicleLock_AcquireStorageError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSetNX(LockKey(testVehicleID), "owner-a", time.Second).SetErr(errors.New("connection refused"))

	repo := NewRedisVehicleLockRepository(db)
	err := repo.Acquire(context.Background(), testVehicleID, "owner-a", time.Second)

	require.Error(t, err)
	assert.NotErrorIs(t, err, bookingserrors.ErrLockHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisVehicleLock_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectEval(releaseScript, []string{LockKey(testVehicleID)}, "owner-a").SetVal(int64(1))

	repo := NewRedisVehicleLockRepository(db)
	require.NoError(t, repo.Release(context.Background(), testVehicleID, "owner-a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisVehicleLock_ReleaseNotOwner(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectEval(releaseScript, []string{LockKey(testVehicleID)}, "owner-b").SetVal(int64(0))

	repo := NewRedisVehicleLockRepository(db)
	assert.NoError(t, repo.Release(context.Background(), testVehicleID, "owner-b"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
