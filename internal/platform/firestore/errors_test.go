package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.FailedPrecondition, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			err := WrapError("orders.get", status.Error(tc.code, "boom"))
			var repoErr *Error
			require.ErrorAs(t, err, &repoErr)
			assert.Equal(t, tc.notFound, repoErr.IsNotFound())
			assert.Equal(t, tc.conflict, repoErr.IsConflict())
			assert.Equal(t, tc.unavailable, repoErr.IsUnavailable())
			assert.Equal(t, "orders.get", repoErr.Op())
			assert.Contains(t, repoErr.Error(), "orders.get")
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	assert.NoError(t, WrapError("x", nil))
	assert.ErrorIs(t, WrapError("x", context.Canceled), context.Canceled)
	assert.ErrorIs(t, WrapError("x", status.Error(codes.Canceled, "gone")), context.Canceled)
	assert.ErrorIs(t, WrapError("x", status.Error(codes.DeadlineExceeded, "slow")), context.DeadlineExceeded)
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := NotFound("payment_methods.find", "payment method stripe")
	wrapped := WrapError("transaction", inner)
	var repoErr *Error
	require.True(t, errors.As(wrapped, &repoErr))
	assert.True(t, repoErr.IsNotFound())
	assert.Equal(t, "payment_methods.find", repoErr.Op())
}

func TestContextWithTx(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	assert.False(t, ok)
	_, ok = TxFromContext(ContextWithTx(context.Background(), nil))
	assert.False(t, ok, "nil transaction must not count")
}

func TestUnitOfWorkRequiresProvider(t *testing.T) {
	var uow *UnitOfWork
	err := uow.RunInTx(context.Background(), func(context.Context) error { return nil })
	assert.Error(t, err)
}
