package apperr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(InvalidState("session cannot be updated", "pending"), "replace session")

	require.True(t, Is(err, KindInvalidState))
	e, ok := As(err)
	require.True(t, ok)
	require.Equal(t, "pending", e.State)
	require.Contains(t, err.Error(), "session cannot be updated")
}

func TestDownstreamKinds(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	require.True(t, KindOf(Store(cause, "insert failed")).Downstream())
	require.True(t, KindOf(StoreUnavailable(cause, "db down")).Downstream())
	require.True(t, KindOf(Gateway(cause, "order failed")).Downstream())
	require.False(t, KindOf(Validation("bad")).Downstream())
	require.Equal(t, KindUnknown, KindOf(cause))
	require.Equal(t, cause, errors.Cause(Store(cause, "x")))
}
