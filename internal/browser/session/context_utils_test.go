// internal/browser/session/context_utils_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type ctxKey string

const testKey ctxKey = "tab"

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), testKey, "target-1")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "target-1", combined.Value(testKey))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelledByOperationTimeout", func(t *testing.T) {
		op, cancelOp := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelOp()
		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()

		assert.Eventually(t, func() bool { return combined.Err() != nil },
			time.Second, 5*time.Millisecond)
		// The operation's deadline surfaces as cancellation of the combined context.
		assert.ErrorIs(t, combined.Err(), context.Canceled)
		assert.ErrorIs(t, op.Err(), context.DeadlineExceeded)
	})

	t.Run("ExplicitCancellation", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	t.Run("InheritsValues", func(t *testing.T) {
		parent := context.WithValue(context.Background(), testKey, "target-1")
		assert.Equal(t, "target-1", Detach(parent).Value(testKey))
	})

	t.Run("IgnoresParentCancellation", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		detached := Detach(parent)

		<-parent.Done()
		_, ok := detached.Deadline()
		require.False(t, ok)
		assert.NoError(t, detached.Err())
	})
}
