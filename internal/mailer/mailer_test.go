package mailer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-ohms-auth/config"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	args := m.Called(ctx, recipient, subject, htmlBody)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRenderResetEmail(t *testing.T) {
	body, err := RenderResetEmail("<alice>", "http://localhost:8000/auth/reset_password/abc", 30*time.Minute)
	require.NoError(t, err)

	assert.Contains(t, body, "http://localhost:8000/auth/reset_password/abc")
	assert.Contains(t, body, "30 minutes")
	assert.Contains(t, body, "&lt;alice&gt;")
	assert.NotContains(t, body, "<alice>")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(testLogger()).Send(context.Background(), "a@example.com", ResetSubject, "<p>hi</p>"))
}

func TestSMTPNotifier_RejectsBadAddresses(t *testing.T) {
	n := NewSMTPNotifier(config.MailConfig{Host: "localhost", Port: 2525, From: "ohms@example.com"}, testLogger())

	_, err := n.message("not an address", ResetSubject, "<p>hi</p>")
	assert.Error(t, err)

	msg, err := n.message("alice@example.com", ResetSubject, "<p>hi</p>")
	require.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestAsyncNotifier(t *testing.T) {
	t.Run("DeliversInBackground", func(t *testing.T) {
		next := new(MockNotifier)
		var wg sync.WaitGroup
		wg.Add(1)
		next.On("Send", mock.Anything, "alice@example.com", ResetSubject, "<p>link</p>").
			Run(func(mock.Arguments) { wg.Done() }).
			Return(nil).Once()

		n := NewAsyncNotifier(next, 2, 4, testLogger())
		require.NoError(t, n.Send(context.Background(), "alice@example.com", ResetSubject, "<p>link</p>"))
		wg.Wait()
		n.Close()

		next.AssertExpectations(t)
	})

	t.Run("FailuresAreSwallowed", func(t *testing.T) {
		next := new(MockNotifier)
		next.On("Send", mock.Anything, "bob@example.com", ResetSubject, mock.Anything).
			Return(errors.New("relay down")).Once()

		n := NewAsyncNotifier(next, 1, 1, testLogger())
		assert.NoError(t, n.Send(context.Background(), "bob@example.com", ResetSubject, "body"))
		n.Close()

		next.AssertExpectations(t)
	})

	t.Run("CancelledRequestStillDelivers", func(t *testing.T) {
		next := new(MockNotifier)
		next.On("Send", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }),
			"carol@example.com", ResetSubject, "body").Return(nil).Once()

		n := NewAsyncNotifier(next, 1, 1, testLogger())
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, n.Send(ctx, "carol@example.com", ResetSubject, "body"))
		cancel()
		n.Close()

		next.AssertExpectations(t)
	})

	t.Run("QueueFull", func(t *testing.T) {
		next := new(MockNotifier)
		release := make(chan struct{})
		started := make(chan struct{})
		next.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				select {
				case started <- struct{}{}:
				default:
				}
				<-release
			}).
			Return(nil)

		n := NewAsyncNotifier(next, 1, 1, testLogger())
		require.NoError(t, n.Send(context.Background(), "a@example.com", "s", "b"))
		<-started // the worker holds the first message
		require.NoError(t, n.Send(context.Background(), "b@example.com", "s", "b"))
		assert.ErrorIs(t, n.Send(context.Background(), "c@example.com", "s", "b"), ErrQueueFull)

		close(release)
		n.Close()
	})

	t.Run("SendAfterClose", func(t *testing.T) {
		n := NewAsyncNotifier(new(MockNotifier), 1, 1, testLogger())
		n.Close()
		assert.ErrorIs(t, n.Send(context.Background(), "a@example.com", "s", "b"), ErrDispatcherClosed)
	})
}
