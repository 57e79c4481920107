package layer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/octopresence/internal/adapters/memory"
	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/core/mocks"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newMemoryLayer(t *testing.T, opts Options) (*Layer, *memory.GroupStore, *memory.Transport, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts.Clock = clock.Now
	groups := memory.NewGroupStore()
	transport := memory.NewTransport(8)
	return New(groups, transport, opts), groups, transport, clock
}

func TestTouchTwiceKeepsOneMemberWithLatestTime(t *testing.T) {
	ctx := context.Background()
	l, groups, _, clock := newMemoryLayer(t, Options{})

	require.NoError(t, l.Touch(ctx, "p_web.1", "c"))
	clock.now = clock.now.Add(7 * time.Second)
	require.NoError(t, l.Touch(ctx, "p_web.1", "c"))

	snap := groups.Snapshot("p_web.1")
	require.Len(t, snap, 1)
	assert.True(t, snap[0].TouchedAt.Equal(clock.now))
}

func TestCountActiveLivenessWindow(t *testing.T) {
	ctx := context.Background()
	l, _, _, clock := newMemoryLayer(t, Options{})
	touched := clock.now
	window := 1200 * time.Second
	require.NoError(t, l.Touch(ctx, "p_octo.7", "c"))

	n, err := l.CountActive(ctx, "p_octo.7", core.WithThreshold(window), core.At(touched.Add(window-time.Second)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.CountActive(ctx, "p_octo.7", core.WithThreshold(window), core.At(touched.Add(window+time.Second)))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCountActiveZeroThresholdCountsOnlyCurrentTouches(t *testing.T) {
	ctx := context.Background()
	l, _, _, clock := newMemoryLayer(t, Options{})
	require.NoError(t, l.Touch(ctx, "p_web.3", "c"))

	n, err := l.CountActive(ctx, "p_web.3", core.WithThreshold(0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.now = clock.now.Add(time.Second)
	n, err = l.CountActive(ctx, "p_web.3", core.WithThreshold(0))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCountActiveRejectsNegativeThreshold(t *testing.T) {
	l, _, _, _ := newMemoryLayer(t, Options{})
	_, err := l.CountActive(context.Background(), "p_web.3", core.WithThreshold(-time.Second))
	assert.ErrorIs(t, err, core.ErrInvalidThreshold)
}

func TestCountActiveDefaultsToLivenessWindowAndClock(t *testing.T) {
	ctx := context.Background()
	l, _, _, clock := newMemoryLayer(t, Options{})
	require.NoError(t, l.Touch(ctx, "p_web.1", "c"))

	clock.now = clock.now.Add(core.DefaultLivenessWindow)
	n, err := l.CountActive(ctx, "p_web.1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.now = clock.now.Add(time.Second)
	n, err = l.CountActive(ctx, "p_web.1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGroupSendIsolatesMemberFailures(t *testing.T) {
	ctx := context.Background()
	l, _, transport, _ := newMemoryLayer(t, Options{})
	for _, ch := range []domain.ChannelName{"a", "b", "c"} {
		require.NoError(t, l.Touch(ctx, "p_web.1", ch))
	}
	require.NoError(t, transport.Open(ctx, "a"))
	require.NoError(t, transport.Open(ctx, "c"))

	res, err := l.GroupSend(ctx, "p_web.1", domain.PrinterStatus())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, domain.ChannelName("b"), res.Failed[0].Channel)
	assert.ErrorIs(t, res.Failed[0].Err, domain.ErrChannelNotFound)

	for _, ch := range []domain.ChannelName{"a", "c"} {
		env, err := transport.Receive(ctx, ch)
		require.NoError(t, err)
		assert.Equal(t, domain.TypePrinterStatus, env.Type())
	}
}

func TestGroupSendAttemptsEveryMemberWithMockTransport(t *testing.T) {
	ctx := context.Background()
	groups := mocks.NewMockGroupStore(t)
	transport := mocks.NewMockTransport(t)
	l := New(groups, transport, Options{FanoutWorkers: 1})
	env := domain.WebMessage(map[string]any{"k": "v"})

	groups.On("Members", ctx, "p_web.3", mock.AnythingOfType("time.Time")).
		Return([]domain.ChannelName{"a", "b", "c"}, nil).Once()
	transport.On("Deliver", ctx, domain.ChannelName("a"), env).Return(nil).Once()
	transport.On("Deliver", ctx, domain.ChannelName("b"), env).Return(errors.New("boom")).Once()
	transport.On("Deliver", ctx, domain.ChannelName("c"), env).Return(nil).Once()

	res, err := l.GroupSend(ctx, "p_web.3", env)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, domain.ChannelName("b"), res.Failed[0].Channel)
}

func TestGroupSendSkipsMembersPastGroupExpiry(t *testing.T) {
	ctx := context.Background()
	l, _, transport, clock := newMemoryLayer(t, Options{GroupExpiry: time.Hour})
	require.NoError(t, l.Touch(ctx, "p_web.1", "old"))
	require.NoError(t, transport.Open(ctx, "old"))
	clock.now = clock.now.Add(2 * time.Hour)

	res, err := l.GroupSend(ctx, "p_web.1", domain.PrinterStatus())
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, res.Failed)
}

func TestGroupSendPrunePolicy(t *testing.T) {
	ctx := context.Background()
	l, groups, _, _ := newMemoryLayer(t, Options{Policy: PruneMissing{}})
	require.NoError(t, l.Touch(ctx, "p_web.1", "gone"))

	res, err := l.GroupSend(ctx, "p_web.1", domain.PrinterStatus())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Empty(t, groups.Snapshot("p_web.1"))
}

func TestGroupSendReportOnlyKeepsMembers(t *testing.T) {
	ctx := context.Background()
	l, groups, _, _ := newMemoryLayer(t, Options{})
	require.NoError(t, l.Touch(ctx, "p_web.1", "gone"))

	_, err := l.GroupSend(ctx, "p_web.1", domain.PrinterStatus())
	require.NoError(t, err)
	assert.Len(t, groups.Snapshot("p_web.1"), 1)
}

func TestGroupSendSurfacesStoreFailure(t *testing.T) {
	ctx := context.Background()
	groups := mocks.NewMockGroupStore(t)
	transport := mocks.NewMockTransport(t)
	l := New(groups, transport, Options{})
	storeErr := domain.NewTransportError("zrangebyscore", "asgi:group:p_web.1", errors.New("down"))
	groups.On("Members", ctx, "p_web.1", mock.Anything).Return(nil, storeErr).Once()

	_, err := l.GroupSend(ctx, "p_web.1", domain.PrinterStatus())
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestTouchAndCountPropagateTransportErrors(t *testing.T) {
	ctx := context.Background()
	groups := mocks.NewMockGroupStore(t)
	l := New(groups, mocks.NewMockTransport(t), Options{})
	storeErr := domain.NewTransportError("zadd", "k", errors.New("down"))
	groups.On("Add", ctx, "p_web.1", domain.ChannelName("c"), mock.Anything).Return(storeErr).Once()
	groups.On("Count", ctx, "p_web.1", mock.Anything).Return(0, storeErr).Once()

	assert.ErrorIs(t, l.Touch(ctx, "p_web.1", "c"), storeErr)
	_, err := l.CountActive(ctx, "p_web.1")
	assert.ErrorIs(t, err, storeErr)
}

func TestSendUnicast(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newMemoryLayer(t, Options{})
	ch, err := l.NewChannel(ctx)
	require.NoError(t, err)

	require.NoError(t, l.Send(ctx, ch, domain.JanusMessage("m")))
	env, err := l.Receive(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeJanusMessage, env.Type())

	require.NoError(t, l.CloseChannel(ctx, ch))
	assert.ErrorIs(t, l.Send(ctx, ch, domain.PrinterStatus()), domain.ErrChannelNotFound)
}

func TestInvalidKeysNeverReachTheStore(t *testing.T) {
	ctx := context.Background()
	l := New(mocks.NewMockGroupStore(t), mocks.NewMockTransport(t), Options{})

	assert.ErrorIs(t, l.Touch(ctx, "bad group", "c"), domain.ErrInvalidGroupName)
	assert.ErrorIs(t, l.Touch(ctx, "p_web.1", ""), domain.ErrInvalidChannelName)
	_, err := l.CountActive(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidGroupName)
	_, err = l.GroupSend(ctx, "a b", domain.PrinterStatus())
	assert.ErrorIs(t, err, domain.ErrInvalidGroupName)
	assert.ErrorIs(t, l.Send(ctx, "", domain.PrinterStatus()), domain.ErrInvalidChannelName)
}

func TestBlockingMirrorsLayer(t *testing.T) {
	ctx := context.Background()
	l, _, transport, _ := newMemoryLayer(t, Options{})
	b := NewBlocking(l, time.Second)

	require.NoError(t, b.Touch("p_octo.5", "c"))
	n, err := b.CountActive("p_octo.5")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, transport.Open(ctx, "c"))
	res, err := b.GroupSend("p_octo.5", domain.PrinterStatus())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	require.NoError(t, b.Send("c", domain.PrinterStatus()))

	require.NoError(t, b.Discard("p_octo.5", "c"))
	n, err = b.CountActive("p_octo.5")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBlockingAppliesTimeout(t *testing.T) {
	layer := mocks.NewMockChannelLayer(t)
	b := NewBlocking(layer, 50*time.Millisecond)
	layer.On("Touch", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "p_web.1", domain.ChannelName("c")).Return(nil).Once()

	require.NoError(t, b.Touch("p_web.1", "c"))
}
