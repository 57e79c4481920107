package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/core/mocks"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// envelopeJSON matches an envelope by its wire form.
func envelopeJSON(want string) any {
	return mock.MatchedBy(func(env domain.Envelope) bool {
		got, err := json.Marshal(env)
		if err != nil {
			return false
		}
		var a, b any
		if json.Unmarshal(got, &a) != nil || json.Unmarshal([]byte(want), &b) != nil {
			return false
		}
		return assert.ObjectsAreEqual(a, b)
	})
}

func newRouter(t *testing.T) (*Router, *mocks.MockChannelLayer, *mocks.MockStatusCache) {
	t.Helper()
	layer := mocks.NewMockChannelLayer(t)
	cache := mocks.NewMockStatusCache(t)
	return NewRouter(layer, cache), layer, cache
}

func TestViewingDerivation(t *testing.T) {
	cases := []struct {
		name    string
		count   int
		viewing bool
	}{
		{"nobody watching", 0, false},
		{"one viewer", 1, true},
		{"several viewers", 4, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			r, layer, _ := newRouter(t)
			layer.On("CountActive", ctx, "p_web.42", core.CountOptions{}).Return(tc.count, nil).Once()
			want := `{"type":"printer.message","remote_status":{"viewing":false}}`
			if tc.viewing {
				want = `{"type":"printer.message","remote_status":{"viewing":true}}`
			}
			layer.On("GroupSend", ctx, "p_octo.42", envelopeJSON(want)).Return(core.DeliveryResult{Delivered: 1}, nil).Once()

			require.NoError(t, r.OnConnectionChange(ctx, "p_web.42"))
		})
	}
}

func TestPrinterDepopulationClearsStatusThenNotifies(t *testing.T) {
	ctx := context.Background()
	r, layer, cache := newRouter(t)
	var order []string
	layer.On("CountActive", ctx, "p_octo.7", core.CountOptions{}).Return(0, nil).Once()
	cache.On("DeleteStatus", ctx, domain.PrinterID("7")).Return(nil).Once().
		Run(func(mock.Arguments) { order = append(order, "delete") })
	layer.On("GroupSend", ctx, "p_web.7", envelopeJSON(`{"type":"printer.status"}`)).
		Return(core.DeliveryResult{}, nil).Once().
		Run(func(mock.Arguments) { order = append(order, "status") })

	require.NoError(t, r.OnConnectionChange(ctx, "p_octo.7"))
	assert.Equal(t, []string{"delete", "status"}, order)
}

func TestPrinterStillConnectedKeepsStatus(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	layer.On("CountActive", ctx, "p_octo.7", core.CountOptions{}).Return(2, nil).Once()
	layer.On("GroupSend", ctx, "p_web.7", envelopeJSON(`{"type":"printer.status"}`)).Return(core.DeliveryResult{}, nil).Once()

	require.NoError(t, r.OnConnectionChange(ctx, "p_octo.7"))
}

func TestStatusDeleteFailureStopsNotification(t *testing.T) {
	ctx := context.Background()
	r, layer, cache := newRouter(t)
	boom := errors.New("cache down")
	layer.On("CountActive", ctx, "p_octo.7", core.CountOptions{}).Return(0, nil).Once()
	cache.On("DeleteStatus", ctx, domain.PrinterID("7")).Return(boom).Once()

	assert.ErrorIs(t, r.OnConnectionChange(ctx, "p_octo.7"), boom)
}

func TestMalformedGroupNameSendsNothing(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRouter(t)
	for _, name := range []string{"nodothere", ".7", "p_web.", ""} {
		err := r.OnConnectionChange(ctx, name)
		assert.ErrorIs(t, err, domain.ErrInvalidGroupName, name)
	}
}

func TestOtherKindsHaveNoSideEffects(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRouter(t)
	require.NoError(t, r.OnConnectionChange(ctx, "janus_web.7"))
	require.NoError(t, r.OnConnectionChange(ctx, "octoprinttunnel.7"))
	require.NoError(t, r.OnConnectionChange(ctx, "something.else.7"))
}

func TestCountFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	storeErr := domain.NewTransportError("zcount", "asgi:group:p_web.1", errors.New("down"))
	layer.On("CountActive", ctx, "p_web.1", core.CountOptions{}).Return(0, storeErr).Once()

	var te *domain.TransportError
	assert.ErrorAs(t, r.OnConnectionChange(ctx, "p_web.1"), &te)
}

func TestSendViewingStatusWithKnownCountToChannel(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	layer.On("Send", ctx, domain.ChannelName("specific.abc"),
		envelopeJSON(`{"type":"printer.message","remote_status":{"viewing":true}}`)).Return(nil).Once()

	require.NoError(t, r.SendViewingStatus(ctx, "9", WithViewingCount(3), ToChannel("specific.abc")))
}

func TestSendShouldWatchStatus(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	printer := mocks.NewMockPrinter(t)
	printer.On("ID").Return(domain.PrinterID("5"))
	printer.On("ShouldWatch", ctx).Return(true, nil).Once()
	layer.On("GroupSend", ctx, "p_octo.5",
		envelopeJSON(`{"type":"printer.message","remote_status":{"should_watch":true}}`)).
		Return(core.DeliveryResult{}, nil).Once()

	require.NoError(t, r.SendShouldWatchStatus(ctx, printer))
}

func TestSendShouldWatchStatusFailsBeforeSending(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRouter(t)
	printer := mocks.NewMockPrinter(t)
	printer.On("ID").Return(domain.PrinterID("5"))
	printer.On("ShouldWatch", ctx).Return(false, domain.ErrPrinterNotFound).Once()

	assert.ErrorIs(t, r.SendShouldWatchStatus(ctx, printer), domain.ErrPrinterNotFound)
}

func TestRelaysAddressTheRightGroups(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	ok := core.DeliveryResult{}
	layer.On("GroupSend", ctx, "p_octo.1", envelopeJSON(`{"type":"printer.message","cmd":"pause"}`)).Return(ok, nil).Once()
	layer.On("GroupSend", ctx, "p_web.1", envelopeJSON(`{"type":"web.message","passthru":1}`)).Return(ok, nil).Once()
	layer.On("GroupSend", ctx, "p_web.1", envelopeJSON(`{"type":"printer.status"}`)).Return(ok, nil).Once()
	layer.On("GroupSend", ctx, "janus_web.1", envelopeJSON(`{"type":"janus.message","msg":"{}"}`)).Return(ok, nil).Once()
	layer.On("GroupSend", ctx, "octoprinttunnel.x1", envelopeJSON(`{"type":"octoprinttunnel.message","data":"abc"}`)).Return(ok, nil).Once()

	require.NoError(t, r.SendToPrinter(ctx, "1", map[string]any{"cmd": "pause"}))
	require.NoError(t, r.SendToWeb(ctx, "1", map[string]any{"passthru": 1}))
	require.NoError(t, r.SendStatusToWeb(ctx, "1"))
	require.NoError(t, r.SendSignalingToWeb(ctx, "1", "{}"))
	require.NoError(t, r.SendToTunnel(ctx, "octoprinttunnel.x1", "abc"))
}

func TestPartialDeliveryIsNotAnError(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	layer.On("GroupSend", ctx, "p_web.1", mock.Anything).Return(core.DeliveryResult{
		Delivered: 2,
		Failed:    []core.DeliveryFailure{{Channel: "b", Err: domain.ErrChannelNotFound}},
	}, nil).Once()

	require.NoError(t, r.SendStatusToWeb(ctx, "1"))
}

func TestCountConnectionsPassesOptions(t *testing.T) {
	ctx := context.Background()
	r, layer, _ := newRouter(t)
	now := time.Unix(2000, 0)
	layer.On("CountActive", ctx, "p_web.1", core.CountOptions{Threshold: time.Minute, ThresholdSet: true, Now: now}).Return(3, nil).Once()
	layer.On("Touch", ctx, "p_web.1", domain.ChannelName("c")).Return(nil).Once()

	n, err := r.CountConnections(ctx, "p_web.1", core.WithThreshold(time.Minute), core.At(now))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, r.Touch(ctx, "p_web.1", "c"))
}

func TestBlockingRouter(t *testing.T) {
	layer := mocks.NewMockChannelLayer(t)
	b := NewBlocking(NewRouter(layer, mocks.NewMockStatusCache(t)), time.Second)
	layer.On("CountActive", mock.Anything, "p_web.1", core.CountOptions{}).Return(1, nil).Once()
	layer.On("GroupSend", mock.Anything, "p_web.1", mock.Anything).Return(core.DeliveryResult{}, nil).Once()

	n, err := b.CountConnections("p_web.1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, b.SendStatusToWeb("1"))
}

type recordingChanger struct {
	mu     sync.Mutex
	groups []string
	err    error
}

func (c *recordingChanger) OnConnectionChange(_ context.Context, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = append(c.groups, group)
	return c.err
}

func TestDispatcherHandlesEveryQueuedEvent(t *testing.T) {
	target := &recordingChanger{err: errors.New("ignored")}
	d := NewDispatcher(context.Background(), target, 2, 16)
	for _, g := range []string{"p_web.1", "p_octo.1", "p_web.2"} {
		require.NoError(t, d.Dispatch(g))
	}
	d.Close()

	assert.ElementsMatch(t, []string{"p_web.1", "p_octo.1", "p_web.2"}, target.groups)
	assert.ErrorIs(t, d.Dispatch("p_web.3"), ErrDispatcherClosed)
	d.Close()
}

type blockingChanger struct{ release chan struct{} }

func (c *blockingChanger) OnConnectionChange(ctx context.Context, _ string) error {
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	target := &blockingChanger{release: make(chan struct{})}
	d := NewDispatcher(context.Background(), target, 1, 1)

	var full bool
	for range 10 {
		if errors.Is(d.Dispatch("p_web.1"), ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
	close(target.release)
	d.Close()
}
