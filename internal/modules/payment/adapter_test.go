// README: Adapter retry, timeout and breaker behaviour against the sandbox and a mock gateway.
package payment

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"plow/internal/types"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() AdapterConfig {
	return AdapterConfig{
		Timeout:         50 * time.Millisecond,
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		BreakerFailures: 0,
		BreakerCooldown: time.Second,
	}
}

var cad50 = types.Money{Amount: 5000, Currency: "CAD"}

func TestAdapterRetriesTransientWithSameKey(t *testing.T) {
	sb := NewSandbox()
	sb.FailNext(OpAuthorize, 2)
	a := NewAdapter(sb, testConfig(), quietLogger())

	hold, err := a.Authorize(context.Background(), AuthorizeRequest{
		Amount: cad50, PaymentMethodRef: "pm_card_visa", IdempotencyKey: "job-1:pending",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, hold.Ref)
	assert.Equal(t, 3, sb.Calls(OpAuthorize))
	assert.Equal(t, 1, sb.Effects(OpAuthorize))
}

func TestAdapterExhaustedRetriesSurfaceAsPaymentError(t *testing.T) {
	sb := NewSandbox()
	sb.FailNext(OpAuthorize, 5)
	a := NewAdapter(sb, testConfig(), quietLogger())

	_, err := a.Authorize(context.Background(), AuthorizeRequest{
		Amount: cad50, PaymentMethodRef: "pm_card_visa", IdempotencyKey: "job-1:pending",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayment)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, sb.Calls(OpAuthorize))
}

func TestAdapterPermanentFailureIsNotRetried(t *testing.T) {
	sb := NewSandbox()
	a := NewAdapter(sb, testConfig(), quietLogger())

	_, err := a.Authorize(context.Background(), AuthorizeRequest{
		Amount: cad50, PaymentMethodRef: DeclinedCard, IdempotencyKey: "job-1:pending",
	})
	assert.ErrorIs(t, err, ErrPayment)
	assert.Equal(t, "card_declined", Code(err))
	assert.Equal(t, 1, sb.Calls(OpAuthorize))
}

func TestAdapterTimeoutIsTransient(t *testing.T) {
	sb := NewSandbox()
	sb.SetLatency(200 * time.Millisecond)
	cfg := testConfig()
	cfg.MaxAttempts = 2
	a := NewAdapter(sb, cfg, quietLogger())

	_, err := a.Authorize(context.Background(), AuthorizeRequest{
		Amount: cad50, PaymentMethodRef: "pm_card_visa", IdempotencyKey: "job-1:pending",
	})
	assert.ErrorIs(t, err, ErrPayment)
	assert.Equal(t, "timeout", Code(err))
	assert.Equal(t, 2, sb.Calls(OpAuthorize))
	assert.Equal(t, 0, sb.Effects(OpAuthorize))
}

func TestAdapterBreakerOpens(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := NewMockGateway(ctrl)
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Minute
	a := NewAdapter(gw, cfg, quietLogger())

	outage := &GatewayError{Op: OpCancel, Code: "api_error", Transient: true}
	gw.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(CancelResult{}, outage).Times(2)

	for i := 0; i < 2; i++ {
		_, err := a.Cancel(context.Background(), CancelRequest{HoldRef: "h", IdempotencyKey: "k"})
		require.ErrorIs(t, err, ErrPayment)
	}
	// third call short-circuits without reaching the gateway
	_, err := a.Cancel(context.Background(), CancelRequest{HoldRef: "h", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrPayment)
	assert.Equal(t, "unavailable", Code(err))
}

func TestAdapterDeclinesDoNotTripBreaker(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := NewMockGateway(ctrl)
	cfg := testConfig()
	cfg.BreakerFailures = 1
	a := NewAdapter(gw, cfg, quietLogger())

	decline := &GatewayError{Op: OpAuthorize, Code: "card_declined"}
	gw.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(Hold{}, decline).Times(3)

	for i := 0; i < 3; i++ {
		_, err := a.Authorize(context.Background(), AuthorizeRequest{Amount: cad50, IdempotencyKey: "k"})
		assert.Equal(t, "card_declined", Code(err))
	}
}

func TestAdapterPassesThroughSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := NewMockGateway(ctrl)
	a := NewAdapter(gw, testConfig(), quietLogger())

	want := CaptureResult{CaptureRef: "cap_1", TransferRef: "tr_1", Payout: 4500}
	gw.EXPECT().Capture(gomock.Any(), CaptureRequest{HoldRef: "h", Amount: cad50, FeeAmount: 500, IdempotencyKey: "j:completed"}).
		Return(want, nil).Times(1)

	got, err := a.Capture(context.Background(), CaptureRequest{HoldRef: "h", Amount: cad50, FeeAmount: 500, IdempotencyKey: "j:completed"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAdapterCallerCancellation(t *testing.T) {
	sb := NewSandbox()
	sb.SetLatency(time.Second)
	cfg := testConfig()
	cfg.Timeout = 5 * time.Second
	a := NewAdapter(sb, cfg, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Cancel(ctx, CancelRequest{HoldRef: "h", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrPayment)
	assert.True(t, errors.Is(err, context.Canceled))
}
