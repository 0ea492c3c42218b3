package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/gateway/gatewaytest"
)

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	cb := gateway.NewCircuitBreaker(2, 1, 20*time.Millisecond)
	assert.Equal(t, gateway.CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, gateway.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, gateway.CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, gateway.CircuitOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, gateway.CircuitClosed, cb.State())

	cb.RecordFailure()
	cb.Reset()
	cb.RecordFailure()
	assert.Equal(t, gateway.CircuitClosed, cb.State())
	assert.Equal(t, "half-open", gateway.CircuitHalfOpen.String())
}

func TestGuarded_Timeout(t *testing.T) {
	t.Parallel()

	fake := gatewaytest.New()
	fake.Block(gatewaytest.OpPauseSubscription, true)
	g := gateway.NewGuarded(fake, gateway.WithTimeout(10*time.Millisecond))

	start := time.Now()
	ok, err := g.PauseSubscription(context.Background(), "sub_1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, gateway.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fake.Calls(gatewaytest.OpPauseSubscription))
}

func TestGuarded_OpensCircuit(t *testing.T) {
	t.Parallel()

	fake := gatewaytest.New()
	boom := errors.New("502 bad gateway")
	fake.Fail(gatewaytest.OpGetSubscription, boom)
	g := gateway.NewGuarded(fake, gateway.WithCircuitBreaker(gateway.NewCircuitBreaker(2, 1, time.Hour)))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := g.GetSubscription(ctx, "sub_1")
		assert.ErrorIs(t, err, boom)
	}
	_, err := g.GetSubscription(ctx, "sub_1")
	assert.ErrorIs(t, err, gateway.ErrCircuitOpen)
	assert.Equal(t, 2, fake.Calls(gatewaytest.OpGetSubscription))
	assert.Equal(t, gateway.CircuitOpen, g.Breaker().State())
}

func TestGuarded_NotFoundKeepsCircuitClosed(t *testing.T) {
	t.Parallel()

	fake := gatewaytest.New()
	g := gateway.NewGuarded(fake, gateway.WithCircuitBreaker(gateway.NewCircuitBreaker(1, 1, time.Hour)))

	for i := 0; i < 3; i++ {
		_, err := g.GetProduct(context.Background(), "missing")
		assert.ErrorIs(t, err, gateway.ErrNotFound)
	}
	assert.Equal(t, gateway.CircuitClosed, g.Breaker().State())
}

func TestGuarded_PassesThrough(t *testing.T) {
	t.Parallel()

	fake := gatewaytest.New()
	g := gateway.NewGuarded(fake)
	ctx := context.Background()

	cus, err := g.CreateCustomer(ctx, "a@example.com", "A")
	require.NoError(t, err)
	prod, err := g.CreateProduct(ctx, "Pro", "")
	require.NoError(t, err)
	price, err := g.CreatePrice(ctx, gateway.PriceParams{
		ProductID: prod, Amount: decimal.NewFromInt(10), Currency: "USD", IntervalUnit: "month", IntervalCount: 1,
	})
	require.NoError(t, err)
	sub, err := g.CreateSubscription(ctx, cus, price, "pm_1")
	require.NoError(t, err)

	ok, err := g.CancelSubscription(ctx, sub)
	require.NoError(t, err)
	assert.True(t, ok)

	remote, err := g.GetSubscription(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "canceled", remote.Status)

	res, err := g.ProcessPayment(ctx, gateway.Payment{PaymentMethodID: "pm_1", Amount: decimal.NewFromInt(5), Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestNewGuarded_PanicsOnNil(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { gateway.NewGuarded(nil) })
}
