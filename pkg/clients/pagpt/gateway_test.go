package pagpt

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "pagptclient/pkg/errors"
	"pagptclient/pkg/monitoring"
)

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		MinRequests:      1,
		FailureThreshold: 0.5,
		Timeout:          time.Minute,
	}
}

func TestGateway_BreakerIgnoresSignFailure(t *testing.T) {
	doer := &recordingDoer{status: http.StatusOK, body: `{}`}
	gw := newGateway(monitoring.EndpointDialog, doer, nil, false, log.DefaultLogger).withBreaker(testBreakerConfig())

	badSign := func() (SignedHeaders, error) {
		return SignedHeaders{}, pkgerrors.NewCryptoSignError(nil, "")
	}
	for i := 0; i < 5; i++ {
		_, err := gw.post(context.Background(), "https://gateway.example.com/dialog", badSign, []byte(`{}`))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCryptoSignError(err))
	}
	assert.Equal(t, gobreaker.StateClosed, gw.breaker.State())
	assert.Empty(t, doer.requests)

	goodSign := func() (SignedHeaders, error) {
		return SignedHeaders{ContentType: "application/json"}, nil
	}
	resp, err := gw.post(context.Background(), "https://gateway.example.com/dialog", goodSign, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, doer.requests, 1)
}

func TestGateway_BreakerTripsOnTransportFailure(t *testing.T) {
	gw := newGateway(monitoring.EndpointDialog, failingDoer{}, nil, false, log.DefaultLogger).withBreaker(testBreakerConfig())

	sign := func() (SignedHeaders, error) { return SignedHeaders{}, nil }
	_, err := gw.post(context.Background(), "https://gateway.example.com/dialog", sign, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, gw.breaker.State())

	_, err = gw.post(context.Background(), "https://gateway.example.com/dialog", sign, []byte(`{}`))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
