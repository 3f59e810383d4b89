package metrics

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsDriveGauges(t *testing.T) {
	m := New(nil)
	ctx := context.Background()
	for _, k := range []domain.EventKind{
		domain.EventRoomCreated,
		domain.EventOccupantJoined,
		domain.EventOccupantJoined,
		domain.EventOccupantKicked,
	} {
		require.NoError(t, m.OnEvent(ctx, domain.Event{Kind: k}))
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.occupants))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(string(domain.EventOccupantJoined))))
}

func TestRequestsAndDeliveries(t *testing.T) {
	m := New(nil)
	m.ObserveRequest("admin", nil)
	m.ObserveRequest("admin", fmt.Errorf("wrapped: %w", domain.ErrForbidden))
	m.ObserveDelivery(3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("admin", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("admin", "forbidden")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.delivered.WithLabelValues("sent")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "mucd_requests_total")
}
