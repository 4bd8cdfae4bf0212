package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/inventory"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

// counter sums the data points of an int64 counter whose attributes include
// every pair in want.
func counter(t *testing.T, reader sdkmetric.Reader, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
		points:
			for _, dp := range sum.DataPoints {
				for _, kv := range want {
					if v, ok := dp.Attributes.Value(kv.Key); !ok || v.Emit() != kv.Value.Emit() {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestBookingCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	svc := NewService(f.env.DB, Deps{
		Users:      user.Repository{},
		Properties: property.Repository{},
		Ledger:     inventory.NewLedger(f.env.Events),
		Events:     f.env.Events,
		Notifier:   f.notes,
		Meter:      sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}, zap.NewNop())
	p := f.property(t, 1)

	in := CreateInput{
		PropertyID:  p.ID,
		StartDate:   date("2024-06-01"),
		EndDate:     datePtr("2024-06-30"),
		BookingType: TypeFixedTerm,
		RoomCount:   1,
	}
	b, err := svc.CreateBooking(ctx, f.tenant.ID, in)
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, f.stranger.ID, in)
	require.Equal(t, apperr.InsufficientInventory, apperr.KindOf(err))
	_, err = svc.UpdateBookingStatus(ctx, f.stranger.ID, b.ID, StatusInput{Status: StatusCancelled})
	require.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	assert.Equal(t, int64(1), counter(t, reader, "bookings.created"))
	assert.Equal(t, int64(1), counter(t, reader, "bookings.refused",
		attribute.String("operation", "create"),
		attribute.String("kind", "insufficient_inventory"),
	))
	assert.Equal(t, int64(1), counter(t, reader, "bookings.refused",
		attribute.String("operation", "update_status"),
		attribute.String("kind", "forbidden"),
	))
	assert.Equal(t, int64(2), counter(t, reader, "bookings.refused"))
}
