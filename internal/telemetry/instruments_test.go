package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	return totals
}

func TestInstrumentsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	ins := NewInstruments(mp.Meter("test"))
	ctx := context.Background()

	ins.IngestEvents(ctx, "applied", 7)
	ins.IngestEvents(ctx, "duplicate", 0)
	ins.Decision(ctx, false, "", time.Millisecond)
	ins.Decision(ctx, true, "no known owner", time.Millisecond)
	ins.Reservation(ctx, "reserved")

	totals := collect(t, reader)
	assert.Equal(t, int64(7), totals["bugrouter.ingest.events"])
	assert.Equal(t, int64(2), totals["bugrouter.assignment.decisions"])
	assert.Equal(t, int64(1), totals["bugrouter.availability.reservations"])
}

func TestNilInstrumentsAreNoops(t *testing.T) {
	var ins *Instruments
	assert.NotPanics(t, func() {
		ins.IngestEvents(context.Background(), "applied", 1)
		ins.Decision(context.Background(), true, "x", 0)
		ins.Reservation(context.Background(), "overloaded")
	})
}

func TestInitWithoutWriterIsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), "brouter", "test", Options{}))
	assert.Empty(t, shutdownFns)
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(context.Background(), "brouter", "test", Options{Writer: &buf, Interval: time.Hour}))

	NewInstruments(nil).IngestEvents(context.Background(), "applied", 3)
	Shutdown(context.Background())

	assert.Contains(t, buf.String(), "bugrouter.ingest.events")
}
