package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
)

var _ Backend = (*Instrumented)(nil)

// Instrumented wraps a Backend with otel call-count and latency metrics
// per operation, grounded on the teacher's
// pkg/sqlstore/impl/pgx_store_instrumented.go decorator.
type Instrumented struct {
	backend          Backend
	callCount        syncint64.Counter
	latencyHistogram syncint64.Histogram
}

// NewInstrumented wraps backend with metrics recording.
func NewInstrumented(backend Backend) (*Instrumented, error) {
	meter := global.MeterProvider().Meter("arak")
	callCount, err := meter.SyncInt64().Counter("arak.storage.call.count")
	if err != nil {
		return nil, err
	}
	latencyHistogram, err := meter.SyncInt64().Histogram("arak.storage.call.latency")
	if err != nil {
		return nil, err
	}
	return &Instrumented{
		backend:          backend,
		callCount:        callCount,
		latencyHistogram: latencyHistogram,
	}, nil
}

func (s *Instrumented) record(ctx context.Context, method string, start time.Time, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.Bool("success", err == nil),
	}
	s.callCount.Add(ctx, 1, attrs...)
	s.latencyHistogram.Record(ctx, time.Since(start).Milliseconds(), attrs...)
}

// PrepareEvent implements Backend.
func (s *Instrumented) PrepareEvent(ctx context.Context, name string, desc *descriptor.Event) error {
	start := time.Now()
	err := s.backend.PrepareEvent(ctx, name, desc)
	s.record(ctx, "PrepareEvent", start, err)
	return err
}

// EventBlock implements Backend.
func (s *Instrumented) EventBlock(ctx context.Context, name string) (Watermark, error) {
	start := time.Now()
	w, err := s.backend.EventBlock(ctx, name)
	s.record(ctx, "EventBlock", start, err)
	return w, err
}

// Update implements Backend.
func (s *Instrumented) Update(ctx context.Context, blocks []EventBlock, logs []Log) error {
	start := time.Now()
	err := s.backend.Update(ctx, blocks, logs)
	s.record(ctx, "Update", start, err)
	return err
}

// Remove implements Backend.
func (s *Instrumented) Remove(ctx context.Context, uncles []Uncle) error {
	start := time.Now()
	err := s.backend.Remove(ctx, uncles)
	s.record(ctx, "Remove", start, err)
	return err
}

// Exec implements Backend.
func (s *Instrumented) Exec(ctx context.Context, sql string) error {
	start := time.Now()
	err := s.backend.Exec(ctx, sql)
	s.record(ctx, "Exec", start, err)
	return err
}

// Close implements Backend.
func (s *Instrumented) Close() error {
	return s.backend.Close()
}
