package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopObservability(t *testing.T) {
	o := NewNoop()

	ctx, span := o.StartSpan(context.Background(), "sweep.run")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()

	assert.NotPanics(t, func() {
		o.RecordDelivery(context.Background(), 10*time.Millisecond, "ok")
		o.Shutdown()
	})
}

func TestNilObservabilityIsSafe(t *testing.T) {
	var o *Observability

	assert.NotPanics(t, func() {
		_, span := o.StartSpan(context.Background(), "noop")
		span.End()
		o.RecordDelivery(context.Background(), time.Second, "failed")
		o.Shutdown()
	})
}
