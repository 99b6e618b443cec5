package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartSpanDisabledIsNoop(t *testing.T) {
	tr := New(false, "test-component")
	require := tr
	assert.NotNil(t, require)

	ctx, finish := tr.StartSpan(context.Background(), "op", map[string]string{"k": "v"})
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { finish(nil) })
}

func TestStartSpanEnabledRecordsError(t *testing.T) {
	tr := New(true, "test-component")
	assert.NotNil(t, tr)

	_, finish := tr.StartSpan(context.Background(), "op", nil)
	assert.NotPanics(t, func() { finish(errors.New("boom")) })
}

func TestNilTracerStartSpanIsSafe(t *testing.T) {
	var tr *Tracer
	ctx, finish := tr.StartSpan(context.Background(), "op", map[string]string{"a": "b"})
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { finish(nil) })
}

func TestConvertAttrsSkipsEmptyKeys(t *testing.T) {
	attrs := convertAttrs(map[string]string{"": "ignored", "ok": "value"})
	assert.Len(t, attrs, 1)
	assert.Equal(t, "ok", string(attrs[0].Key))
}

func TestConvertAttrsNilForEmptyMap(t *testing.T) {
	assert.Nil(t, convertAttrs(nil))
}
