package tracing

import (
	"context"
	"errors"
	"testing"

	"ai-interview-go/internal/config"
	"ai-interview-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "an****io", MaskPII("ana@x.io"))
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "an****io", SafeAttributeValue("candidate.email", "ana@x.io", 100))
	assert.Equal(t, "job-1", SafeAttributeValue("job.id", "job-1", 100))
	assert.Equal(t, "ab...yz", SafeAttributeValue("query", "abcdefghijklmnopqrstuvwxyz", 7))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeValidation, ClassifyError(types.NewValidationError("Submit", "bad")))
	assert.Equal(t, ErrorTypeNotFound, ClassifyError(types.NewNotFoundError("Get", "x")))
	assert.Equal(t, ErrorTypeConflict, ClassifyError(types.NewConflictError("Submit", "dup")))
	assert.Equal(t, ErrorTypeParse, ClassifyError(types.NewParseError("Analyze", "bad json", nil)))
	assert.Equal(t, ErrorTypeExternal, ClassifyError(types.NewExternalServiceError("Analyze", "llm", errors.New("503"))))
	assert.Equal(t, ErrorTypeInternal, ClassifyError(errors.New("boom")))
}

func TestRecordLifecycleError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordLifecycleError(span, types.NewConflictError("Submit", "dup"))
	RecordLifecycleError(span, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	found := false
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "error.type" {
			found = true
			assert.Equal(t, string(ErrorTypeConflict), kv.Value.AsString())
		}
	}
	assert.True(t, found)
}

func TestInitProvider_NoEndpoint(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}
