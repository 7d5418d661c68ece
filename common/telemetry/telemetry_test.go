package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/atmopics/share/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorded(t *testing.T, rate float64) (*Telemetry, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tel, err := New(context.Background(), Options{
		ServiceName:    "share",
		SampleRate:     rate,
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Close(context.Background()) })
	return tel, recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := map[attribute.Key]string{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestTrackStage_RecordsSpans(t *testing.T) {
	tel, recorder := newRecorded(t, 1)

	_, done := tel.TrackStage(context.Background(), "fetch_record", AttrDID.String("did:plc:abc"))
	done(errors.New("boom"))

	_, done = tel.TrackStage(context.Background(), "locate")
	done(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "fetch_record", spans[0].Name())
	assert.Equal(t, map[attribute.Key]string{AttrStage: "fetch_record", AttrDID: "did:plc:abc"}, attrs(spans[0]))
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1, "error recorded as an event")

	assert.Equal(t, "locate", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestTrackStage_NestsUnderParent(t *testing.T) {
	tel, recorder := newRecorded(t, 1)

	ctx, parentDone := tel.TrackStage(context.Background(), "preview")
	_, childDone := tel.TrackStage(ctx, "render")
	childDone(nil)
	parentDone(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestTrackStage_SampledOut(t *testing.T) {
	tel, recorder := newRecorded(t, 0)

	_, done := tel.TrackStage(context.Background(), "locate")
	done(nil)

	assert.Empty(t, recorder.Ended())
}

func TestClose_NotStarted(t *testing.T) {
	tel, err := New(context.Background(), Options{ServiceName: "share", SampleRate: 1}, logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, tel.Close(context.Background()))
}
