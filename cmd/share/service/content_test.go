package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/atmopics/share/common/blob"
	"github.com/atmopics/share/common/identity"
	"github.com/atmopics/share/common/layout"
	"github.com/atmopics/share/common/lexicon"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/repo"
	"github.com/atmopics/share/common/telemetry"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeDirectory struct {
	resolveCalls int
	resolveErr   error
	locateErr    error
	purged       []string
}

func (f *fakeDirectory) Purge(ctx context.Context, did string) error {
	f.purged = append(f.purged, did)
	return nil
}

func (f *fakeDirectory) ResolveDID(ctx context.Context, raw string) (string, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "did:plc:alice", nil
}

func (f *fakeDirectory) Locate(ctx context.Context, did string) (*identity.Location, error) {
	if f.locateErr != nil {
		return nil, f.locateErr
	}
	return &identity.Location{DID: did, PDS: "https://pds.test"}, nil
}

type fakeRecords struct {
	value string
	err   error
	calls int
}

func (f *fakeRecords) GetRecord(ctx context.Context, loc *identity.Location, addr repo.Address) (*repo.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &repo.Record{URI: addr.URI(), Value: json.RawMessage(f.value)}, nil
}

type fakeRasterizer struct{ html string }

func (f *fakeRasterizer) Render(ctx context.Context, html string, canvas layout.Canvas) ([]byte, error) {
	f.html = html
	return []byte("png"), nil
}

func newTracedService(t *testing.T, dir *fakeDirectory, records *fakeRecords) (*ContentService, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tel, err := telemetry.New(context.Background(), telemetry.Options{
		ServiceName:    "share-test",
		SampleRate:     1,
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Close(context.Background()) })

	return NewContentService(&ContentServiceOpts{
		Identity:  dir,
		Records:   records,
		Lexicons:  lexicon.MustRegistry(),
		URLs:      blob.NewSynthesizer("https://cdn.test"),
		Telemetry: tel,
		PublicURL: "https://atmo.pics",
		Logger:    logger.Discard(),
	}), recorder
}

func newService(dir *fakeDirectory, records *fakeRecords) *ContentService {
	return NewContentService(&ContentServiceOpts{
		Identity:  dir,
		Records:   records,
		Lexicons:  lexicon.MustRegistry(),
		URLs:      blob.NewSynthesizer("https://cdn.test"),
		PublicURL: "https://atmo.pics",
		Logger:    logger.Discard(),
	})
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := map[attribute.Key]string{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestResolveContent_DIDSkipsHandleResolution(t *testing.T) {
	dir := &fakeDirectory{}
	svc := newService(dir, &fakeRecords{value: `{"content":"x"}`})

	r, err := svc.ResolveContent(context.Background(), "did:plc:alice", lexicon.CollectionCode, "abc")
	require.NoError(t, err)
	assert.Zero(t, dir.resolveCalls)
	assert.Equal(t, "at://did:plc:alice/pics.atmo.code/abc", r.Address.URI())
	assert.IsType(t, &lexicon.CodeRecord{}, r.Content)
}

func TestResolveContent_UnrecognizedMakesNoCalls(t *testing.T) {
	dir := &fakeDirectory{}
	records := &fakeRecords{}
	svc := newService(dir, records)

	_, err := svc.ResolveContent(context.Background(), "not an id", lexicon.CollectionCode, "abc")
	assert.ErrorIs(t, err, identity.ErrUnrecognizedIdentifier)
	assert.Equal(t, StageClassify, StageOf(err))
	assert.Zero(t, dir.resolveCalls)
	assert.Zero(t, records.calls)
}

func TestResolveContent_StageOfFailure(t *testing.T) {
	timeout := fmt.Errorf("%w: %w", identity.ErrIdentityUnresolvable, context.DeadlineExceeded)

	tests := []struct {
		name      string
		dir       *fakeDirectory
		records   *fakeRecords
		wantStage Stage
		wantErr   error
	}{
		{"handle", &fakeDirectory{resolveErr: identity.ErrResolutionFailed}, &fakeRecords{}, StageResolveHandle, identity.ErrResolutionFailed},
		{"locate timeout", &fakeDirectory{locateErr: timeout}, &fakeRecords{}, StageLocate, context.DeadlineExceeded},
		{"fetch", &fakeDirectory{}, &fakeRecords{err: repo.ErrHostUnreachable}, StageFetchRecord, repo.ErrHostUnreachable},
		{"decode", &fakeDirectory{}, &fakeRecords{value: `{"content":1}`}, StageDecode, repo.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(tt.dir, tt.records)

			_, err := svc.ResolveContent(context.Background(), "alice.test", lexicon.CollectionCode, "abc")
			require.Error(t, err)
			assert.Equal(t, tt.wantStage, StageOf(err))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestImageView_BlobFailures(t *testing.T) {
	svc := newService(&fakeDirectory{}, &fakeRecords{value: `{"image":null}`})
	_, err := svc.ImageView(context.Background(), "did:plc:alice", "abc")
	assert.ErrorIs(t, err, blob.ErrBlobAbsent)
	assert.Equal(t, StageExtractBlob, StageOf(err))

	svc = newService(&fakeDirectory{}, &fakeRecords{value: `{"image":"bafy"}`})
	_, err = svc.ImageView(context.Background(), "did:plc:alice", "abc")
	assert.ErrorIs(t, err, blob.ErrBlobMalformed)
}

func TestCodeView_EmptyContent(t *testing.T) {
	svc := newService(&fakeDirectory{}, &fakeRecords{value: `{"title":"t"}`})

	_, err := svc.CodeView(context.Background(), "did:plc:alice", "abc")
	assert.True(t, errors.Is(err, ErrContentEmpty))
}

func TestPreview_MarkdownDefaults(t *testing.T) {
	raster := &fakeRasterizer{}
	svc := newService(&fakeDirectory{}, &fakeRecords{value: `{"content":"hello & goodbye"}`})
	previews := NewPreviewService(svc, raster, logger.Discard())

	img, err := previews.Preview(context.Background(), lexicon.KindMarkdown, "did:plc:alice", "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img)
	assert.Contains(t, raster.html, "Markdown post")
	assert.Contains(t, raster.html, "hello &amp; goodbye")
}

func TestPreview_ImageWithoutAspectRatioIsContained(t *testing.T) {
	raster := &fakeRasterizer{}
	c, err := cid.Prefix{Version: 1, Codec: cid.Raw, MhType: 0x12, MhLength: -1}.Sum([]byte("image"))
	require.NoError(t, err)
	link := c.String()
	svc := newService(&fakeDirectory{}, &fakeRecords{value: `{"image":{"$type":"blob","ref":{"$link":"` + link + `"}}}`})
	previews := NewPreviewService(svc, raster, logger.Discard())

	_, err = previews.Preview(context.Background(), lexicon.KindImage, "did:plc:alice", "abc")
	require.NoError(t, err)
	assert.Contains(t, raster.html, "object-fit:contain")
}

func TestPreview_UnknownKind(t *testing.T) {
	previews := NewPreviewService(newService(&fakeDirectory{}, &fakeRecords{}), &fakeRasterizer{}, logger.Discard())

	_, err := previews.Preview(context.Background(), lexicon.Kind("audio"), "did:plc:alice", "abc")
	assert.ErrorIs(t, err, errUnknownKind)
}

func TestResolveContent_StageSpansCarryAddress(t *testing.T) {
	svc, recorder := newTracedService(t, &fakeDirectory{}, &fakeRecords{value: `{"content":"x"}`})

	_, err := svc.ResolveContent(context.Background(), "alice.test", lexicon.CollectionCode, "abc")
	require.NoError(t, err)

	spans := recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"classify", "resolve_handle", "locate", "fetch_record", "decode"}, names)

	classify := spanAttrs(spans[0])
	assert.Equal(t, lexicon.CollectionCode, classify[telemetry.AttrCollection])
	assert.Equal(t, "abc", classify[telemetry.AttrRKey])
	assert.NotContains(t, classify, telemetry.AttrDID, "the DID is not known before resolution")

	for _, s := range spans[2:] {
		attrs := spanAttrs(s)
		assert.Equal(t, "did:plc:alice", attrs[telemetry.AttrDID], s.Name())
		assert.Equal(t, lexicon.CollectionCode, attrs[telemetry.AttrCollection], s.Name())
		assert.Equal(t, "abc", attrs[telemetry.AttrRKey], s.Name())
		assert.Equal(t, s.Name(), attrs[telemetry.AttrStage])
	}
}

func TestResolveContent_FailedStageSpanIsError(t *testing.T) {
	svc, recorder := newTracedService(t, &fakeDirectory{}, &fakeRecords{err: repo.ErrRecordNotFound})

	_, err := svc.ResolveContent(context.Background(), "did:plc:alice", lexicon.CollectionImage, "abc")
	require.ErrorIs(t, err, repo.ErrRecordNotFound)

	spans := recorder.Ended()
	last := spans[len(spans)-1]
	assert.Equal(t, "fetch_record", last.Name())
	assert.Equal(t, codes.Error, last.Status().Code)
}

func TestResolveContent_UnreachableHostDropsCachedLocation(t *testing.T) {
	dir := &fakeDirectory{}
	svc := newService(dir, &fakeRecords{err: repo.ErrHostUnreachable})

	_, err := svc.ResolveContent(context.Background(), "did:plc:alice", lexicon.CollectionCode, "abc")
	require.ErrorIs(t, err, repo.ErrHostUnreachable)
	assert.Equal(t, []string{"did:plc:alice"}, dir.purged)

	dir = &fakeDirectory{}
	svc = newService(dir, &fakeRecords{err: repo.ErrRecordNotFound})
	_, err = svc.ResolveContent(context.Background(), "did:plc:alice", lexicon.CollectionCode, "abc")
	require.ErrorIs(t, err, repo.ErrRecordNotFound)
	assert.Empty(t, dir.purged, "a missing record says nothing about the host")
}
