package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atmopics/share/common/clients"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(srv *httptest.Server) *clients.HTTPClient {
	return clients.NewHTTPClient(srv.Client(), logger.Discard(), "share-test")
}

func TestHandleResolver_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/com.atproto.identity.resolveHandle", r.URL.Path)
		switch r.URL.Query().Get("handle") {
		case "alice.test":
			_ = json.NewEncoder(w).Encode(map[string]string{"did": "did:plc:alice"})
		case "garbage.test":
			_ = json.NewEncoder(w).Encode(map[string]string{"did": "not a did"})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"InvalidRequest","message":"Unable to resolve handle"}`))
		}
	}))
	defer srv.Close()

	r := NewHandleResolver(testClient(srv), srv.URL)

	did, err := r.Resolve(context.Background(), "alice.test")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)

	_, err = r.Resolve(context.Background(), "nobody.test")
	assert.ErrorIs(t, err, ErrResolutionFailed)

	_, err = r.Resolve(context.Background(), "garbage.test")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestHandleResolver_UnreachableKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	r := NewHandleResolver(testClient(srv), srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "alice.test")
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func plcServer(t *testing.T, docs map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := docs[r.URL.Path[1:]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func TestLocator_SelectsTaggedService(t *testing.T) {
	srv := plcServer(t, map[string]any{
		"did:plc:alice": map[string]any{
			"id":          "did:plc:alice",
			"alsoKnownAs": []string{"at://Alice.Test"},
			"service": []map[string]any{
				{"id": "#bsky_fg", "type": "BskyFeedGenerator", "serviceEndpoint": "https://feed.example.com"},
				{"id": "#atproto_labeler", "type": "AtprotoPersonalDataServer", "serviceEndpoint": "https://wrong.example.com"},
				{"id": "did:plc:alice#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": "https://pds.example.com/"},
			},
		},
	})
	defer srv.Close()

	l := NewLocator(testClient(srv), srv.URL, security.NewEndpointValidator(true))

	loc, err := l.Locate(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.com", loc.PDS)
	assert.Equal(t, "alice.test", loc.Handle)
	assert.Equal(t, "did:plc:alice", loc.DID)
}

func TestLocator_Failures(t *testing.T) {
	srv := plcServer(t, map[string]any{
		"did:plc:nopds": map[string]any{
			"id":      "did:plc:nopds",
			"service": []map[string]any{{"id": "#bsky_fg", "type": "BskyFeedGenerator", "serviceEndpoint": "https://feed.example.com"}},
		},
		"did:plc:mismatch": map[string]any{"id": "did:plc:someoneelse"},
		"did:plc:objectendpoint": map[string]any{
			"id":      "did:plc:objectendpoint",
			"service": []map[string]any{{"id": "#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": map[string]string{"uri": "https://x"}}},
		},
		"did:plc:internal": map[string]any{
			"id":      "did:plc:internal",
			"service": []map[string]any{{"id": "#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": "http://169.254.169.254"}},
		},
	})
	defer srv.Close()

	l := NewLocator(testClient(srv), srv.URL, security.NewEndpointValidator(false))

	for _, did := range []string{"did:plc:missing", "did:plc:nopds", "did:plc:mismatch", "did:plc:objectendpoint", "did:plc:internal", "did:key:z6Mk", "did:web:example.com:user:alice"} {
		t.Run(did, func(t *testing.T) {
			_, err := l.Locate(context.Background(), did)
			assert.ErrorIs(t, err, ErrIdentityUnresolvable)
		})
	}
}

type countingHandles struct {
	calls atomic.Int32
	did   string
	err   error
}

func (c *countingHandles) Resolve(ctx context.Context, handle string) (string, error) {
	c.calls.Add(1)
	return c.did, c.err
}

type countingLocator struct {
	calls atomic.Int32
	err   error
}

func (c *countingLocator) Locate(ctx context.Context, did string) (*Location, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &Location{DID: did, PDS: "https://pds.example.com"}, nil
}

func TestDirectory_DIDNeverHitsHandleResolver(t *testing.T) {
	handles := &countingHandles{did: "did:plc:other"}
	d := NewDirectory(handles, &countingLocator{}, nil, time.Minute, logger.Discard())

	did, err := d.ResolveDID(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)
	assert.Equal(t, int32(0), handles.calls.Load())
}

func TestDirectory_UnrecognizedMakesNoCalls(t *testing.T) {
	handles := &countingHandles{did: "did:plc:other"}
	d := NewDirectory(handles, &countingLocator{}, nil, time.Minute, logger.Discard())

	_, err := d.ResolveDID(context.Background(), "not an identifier")
	assert.ErrorIs(t, err, ErrUnrecognizedIdentifier)
	assert.Equal(t, int32(0), handles.calls.Load())
}

type mapCache struct {
	data map[string][]byte
}

func (m *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mapCache) Close() error { return nil }

func TestDirectory_CachesSuccesses(t *testing.T) {
	handles := &countingHandles{did: "did:plc:alice"}
	locator := &countingLocator{}
	c := &mapCache{data: map[string][]byte{}}
	d := NewDirectory(handles, locator, c, time.Minute, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		did, err := d.ResolveDID(ctx, "Alice.Test")
		require.NoError(t, err)
		loc, err := d.Locate(ctx, did)
		require.NoError(t, err)
		assert.Equal(t, "https://pds.example.com", loc.PDS)
	}

	assert.Equal(t, int32(1), handles.calls.Load())
	assert.Equal(t, int32(1), locator.calls.Load())
	assert.Contains(t, c.data, "handle:alice.test")

	require.NoError(t, d.Purge(ctx, "did:plc:alice"))
	_, err := d.Locate(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, int32(2), locator.calls.Load())
}

func TestDirectory_DoesNotCacheFailures(t *testing.T) {
	handles := &countingHandles{err: ErrResolutionFailed}
	c := &mapCache{data: map[string][]byte{}}
	d := NewDirectory(handles, &countingLocator{}, c, time.Minute, logger.Discard())

	for i := 0; i < 2; i++ {
		_, err := d.ResolveDID(context.Background(), "gone.test")
		assert.True(t, errors.Is(err, ErrResolutionFailed))
	}
	assert.Equal(t, int32(2), handles.calls.Load())
	assert.Empty(t, c.data)
}

func TestDirectory_IgnoresCorruptEntries(t *testing.T) {
	locator := &countingLocator{}
	c := &mapCache{data: map[string][]byte{"pds:did:plc:alice": []byte("{not json")}}
	d := NewDirectory(&countingHandles{}, locator, c, time.Minute, logger.Discard())

	loc, err := d.Locate(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.com", loc.PDS)
	assert.Equal(t, int32(1), locator.calls.Load())
}

type gatedLocator struct {
	started chan struct{}
	release chan struct{}
	sawErr  error
}

func (g *gatedLocator) Locate(ctx context.Context, did string) (*Location, error) {
	close(g.started)
	<-g.release
	g.sawErr = ctx.Err()
	if g.sawErr != nil {
		return nil, g.sawErr
	}
	return &Location{DID: did, PDS: "https://pds.example.com"}, nil
}

func TestDirectory_SharedLookupOutlivesCaller(t *testing.T) {
	locator := &gatedLocator{started: make(chan struct{}), release: make(chan struct{})}
	c := &mapCache{data: map[string][]byte{}}
	d := NewDirectory(&countingHandles{}, locator, c, time.Minute, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Locate(ctx, "did:plc:alice")
		done <- err
	}()

	<-locator.started
	cancel()
	close(locator.release)

	require.NoError(t, <-done)
	assert.NoError(t, locator.sawErr, "the shared lookup is not bound to the first caller")
	assert.Contains(t, c.data, "pds:did:plc:alice", "the result is still cached for waiting peers")
}
