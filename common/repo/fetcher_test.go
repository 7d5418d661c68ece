package repo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atmopics/share/common/clients"
	"github.com/atmopics/share/common/identity"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPDS(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/xrpc/com.atproto.repo.getRecord", r.URL.Path)
		assert.Equal(t, "did:plc:alice", r.URL.Query().Get("repo"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fetch(t *testing.T, srv *httptest.Server) (*Record, error) {
	t.Helper()
	f := NewFetcher(clients.NewHTTPClient(srv.Client(), logger.Discard(), "share-test"))
	loc := &identity.Location{DID: "did:plc:alice", PDS: srv.URL}
	return f.GetRecord(context.Background(), loc, Address{DID: "did:plc:alice", Collection: "pics.atmo.image", RKey: "3kabc"})
}

func TestGetRecord_OK(t *testing.T) {
	srv, calls := newPDS(t, http.StatusOK, `{"uri":"at://did:plc:alice/pics.atmo.image/3kabc","cid":"bafyreib","value":{"$type":"pics.atmo.image","title":"hi"}}`)

	rec, err := fetch(t, srv)
	require.NoError(t, err)
	assert.Equal(t, "bafyreib", rec.CID)
	assert.Equal(t, "at://did:plc:alice/pics.atmo.image/3kabc", rec.URI)
	assert.Equal(t, int32(1), calls.Load())

	fields, err := rec.Fields()
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(fields["title"]))
}

func TestGetRecord_404IsNotFoundNotUnreachable(t *testing.T) {
	srv, calls := newPDS(t, http.StatusNotFound, `{"error":"RecordNotFound"}`)

	_, err := fetch(t, srv)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NotErrorIs(t, err, ErrHostUnreachable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRecord_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"xrpc record not found", http.StatusBadRequest, `{"error":"RecordNotFound","message":"Could not locate record"}`, ErrRecordNotFound},
		{"repo not found", http.StatusBadRequest, `{"error":"RepoNotFound"}`, ErrRecordNotFound},
		{"other 400", http.StatusBadRequest, `{"error":"InvalidRequest"}`, ErrInvalidResponse},
		{"server error", http.StatusBadGateway, `upstream down`, ErrHostUnreachable},
		{"redirect-ish status", http.StatusNoContent, ``, ErrInvalidResponse},
		{"html body", http.StatusOK, `<html>maintenance</html>`, ErrInvalidResponse},
		{"missing value", http.StatusOK, `{"uri":"at://x/y/z"}`, ErrInvalidResponse},
		{"null value", http.StatusOK, `{"uri":"at://x/y/z","value":null}`, ErrInvalidResponse},
		{"oversized", http.StatusOK, `{"value":"` + strings.Repeat("a", maxRecordBody) + `"}`, ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newPDS(t, tt.status, tt.body)
			_, err := fetch(t, srv)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetRecord_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewFetcher(clients.NewHTTPClient(http.DefaultClient, logger.Discard(), ""))
	_, err := f.GetRecord(context.Background(), &identity.Location{PDS: url}, Address{DID: "did:plc:alice", Collection: "pics.atmo.video", RKey: "x"})
	assert.ErrorIs(t, err, ErrHostUnreachable)
}

func TestGetRecord_InvalidAddressSkipsNetwork(t *testing.T) {
	srv, calls := newPDS(t, http.StatusOK, `{}`)
	f := NewFetcher(clients.NewHTTPClient(srv.Client(), logger.Discard(), ""))
	loc := &identity.Location{PDS: srv.URL}

	_, err := f.GetRecord(context.Background(), loc, Address{DID: "did:plc:alice", Collection: "pics.atmo.image", RKey: "../etc"})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = f.GetRecord(context.Background(), loc, Address{DID: "did:plc:alice", Collection: "not-an-nsid", RKey: "abc"})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, int32(0), calls.Load())
}

func TestParseURI(t *testing.T) {
	addr, err := ParseURI("at://did:plc:alice/pics.atmo.video/3kxyz")
	require.NoError(t, err)
	assert.Equal(t, Address{DID: "did:plc:alice", Collection: "pics.atmo.video", RKey: "3kxyz"}, addr)
	assert.Equal(t, "at://did:plc:alice/pics.atmo.video/3kxyz", addr.URI())

	for _, bad := range []string{"https://x/y/z", "at://did:plc:alice", "at://did:plc:alice/pics.atmo.video", "at:///a/b"} {
		_, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetRecord_RedirectToInternalHostRefused(t *testing.T) {
	var internalHits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits.Add(1)
		_, _ = w.Write([]byte(`{"uri":"at://x","value":{"secret":"metadata"}}`))
	}))
	defer internal.Close()

	pds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/latest/meta-data", http.StatusFound)
	}))
	defer pds.Close()

	// the PDS itself is reachable; only the redirect hop is validated
	client := security.NewEndpointValidator(false).HTTPClient(time.Second, pds.Client().Transport)
	f := NewFetcher(clients.NewHTTPClient(client, logger.Discard(), "share-test"))
	loc := &identity.Location{DID: "did:plc:alice", PDS: pds.URL}

	rec, err := f.GetRecord(context.Background(), loc, Address{DID: "did:plc:alice", Collection: "pics.atmo.image", RKey: "3kabc"})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrHostUnreachable)
	assert.Contains(t, err.Error(), "redirect")
	assert.Equal(t, int32(0), internalHits.Load())
}
