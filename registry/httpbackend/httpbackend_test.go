package httpbackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-trackback-agent/did"
	"github.com/pilacorp/go-trackback-agent/registry"
	"github.com/pilacorp/go-trackback-agent/registry/memory"
)

const testDID = "did:trackback:0xb64b2b1168047d1745492c7025c5edba69e4f4f0"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewHandler(memory.New()))
	t.Cleanup(server.Close)
	return server
}

func newClient(url string, opts ...ClientOpt) *Client {
	return NewClient(url, append([]ClientOpt{WithRetryInterval(time.Millisecond)}, opts...)...)
}

func TestRoundTripThroughRegistry(t *testing.T) {
	server := newServer(t)
	reg := registry.New(newClient(server.URL))
	ctx := context.Background()

	doc := did.GenerateDIDDocument(testDID, "0x02", did.Service{ID: testDID + "#agent", Type: "TrackBackAgent", ServiceEndpoint: "https://agent.example"})
	docMeta := map[string]interface{}{"created": "2010-01-01T19:23:24Z", "deactivated": false}
	resMeta := map[string]interface{}{"contentType": "application/did+ld+json"}

	saved, err := reg.Save(ctx, "0xowner", doc, docMeta, resMeta)
	require.NoError(t, err)
	assert.Equal(t, doc, saved)

	rec, err := reg.Resolve(ctx, testDID)
	require.NoError(t, err)
	assert.Equal(t, doc, rec.DIDDocument)
	assert.Equal(t, docMeta, rec.DIDDocumentMetadata)
	assert.Equal(t, resMeta, rec.DIDResolutionMetadata)
}

func TestClientErrorMapping(t *testing.T) {
	server := newServer(t)
	client := newClient(server.URL)
	ctx := context.Background()

	_, err := client.Get(ctx, "did:trackback:0xnever")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	rec := &registry.ResolutionRecord{DIDDocument: did.GenerateDIDDocument(testDID, "0x02")}
	require.NoError(t, client.Put(ctx, "0xowner", rec))

	err = client.Put(ctx, "0xintruder", rec)
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	err = client.Put(ctx, "", rec)
	assert.ErrorIs(t, err, registry.ErrUnauthorized)
}

func TestServerRejectsMismatchedRecord(t *testing.T) {
	server := newServer(t)

	body := `{"owner":"0xowner","record":{"did_document":{"id":"did:trackback:0x01"}}}`
	req, err := http.NewRequest(http.MethodPut, server.URL+"/dids/did:trackback:0x02", strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(server.URL+"/dids/"+testDID, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	upstream := NewHandler(memory.New())
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		upstream.ServeHTTP(w, r)
	}))
	defer server.Close()

	client := newClient(server.URL, WithMaxRetries(2))
	rec := &registry.ResolutionRecord{DIDDocument: did.GenerateDIDDocument(testDID, "0x02")}

	require.NoError(t, client.Put(context.Background(), "0xowner", rec))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClient(server.URL, WithMaxRetries(1)).Get(context.Background(), testDID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(server.URL, WithMaxRetries(3)).Get(context.Background(), testDID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
