package httputil

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGet(t *testing.T, c HTTPClient, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp
}

func TestMockClientServesQueuedResponses(t *testing.T) {
	m := NewMockClient().
		AddResponse("http://example.test/a", 500, []byte("boom")).
		AddResponse("http://example.test/a", 200, []byte("ok"))

	resp := mustGet(t, m, "http://example.test/a")
	assert.Equal(t, 500, resp.StatusCode)
	resp.Body.Close()

	resp = mustGet(t, m, "http://example.test/a")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	// Last response repeats.
	resp = mustGet(t, m, "http://example.test/a")
	assert.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 3, m.RequestCount())
}

func TestMockClientUnknownURL404s(t *testing.T) {
	m := NewMockClient()
	resp := mustGet(t, m, "http://example.test/missing")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMockClientTransportError(t *testing.T) {
	wantErr := errors.New("connection reset")
	m := NewMockClient().AddError("http://example.test/a", wantErr)

	req, err := http.NewRequest(http.MethodGet, "http://example.test/a", nil)
	require.NoError(t, err)
	_, err = m.Do(req)
	assert.ErrorIs(t, err, wantErr)
}

func TestNewStandardClientDefaults(t *testing.T) {
	c := NewStandardClient(nil)
	assert.Same(t, http.DefaultClient, c.Client)
}
