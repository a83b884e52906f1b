package egress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSourcesMissingFile(t *testing.T) {
	sources, err := LoadSources(filepath.Join(t.TempDir(), "sources.yaml"))
	require.NoError(t, err)
	assert.Nil(t, sources)
}

func TestLoadSourcesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `- url: https://proxies.example.com/list.txt
- url: https://api.example.com/proxies
  kind: json
- url: https://other.example.com/raw
  pattern: '(\d+\.\d+\.\d+\.\d+)\s+(\d+)'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sources, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, "https://proxies.example.com/list.txt", sources[0].URL)
	assert.Equal(t, "json", sources[1].Kind)
	assert.Equal(t, `(\d+\.\d+\.\d+\.\d+)\s+(\d+)`, sources[2].Pattern)
}

func TestLoadSourcesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: {{"), 0o644))

	_, err := LoadSources(path)
	require.Error(t, err)
}

func TestExtractTextAddrsDefaultPattern(t *testing.T) {
	body := []byte("10.0.0.1:8080\nsome noise\n10.0.0.2:3128\n")

	addrs, err := extractTextAddrs(body, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:8080", "10.0.0.2:3128"}, addrs)
}

func TestExtractTextAddrsCustomPattern(t *testing.T) {
	body := []byte("10.0.0.1 8080\n10.0.0.2 3128\n")

	addrs, err := extractTextAddrs(body, `(\d+\.\d+\.\d+\.\d+)\s+(\d+)`)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:8080", "10.0.0.2:3128"}, addrs)
}

func TestExtractTextAddrsBadPattern(t *testing.T) {
	_, err := extractTextAddrs([]byte("x"), "(unclosed")
	require.Error(t, err)
}

func TestExtractJSONAddrs(t *testing.T) {
	// Ports arrive both as numbers and strings in the wild.
	body := []byte(`{"data": [
		{"ip": "10.0.0.1", "port": 8080},
		{"ip": "10.0.0.2", "port": "3128"},
		{"ip": "10.0.0.3", "port": "not-a-port"},
		{"ip": "", "port": 80}
	]}`)

	addrs, err := extractJSONAddrs(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:8080", "10.0.0.2:3128"}, addrs)
}

func TestFetchSourceText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("10.0.0.1:8080\n"))
	}))
	t.Cleanup(srv.Close)

	addrs, err := fetchSource(context.Background(), srv.Client(), Source{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:8080"}, addrs)
}

func TestFetchSourceJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"ip": "10.0.0.1", "port": 8080}]}`))
	}))
	t.Cleanup(srv.Close)

	addrs, err := fetchSource(context.Background(), srv.Client(), Source{URL: srv.URL, Kind: "json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:8080"}, addrs)
}

func TestFetchSourceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := fetchSource(context.Background(), srv.Client(), Source{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestHarvestDeduplicates(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("10.0.0.1:8080\n10.0.0.2:3128\n"))
	}))
	t.Cleanup(first.Close)

	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("10.0.0.2:3128\n10.0.0.3:1080\n"))
	}))
	t.Cleanup(second.Close)

	addrs := harvest(context.Background(), http.DefaultClient, []Source{
		{URL: first.URL},
		{URL: second.URL},
	})

	assert.Len(t, addrs, 3)
	assert.ElementsMatch(t, []string{"10.0.0.1:8080", "10.0.0.2:3128", "10.0.0.3:1080"}, addrs)
}

func TestHarvestSkipsFailingSource(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("10.0.0.1:8080\n"))
	}))
	t.Cleanup(good.Close)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(bad.Close)

	addrs := harvest(context.Background(), http.DefaultClient, []Source{
		{URL: bad.URL},
		{URL: good.URL},
	})

	assert.Equal(t, []string{"10.0.0.1:8080"}, addrs)
}
