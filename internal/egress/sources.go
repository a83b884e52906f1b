package egress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Source describes one upstream list of proxy addresses.
type Source struct {
	URL string `yaml:"url"`
	// Pattern is a regexp for text sources. Two capture groups are read as
	// (host, port); with fewer groups the whole match is taken as host:port.
	Pattern string `yaml:"pattern"`
	// Kind is "text" (default) or "json". JSON sources are expected to
	// respond with {"data": [{"ip": ..., "port": ...}, ...]}.
	Kind string `yaml:"kind"`
}

const (
	sourceFetchWorkers = 10
	defaultKind        = "text"
)

// LoadSources reads the YAML source list at path. A missing file is not an
// error; it just means the pool can only run from its snapshot.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source list: %w", err)
	}

	var sources []Source
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse source list: %w", err)
	}
	return sources, nil
}

type jsonSourceBody struct {
	Data []struct {
		IP   string          `json:"ip"`
		Port json.RawMessage `json:"port"`
	} `json:"data"`
}

// fetchSource downloads one source and extracts candidate addresses.
func fetchSource(ctx context.Context, client *http.Client, src Source) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build source request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read source body: %w", err)
	}

	if src.Kind == "json" {
		return extractJSONAddrs(body)
	}
	return extractTextAddrs(body, src.Pattern)
}

func extractJSONAddrs(body []byte) ([]string, error) {
	var parsed jsonSourceBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON source: %w", err)
	}

	var addrs []string
	for _, entry := range parsed.Data {
		if entry.IP == "" || len(entry.Port) == 0 {
			continue
		}
		port := strings.Trim(string(entry.Port), `"`)
		if _, err := strconv.Atoi(port); err != nil {
			continue
		}
		addrs = append(addrs, entry.IP+":"+port)
	}
	return addrs, nil
}

func extractTextAddrs(body []byte, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = `(\d{1,3}(?:\.\d{1,3}){3}):(\d{2,5})`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid source pattern: %w", err)
	}

	var addrs []string
	for _, m := range re.FindAllStringSubmatch(string(body), -1) {
		switch {
		case len(m) >= 3:
			addrs = append(addrs, m[1]+":"+m[2])
		case len(m) == 2:
			addrs = append(addrs, m[1])
		default:
			addrs = append(addrs, m[0])
		}
	}
	return addrs, nil
}

// harvest fetches every source concurrently and returns the deduplicated
// union of candidate addresses. Individual source failures are logged and
// skipped; an empty result is the caller's problem.
func harvest(ctx context.Context, client *http.Client, sources []Source) []string {
	var mu sync.Mutex
	seen := make(map[string]bool)
	var addrs []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sourceFetchWorkers)

	for _, src := range sources {
		g.Go(func() error {
			found, err := fetchSource(gctx, client, src)
			if err != nil {
				slog.Warn("Egress source failed", "url", src.URL, "error", err)
				return nil
			}
			slog.Debug("Egress source fetched", "url", src.URL, "candidates", len(found))

			mu.Lock()
			for _, addr := range found {
				if !seen[addr] {
					seen[addr] = true
					addrs = append(addrs, addr)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return addrs
}
