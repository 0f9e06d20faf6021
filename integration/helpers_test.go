//go:build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/rangecache"
	"github.com/meigma/rangecache/internal/testutil"
)

// payload is the ground truth served by the container at /data.bin.
const (
	payloadPath = "/data.bin"
	payloadSize = 1 << 20
)

var payload = testutil.Pattern(payloadSize)

// --- Server Container Setup ---

var (
	nginxOnce sync.Once
	nginxURL  string
	nginxErr  error
)

// getServer returns the base URL of the shared nginx container, starting it
// if needed. The container is shared across all tests for performance.
func getServer(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	nginxOnce.Do(func() {
		nginxURL, nginxErr = startNginxContainer(context.Background())
	})

	if nginxErr != nil {
		tb.Fatalf("start nginx container: %v", nginxErr)
	}

	return nginxURL
}

// startNginxContainer starts nginx serving the payload and returns its base
// URL. nginx answers range requests out of the box, which is the behavior
// under test.
func startNginxContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "nginx:alpine",
		ExposedPorts: []string{"80/tcp"},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            bytes.NewReader(payload),
				ContainerFilePath: "/usr/share/nginx/html" + payloadPath,
				FileMode:          0o644,
			},
		},
		WaitingFor: wait.ForHTTP(payloadPath).
			WithPort("80/tcp").
			WithMethod(http.MethodHead).
			WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start nginx container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve nginx host: %w", err)
	}

	port, err := container.MappedPort(ctx, "80/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve nginx port: %w", err)
	}

	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Range Fetching ---

// fetchHTTPRange reads [start, end) of url with a Range request. Ranges
// past EOF return the available bytes, like a local file read would.
func fetchHTTPRange(client *http.Client, url string, start, end int64) ([]byte, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, nil
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	case http.StatusOK:
		// Server ignored the range header; slice the full body.
		all, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if start >= int64(len(all)) {
			return nil, nil
		}
		if end > int64(len(all)) {
			end = int64(len(all))
		}
		return all[start:end], nil
	default:
		return nil, fmt.Errorf("range request %s [%d, %d): %s", url, start, end, resp.Status)
	}
}

// newCountingHTTPFetcher returns a fetcher over url plus a counter of how
// many requests actually went out.
func newCountingHTTPFetcher(client *http.Client, url string) (rangecache.Fetcher, *atomic.Int64) {
	var calls atomic.Int64
	fetch := func(start, end int64) ([]byte, error) {
		calls.Add(1)
		return fetchHTTPRange(client, url, start, end)
	}
	return fetch, &calls
}

// --- HTTP Backend ---

// httpBackend adapts the test server to the Backend contract for read-mode
// files. Uploads are rejected; nginx has nowhere to put them.
type httpBackend struct {
	base    string
	client  *http.Client
	fetches atomic.Int64
}

func newHTTPBackend(base string) *httpBackend {
	return &httpBackend{base: base, client: http.DefaultClient}
}

func (b *httpBackend) Info(path string) (rangecache.Info, error) {
	resp, err := b.client.Head(b.base + path)
	if err != nil {
		return rangecache.Info{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rangecache.Info{}, fmt.Errorf("head %s: %s", path, resp.Status)
	}
	info := rangecache.Info{
		Name: path,
		Size: resp.ContentLength,
		ETag: resp.Header.Get("ETag"),
	}
	if t, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.ModTime = t
	}
	return info, nil
}

func (b *httpBackend) FetchRange(path string, start, end int64) ([]byte, error) {
	b.fetches.Add(1)
	return fetchHTTPRange(b.client, b.base+path, start, end)
}

func (b *httpBackend) StartUpload(string, bool) (rangecache.Upload, error) {
	return nil, errors.New("http backend is read-only")
}

func (b *httpBackend) InvalidateCache(string) {}
