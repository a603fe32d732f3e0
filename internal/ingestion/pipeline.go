// Package ingestion loads documents from files, glob patterns, and HTTP(S)
// URLs and feeds them through the retrieval engine. One unreadable source
// must not abort a directory-wide run: failures are logged and counted, the
// remaining sources continue.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/time/rate"

	"github.com/54b3r/recall-go/internal/chunker"
	"github.com/54b3r/recall-go/internal/engine"
)

const (
	// defaultFetchTimeout bounds each URL fetch.
	defaultFetchTimeout = 30 * time.Second
	// defaultFetchRPS paces URL fetches so a large source list does not
	// hammer a docs host.
	defaultFetchRPS = 2
	// maxFetchBytes caps a fetched body. Pages past this are truncated.
	maxFetchBytes = 10 << 20
)

// Config holds the ingestion pipeline settings.
type Config struct {
	// FetchTimeout is the per-request timeout for URL sources.
	FetchTimeout time.Duration
	// FetchRPS limits URL fetches per second. Zero uses the default.
	FetchRPS float64
	// UserAgent is sent with URL fetch requests.
	UserAgent string
}

// Report summarizes an ingestion run.
type Report struct {
	// Documents is the number of documents indexed.
	Documents int
	// Chunks is the total chunk count across indexed documents.
	Chunks int
	// Skipped is the number of sources that failed and were skipped.
	Skipped int
}

// Pipeline resolves sources into documents and indexes them.
type Pipeline struct {
	eng        *engine.Engine
	cfg        Config
	httpClient *http.Client
	fetchLimit *rate.Limiter
	log        *slog.Logger
}

// NewPipeline constructs a Pipeline around eng.
func NewPipeline(eng *engine.Engine, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if eng == nil {
		return nil, fmt.Errorf("ingestion: engine must not be nil")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.FetchRPS <= 0 {
		cfg.FetchRPS = defaultFetchRPS
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "recall-go/1.0 (document ingestion)"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		eng:        eng,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		fetchLimit: rate.NewLimiter(rate.Limit(cfg.FetchRPS), 1),
		log:        log,
	}, nil
}

// Ingest resolves each source (file path, glob pattern, or URL), loads the
// documents, and indexes them. Sources are processed sequentially. Progress
// is reported through the optional callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []string, progress func(msg string)) (*Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	report := &Report{}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		paths, isFetch, err := p.resolve(src)
		if err != nil {
			p.log.Warn("ingestion: skipping source",
				slog.String("source", src),
				slog.String("error", err.Error()),
			)
			report.Skipped++
			continue
		}

		if isFetch {
			p.ingestOne(ctx, src, report, progress, func() (chunker.Document, error) {
				return p.fetchURL(ctx, src)
			})
			continue
		}
		for _, path := range paths {
			path := path
			p.ingestOne(ctx, path, report, progress, func() (chunker.Document, error) {
				return loadFile(path)
			})
		}
	}
	return report, nil
}

// ingestOne loads and indexes a single document with skip-on-failure
// semantics.
func (p *Pipeline) ingestOne(ctx context.Context, name string, report *Report, progress func(string), load func() (chunker.Document, error)) {
	doc, err := load()
	if err != nil {
		p.log.Warn("ingestion: skipping document",
			slog.String("source", name),
			slog.String("error", err.Error()),
		)
		report.Skipped++
		return
	}

	n, err := p.eng.IndexDocument(ctx, doc)
	if err != nil {
		p.log.Warn("ingestion: indexing failed",
			slog.String("source", name),
			slog.String("error", err.Error()),
		)
		report.Skipped++
		return
	}
	report.Documents++
	report.Chunks += n
	progress(fmt.Sprintf("indexed %s (%d chunks)", name, n))
}

// resolve classifies src. URLs pass through; glob patterns expand to the
// matching regular files; a plain path must exist.
func (p *Pipeline) resolve(src string) (paths []string, isFetch bool, err error) {
	if IsURL(src) {
		return nil, true, nil
	}
	if strings.ContainsAny(src, "*?[{") {
		matches, err := doublestar.FilepathGlob(src)
		if err != nil {
			return nil, false, fmt.Errorf("bad glob pattern: %w", err)
		}
		if len(matches) == 0 {
			return nil, false, fmt.Errorf("glob matched no files")
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			paths = append(paths, m)
		}
		return paths, false, nil
	}
	if _, err := os.Stat(src); err != nil {
		return nil, false, err
	}
	return []string{src}, false, nil
}

// loadFile reads a document from disk.
func loadFile(path string) (chunker.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chunker.Document{}, err
	}
	content := string(data)
	return chunker.Document{
		ID:      docID(path),
		Title:   ExtractTitle(content, path),
		Content: content,
		Source:  path,
	}, nil
}

// fetchURL retrieves a document over HTTP, paced by the fetch limiter.
func (p *Pipeline) fetchURL(ctx context.Context, url string) (chunker.Document, error) {
	if err := p.fetchLimit.Wait(ctx); err != nil {
		return chunker.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return chunker.Document{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return chunker.Document{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return chunker.Document{}, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return chunker.Document{}, fmt.Errorf("reading body: %w", err)
	}

	content := string(body)
	return chunker.Document{
		ID:      docID(url),
		Title:   ExtractTitle(content, url),
		Content: content,
		Source:  url,
	}, nil
}

// docID derives a deterministic document ID from the source location so
// re-ingesting the same file or URL produces the same ID.
func docID(source string) string {
	h := sha256.Sum256([]byte(source))
	return fmt.Sprintf("%x", h[:16])
}
