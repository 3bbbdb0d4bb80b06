package search

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
	"github.com/poiesic/filesense/lexical"
	"github.com/poiesic/filesense/storage"
	"golang.org/x/sync/errgroup"
)

// snippetMaxChars bounds the snippet length in result hydration.
const snippetMaxChars = 160

const (
	// DefaultK is the default number of results returned.
	DefaultK = 10
	// DefaultAlpha is the default lexical weight in score fusion.
	DefaultAlpha = 0.5
)

// Options control one search call.
type Options struct {
	// K is the number of results to return. Defaults to 10 when zero.
	K int
	// Alpha weights the lexical score in reranking; 1-Alpha weights dense.
	// Clamped to [0,1].
	Alpha float64
	// Deduplicate collapses a chunk found by both retrievers into a single
	// result carrying both scores.
	Deduplicate bool
	// Rerank orders by the weighted score combination instead of
	// round-robin interleaving.
	Rerank bool
}

// DefaultOptions returns the standard search parameters.
func DefaultOptions() Options {
	return Options{K: DefaultK, Alpha: DefaultAlpha, Deduplicate: true, Rerank: false}
}

// Result is one hydrated search hit. BM25Score and DenseScore are the
// normalized per-retriever scores; a zero means that retriever did not
// return the chunk. CombinedScore is set only when reranking.
type Result struct {
	ChunkId       core.ID
	DocumentId    core.ID
	Path          string
	Snippet       string
	BM25Score     float64
	DenseScore    float64
	CombinedScore float64
}

// Response is the outcome of one search call. The availability flags
// report one-sided degradation: a search never fails outright because a
// single retriever is empty or erroring.
type Response struct {
	Results          []*Result
	Count            int
	DenseAvailable   bool
	LexicalAvailable bool
}

// Searcher runs hybrid queries over the lexical and dense retrievers and
// hydrates the fused ranking from the metadata store.
type Searcher struct {
	chunks    storage.ChunkRepository
	documents storage.DocumentRepository
	embedder  ai.Embedder
	lexical   *lexical.Index
	vectors   *dense.Index
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher over the given stores and retrievers.
func NewSearcher(
	chunks storage.ChunkRepository,
	documents storage.DocumentRepository,
	embedder ai.Embedder,
	lexicalIndex *lexical.Index,
	vectorIndex *dense.Index,
	opts ...Option,
) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if lexicalIndex == nil || vectorIndex == nil {
		return nil, ErrRetrieverRequired
	}

	s := &Searcher{
		chunks:    chunks,
		documents: documents,
		embedder:  embedder,
		lexical:   lexicalIndex,
		vectors:   vectorIndex,
		logger:    slog.Default().With("component", "search"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search runs a hybrid query and returns up to opts.K hydrated results.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	return s.SearchWithMonitor(ctx, query, opts, nil)
}

// SearchWithMonitor runs a hybrid query with monitoring callbacks at each
// stage of the fusion process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, opts Options, monitor SearchMonitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if opts.K <= 0 {
		opts.K = DefaultOptions().K
	}
	if opts.Alpha < 0 {
		opts.Alpha = 0
	}
	if opts.Alpha > 1 {
		opts.Alpha = 1
	}

	monitor.Start(query)

	// Over-fetch so post-fusion truncation still fills k
	kPrime := max(opts.K, opts.K*3/2)

	var lexHits []core.ScoredChunk
	var denseHits []dense.Hit
	var denseFailed bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits = s.lexical.Search(query, kPrime)
		return nil
	})
	g.Go(func() error {
		if s.vectors.Len() == 0 {
			return nil
		}
		vec, err := s.embedder.EmbedText(gctx, query)
		if err != nil {
			// Degrade to lexical-only instead of failing the call
			s.logger.Warn("query embedding failed, dense retriever skipped", "err", err)
			denseFailed = true
			return nil
		}
		hits, err := s.vectors.Search(vec, kPrime)
		if err != nil {
			s.logger.Warn("dense search failed, retriever skipped", "err", err)
			denseFailed = true
			return nil
		}
		denseHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	monitor.AfterLexicalSearch(lexHits)
	monitor.AfterDenseSearch(denseHits)

	resp := &Response{
		LexicalAvailable: s.lexical.Len() > 0,
		DenseAvailable:   !denseFailed && s.vectors.Len() > 0,
	}

	// Map dense distances onto similarities, then normalize each list
	denseScored := make([]core.ScoredChunk, len(denseHits))
	for i, h := range denseHits {
		denseScored[i] = core.ScoredChunk{ChunkId: h.ChunkId, Score: s.vectors.Similarity(h.Distance)}
	}
	lexNorm := normalizeScores(lexHits)
	denseNorm := normalizeScores(denseScored)

	entries := fuse(lexNorm, denseNorm, opts.Alpha, opts.Deduplicate, opts.Rerank)
	if len(entries) > opts.K {
		entries = entries[:opts.K]
	}

	ids := make([]core.ID, len(entries))
	for i, e := range entries {
		ids[i] = e.ChunkId
	}
	monitor.AfterFusion(ids)

	results, err := s.hydrate(ctx, entries)
	if err != nil {
		return nil, err
	}

	resp.Results = results
	resp.Count = len(results)
	monitor.Finish(results)

	s.logger.Debug("search finished",
		"query", query,
		"results", resp.Count,
		"lexical_available", resp.LexicalAvailable,
		"dense_available", resp.DenseAvailable)
	return resp, nil
}

// hydrate fills in chunk text and document paths from the metadata store,
// preserving the fused order.
func (s *Searcher) hydrate(ctx context.Context, entries []fused) ([]*Result, error) {
	if len(entries) == 0 {
		return []*Result{}, nil
	}

	ids := make([]core.ID, len(entries))
	for i, e := range entries {
		ids[i] = e.ChunkId
	}
	chunks, err := s.chunks.GetMany(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.ID]*core.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.Id] = c
	}

	docPaths := make(map[core.ID]string)
	results := make([]*Result, 0, len(entries))
	for _, e := range entries {
		chunk, ok := byID[e.ChunkId]
		if !ok {
			// Retriever returned an id the store cannot hydrate; skip it
			s.logger.Warn("stale chunk id in retriever results", "chunkId", uint64(e.ChunkId))
			continue
		}

		path, ok := docPaths[chunk.DocumentId]
		if !ok {
			doc, err := s.documents.GetByID(ctx, chunk.DocumentId)
			if err != nil {
				return nil, err
			}
			path = doc.Path
			docPaths[chunk.DocumentId] = path
		}

		results = append(results, &Result{
			ChunkId:       e.ChunkId,
			DocumentId:    chunk.DocumentId,
			Path:          path,
			Snippet:       makeSnippet(chunk.Text),
			BM25Score:     e.BM25,
			DenseScore:    e.Dense,
			CombinedScore: e.Combined,
		})
	}
	return results, nil
}

// makeSnippet truncates chunk text at a rune boundary.
func makeSnippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetMaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetMaxChars]) + "…"
}
