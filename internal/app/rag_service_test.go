package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/ai"
	"docuchat/internal/model"
	"docuchat/internal/retriever"
	"docuchat/internal/vectorindex"
	"docuchat/internal/vectorindex/memory"
)

type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*model.Document)}
}

func (f *fakeDocs) Create(doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeDocs) GetByID(id string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocs) List() ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	return out, nil
}

func (f *fakeDocs) MarkProcessed(id string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	doc.Status = model.DocumentStatusProcessed
	doc.ChunkCount = chunkCount
	doc.FailReason = ""
	return nil
}

func (f *fakeDocs) MarkFailed(id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	doc.Status = model.DocumentStatusFailed
	doc.FailReason = reason
	return nil
}

func (f *fakeDocs) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDocs) DeleteAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]*model.Document)
	return nil
}

func (f *fakeDocs) CountByStatus(status string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, doc := range f.docs {
		if doc.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeDocs) SumChunkCounts() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, doc := range f.docs {
		if doc.Status == model.DocumentStatusProcessed {
			n += int64(doc.ChunkCount)
		}
	}
	return n, nil
}

type fakeVersions struct {
	mu      sync.Mutex
	version uint64
	err     error
}

func (f *fakeVersions) Current() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, f.err
}

func (f *fakeVersions) Bump() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.version++
	return f.version, nil
}

// fakeEmbedder serves both the batch interface used at ingestion and the
// single-text interface used by the retriever. Vectors depend only on the
// input text so rankings are reproducible.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) vector(text string) []float32 {
	switch {
	case strings.Contains(text, "gopher"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "ferret"):
		return []float32{0, 1, 0}
	default:
		return []float32{0.7, 0.7, 0}
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

type fakeGenerator struct {
	mu         sync.Mutex
	answer     string
	err        error
	calls      int
	lastPrompt string
	onCall     func()
}

func (f *fakeGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastPrompt = messages[len(messages)-1].Content
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	answer, err := f.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	if err := onChunk(answer); err != nil {
		return "", err
	}
	return answer, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*model.CacheEntry
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*model.CacheEntry)}
}

func (f *fakeCache) Get(_ context.Context, key string) (*model.CacheEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	return entry, ok, nil
}

func (f *fakeCache) Put(_ context.Context, key string, entry *model.CacheEntry, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = entry
	f.puts++
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

type harness struct {
	svc       *RAGService
	docs      *fakeDocs
	versions  *fakeVersions
	index     *memory.Index
	embedder  *fakeEmbedder
	generator *fakeGenerator
	cache     *fakeCache
}

func newHarness(opts Options) *harness {
	h := &harness{
		docs:      newFakeDocs(),
		versions:  &fakeVersions{},
		index:     memory.New(),
		embedder:  &fakeEmbedder{},
		generator: &fakeGenerator{answer: "generated answer"},
		cache:     newFakeCache(),
	}
	search := retriever.New(h.embedder, h.index, 1, time.Millisecond)
	h.svc = NewRAGService(h.docs, h.versions, h.index, h.embedder, h.generator, search, h.cache, opts)
	return h
}

func defaultOptions() Options {
	return Options{
		ChunkMaxSize:   1000,
		ChunkOverlap:   200,
		DefaultTopK:    5,
		MaxTopK:        50,
		ContextBudget:  6000,
		EmbeddingModel: "nomic-embed-text",
		CacheTTL:       time.Hour,
	}
}

func TestIngestAndQuery(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	doc, err := h.svc.Ingest(ctx, "gophers.txt", []byte("All about the gopher and its burrow."))
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessed, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)

	count, err := h.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := h.svc.Query(ctx, QueryRequest{Query: "tell me about the gopher"})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", result.Answer)
	assert.False(t, result.Cached)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, doc.ID, result.Sources[0].DocumentID)

	assert.Contains(t, h.generator.prompt(), "gopher and its burrow")
	assert.Contains(t, h.generator.prompt(), "[Source: gophers.txt]")
}

func TestQueryEmptyCorpusShortCircuits(t *testing.T) {
	h := newHarness(defaultOptions())

	result, err := h.svc.Query(context.Background(), QueryRequest{Query: "anything at all"})
	require.NoError(t, err)
	assert.Equal(t, noContextAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	assert.Equal(t, 0, h.generator.callCount(), "no generation call without context")
	assert.Equal(t, 0, h.cache.putCount(), "short-circuit answers are not cached")
}

func TestQueryEmbeddingUnavailable(t *testing.T) {
	h := newHarness(defaultOptions())
	require.NoError(t, h.index.Replace(context.Background(), "d1", []vectorindex.Entry{
		{ChunkID: "d1:0", DocumentID: "d1", Ordinal: 0, Text: "gopher", Vector: []float32{1, 0, 0}},
	}))
	h.embedder.err = ai.ErrEmbeddingUnavailable

	_, err := h.svc.Query(context.Background(), QueryRequest{Query: "gopher"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)
	assert.Equal(t, 0, h.generator.callCount())
	assert.Equal(t, 0, h.cache.putCount(), "failed queries never populate the cache")
}

func TestQueryTopKClamping(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	entries := make([]vectorindex.Entry, 5)
	for i := range entries {
		entries[i] = vectorindex.Entry{
			ChunkID:    model.ChunkID("d1", i),
			DocumentID: "d1",
			Ordinal:    i,
			Text:       "gopher facts",
			Vector:     []float32{1, 0, 0},
		}
	}
	require.NoError(t, h.index.Replace(ctx, "d1", entries))

	result, err := h.svc.Query(ctx, QueryRequest{Query: "gopher", TopK: 50})
	require.NoError(t, err)
	assert.Len(t, result.Sources, 5, "top_k beyond corpus size returns all entries")

	result, err = h.svc.Query(ctx, QueryRequest{Query: "gopher", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, result.Sources, 2)
}

func TestReingestReplacesEntries(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	doc := &model.Document{ID: "d1", Filename: "a.txt", Format: "txt",
		Text: "the gopher digs.", Status: model.DocumentStatusPending}
	require.NoError(t, h.docs.Create(doc))

	require.NoError(t, h.svc.ProcessDocument(ctx, "d1"))
	require.NoError(t, h.svc.ProcessDocument(ctx, "d1"))

	count, err := h.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-ingesting the same document must not duplicate entries")
}

func TestProcessDocumentFailureCleansUp(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	doc := &model.Document{ID: "d1", Filename: "a.txt", Format: "txt",
		Text: "the gopher digs.", Status: model.DocumentStatusPending}
	require.NoError(t, h.docs.Create(doc))
	h.embedder.err = ai.ErrEmbeddingUnavailable

	err := h.svc.ProcessDocument(ctx, "d1")
	assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)

	stored, err := h.docs.GetByID("d1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailReason)

	count, err := h.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "no partial index entries after a failed ingestion")
}

func TestQueryCacheHit(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)

	first, err := h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, h.generator.callCount())

	second, err := h.svc.Query(ctx, QueryRequest{Query: "  Gopher "})
	require.NoError(t, err)
	assert.True(t, second.Cached, "normalized repeat of the same question hits the cache")
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, 1, h.generator.callCount(), "cache hit skips generation")
}

func TestQueryCacheInvalidatedByIngestion(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)
	_, err = h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	require.NoError(t, err)

	_, err = h.svc.Ingest(ctx, "ferrets.txt", []byte("the ferret climbs."))
	require.NoError(t, err)

	result, err := h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	require.NoError(t, err)
	assert.False(t, result.Cached, "corpus change invalidates prior answers")
	assert.Equal(t, 2, h.generator.callCount())
}

func TestQueryGenerationFailureReturnsSources(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)
	h.generator.err = ai.ErrGenerationFailed

	result, err := h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	assert.ErrorIs(t, err, ai.ErrGenerationFailed)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Sources, "retrieved sources accompany a generation failure")
	assert.Equal(t, 0, h.cache.putCount())
}

func TestQueryCancelledContextSkipsCacheWrite(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)

	// Cancellation lands while generation is in flight.
	h.generator.onCall = cancel

	result, err := h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", result.Answer)
	assert.Equal(t, 0, h.cache.putCount(), "cancelled requests never write the cache")
}

func TestQueryContextBudgetDropsLowestRanked(t *testing.T) {
	opts := defaultOptions()
	opts.ContextBudget = 25
	h := newHarness(opts)
	ctx := context.Background()

	require.NoError(t, h.index.Replace(ctx, "d1", []vectorindex.Entry{
		{ChunkID: "d1:0", DocumentID: "d1", Filename: "a.txt", Ordinal: 0,
			Text: "gopher gopher gopher", Vector: []float32{1, 0, 0}},
		{ChunkID: "d1:1", DocumentID: "d1", Filename: "a.txt", Ordinal: 1,
			Text: "ferret ferret ferret", Vector: []float32{0, 1, 0}},
	}))

	result, err := h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	require.NoError(t, err)
	assert.Len(t, result.Sources, 2, "sources report the full retrieval, budget applies to the prompt")
	assert.Contains(t, h.generator.prompt(), "gopher gopher gopher")
	assert.NotContains(t, h.generator.prompt(), "ferret ferret ferret")
}

func TestQueryContextBudgetKeepsTopChunk(t *testing.T) {
	opts := defaultOptions()
	opts.ContextBudget = 5
	h := newHarness(opts)
	ctx := context.Background()

	require.NoError(t, h.index.Replace(ctx, "d1", []vectorindex.Entry{
		{ChunkID: "d1:0", DocumentID: "d1", Filename: "a.txt", Ordinal: 0,
			Text: "gopher gopher gopher", Vector: []float32{1, 0, 0}},
	}))

	_, err := h.svc.Query(ctx, QueryRequest{Query: "gopher"})
	require.NoError(t, err)
	assert.Contains(t, h.generator.prompt(), "gopher gopher gopher",
		"the best chunk stays in the prompt even when it overflows the budget")
}

func TestQueryDocumentFilter(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	require.NoError(t, h.index.Replace(ctx, "d1", []vectorindex.Entry{
		{ChunkID: "d1:0", DocumentID: "d1", Ordinal: 0, Text: "gopher", Vector: []float32{1, 0, 0}},
	}))
	require.NoError(t, h.index.Replace(ctx, "d2", []vectorindex.Entry{
		{ChunkID: "d2:0", DocumentID: "d2", Ordinal: 0, Text: "gopher", Vector: []float32{1, 0, 0}},
	}))

	result, err := h.svc.Query(ctx, QueryRequest{Query: "gopher", DocumentIDs: []string{"d2"}})
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "d2", result.Sources[0].DocumentID)
}

func TestQueryStreaming(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)

	var streamed strings.Builder
	result, err := h.svc.Query(ctx, QueryRequest{
		Query: "gopher",
		OnChunk: func(chunk string) error {
			streamed.WriteString(chunk)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, result.Answer, streamed.String())
}

func TestQueryEmpty(t *testing.T) {
	h := newHarness(defaultOptions())
	_, err := h.svc.Query(context.Background(), QueryRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestCreateDocumentUnsupportedFormat(t *testing.T) {
	h := newHarness(defaultOptions())
	_, err := h.svc.CreateDocument("photo.png", []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDeleteDocument(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	doc, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)
	versionBefore, _ := h.versions.Current()

	require.NoError(t, h.svc.DeleteDocument(ctx, doc.ID))

	stored, err := h.docs.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	count, err := h.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	versionAfter, _ := h.versions.Current()
	assert.Greater(t, versionAfter, versionBefore, "deletion bumps the corpus version")

	err = h.svc.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestClearDocuments(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)
	_, err = h.svc.Ingest(ctx, "ferrets.txt", []byte("the ferret climbs."))
	require.NoError(t, err)
	versionBefore, _ := h.versions.Current()

	require.NoError(t, h.svc.ClearDocuments(ctx))

	docs, err := h.svc.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)

	count, err := h.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	versionAfter, _ := h.versions.Current()
	assert.Greater(t, versionAfter, versionBefore, "clearing bumps the corpus version once")

	// Clearing an already-empty corpus is a no-op.
	require.NoError(t, h.svc.ClearDocuments(ctx))
	versionFinal, _ := h.versions.Current()
	assert.Equal(t, versionAfter, versionFinal)
}

func TestStats(t *testing.T) {
	h := newHarness(defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, "gophers.txt", []byte("the gopher digs."))
	require.NoError(t, err)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ProcessedDocuments)
	assert.Equal(t, int64(1), stats.TotalChunks)
	assert.Equal(t, 1, stats.IndexedVectors)
	assert.Equal(t, "nomic-embed-text", stats.EmbeddingModel)
	assert.Equal(t, uint64(1), stats.CorpusVersion)
}
