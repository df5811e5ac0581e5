package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docuchat/internal/ai"
	"docuchat/internal/cache"
	"docuchat/internal/chunker"
	"docuchat/internal/extract"
	"docuchat/internal/model"
	"docuchat/internal/vectorindex"
)

var (
	ErrEmptyQuery       = errors.New("query must not be empty")
	ErrDocumentNotFound = errors.New("document not found")
)

// noContextAnswer is returned without calling the generation service when
// retrieval yields nothing. It is never cached.
const noContextAnswer = "I could not find any relevant documents to answer your question. Try uploading some documents first."

const systemPrompt = "You are a helpful assistant that answers questions using only the provided context. " +
	"If the context does not contain the answer, say so plainly instead of guessing. " +
	"Cite the source filename when it helps the reader."

// DocumentStore persists document metadata and the extracted text artifact.
type DocumentStore interface {
	Create(doc *model.Document) error
	GetByID(id string) (*model.Document, error)
	List() ([]model.Document, error)
	MarkProcessed(id string, chunkCount int) error
	MarkFailed(id string, reason string) error
	Delete(id string) error
	DeleteAll() error
	CountByStatus(status string) (int64, error)
	SumChunkCounts() (int64, error)
}

// VersionStore tracks the corpus version used for cache-key derivation.
type VersionStore interface {
	Current() (uint64, error)
	Bump() (uint64, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error)
}

type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int, filter vectorindex.Filter) ([]model.SearchResult, error)
}

// Options carries the pipeline tunables out of the config layer.
type Options struct {
	ChunkMaxSize   int
	ChunkOverlap   int
	DefaultTopK    int
	MaxTopK        int
	ContextBudget  int
	EmbeddingModel string
	CacheTTL       time.Duration
}

// RAGService runs the two halves of the pipeline: ingesting documents into
// the vector index and answering queries grounded on retrieved chunks.
type RAGService struct {
	docs      DocumentStore
	versions  VersionStore
	index     vectorindex.Index
	embedder  Embedder
	generator Generator
	searcher  Searcher
	answers   cache.AnswerCache
	opts      Options
}

func NewRAGService(
	docs DocumentStore,
	versions VersionStore,
	index vectorindex.Index,
	embedder Embedder,
	generator Generator,
	searcher Searcher,
	answers cache.AnswerCache,
	opts Options,
) *RAGService {
	return &RAGService{
		docs:      docs,
		versions:  versions,
		index:     index,
		embedder:  embedder,
		generator: generator,
		searcher:  searcher,
		answers:   answers,
		opts:      opts,
	}
}

// CreateDocument extracts the uploaded file's text and records a pending
// document. Extraction failures surface immediately so the caller can reject
// bad uploads before any async work is scheduled.
func (s *RAGService) CreateDocument(filename string, data []byte) (*model.Document, error) {
	format := extract.NormalizeFormat(filepath.Ext(filename))
	text, err := extract.Extract(data, format)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:       uuid.NewString(),
		Filename: filename,
		Format:   format,
		Text:     text,
		Status:   model.DocumentStatusPending,
	}
	if err := s.docs.Create(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ProcessDocument runs chunk, embed, and index for a pending document.
// All-or-nothing: any failure marks the document failed and removes whatever
// made it into the index, so a document is either fully queryable or absent.
func (s *RAGService) ProcessDocument(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	if err := s.indexDocument(ctx, doc); err != nil {
		if markErr := s.docs.MarkFailed(doc.ID, err.Error()); markErr != nil {
			log.Printf("mark document %s failed: %v", doc.ID, markErr)
		}
		if cleanErr := s.index.DeleteDocument(ctx, doc.ID); cleanErr != nil {
			log.Printf("cleanup index entries for %s: %v", doc.ID, cleanErr)
		}
		return err
	}
	return nil
}

// Ingest is the synchronous path: extract, record, and process in one call.
func (s *RAGService) Ingest(ctx context.Context, filename string, data []byte) (*model.Document, error) {
	doc, err := s.CreateDocument(filename, data)
	if err != nil {
		return nil, err
	}
	if err := s.ProcessDocument(ctx, doc.ID); err != nil {
		return doc, err
	}
	return s.docs.GetByID(doc.ID)
}

func (s *RAGService) indexDocument(ctx context.Context, doc *model.Document) error {
	chunks, err := chunker.Chunk(doc.ID, doc.Text, s.opts.ChunkMaxSize, s.opts.ChunkOverlap)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return extract.ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorindex.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Filename:   doc.Filename,
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}

	// Replace rather than add so re-ingesting the same document never
	// duplicates entries.
	if err := s.index.Replace(ctx, doc.ID, entries); err != nil {
		return err
	}

	if err := s.docs.MarkProcessed(doc.ID, len(chunks)); err != nil {
		return err
	}
	if _, err := s.versions.Bump(); err != nil {
		log.Printf("bump corpus version after ingesting %s: %v", doc.ID, err)
	}
	return nil
}

// QueryRequest describes one answering request. OnChunk, when set, receives
// generation fragments as they stream in; the full answer is still returned.
type QueryRequest struct {
	Query       string
	TopK        int
	DocumentIDs []string
	OnChunk     func(chunk string) error
}

type QueryResult struct {
	Answer  string               `json:"answer"`
	Sources []model.SearchResult `json:"sources"`
	Cached  bool                 `json:"cached"`
}

// Query answers a question grounded on the indexed corpus. Cached answers are
// replayed when the corpus has not changed since they were computed; an empty
// retrieval short-circuits without calling the generation service.
func (s *RAGService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topK := s.clampTopK(req.TopK)

	version, key := s.cacheKey(query, topK, req.DocumentIDs)
	if key != "" {
		entry, hit, err := s.answers.Get(ctx, key)
		if err != nil {
			log.Printf("answer cache get: %v", err)
		}
		if hit {
			if req.OnChunk != nil {
				if err := req.OnChunk(entry.Answer); err != nil {
					return nil, err
				}
			}
			return &QueryResult{Answer: entry.Answer, Sources: entry.Sources, Cached: true}, nil
		}
	}

	results, err := s.searcher.Retrieve(ctx, query, topK, vectorindex.Filter{DocumentIDs: req.DocumentIDs})
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		if req.OnChunk != nil {
			if err := req.OnChunk(noContextAnswer); err != nil {
				return nil, err
			}
		}
		return &QueryResult{Answer: noContextAnswer, Sources: []model.SearchResult{}}, nil
	}

	selected := s.fitToBudget(results)
	messages := buildMessages(query, selected)

	var answer string
	if req.OnChunk != nil {
		answer, err = s.generator.StreamComplete(ctx, messages, req.OnChunk)
	} else {
		answer, err = s.generator.Complete(ctx, messages)
	}
	if err != nil {
		// Partial context is still useful to the caller on generation failure.
		return &QueryResult{Sources: results}, err
	}

	// A cancelled request must not persist a possibly truncated answer.
	if key != "" && ctx.Err() == nil {
		entry := &model.CacheEntry{Answer: answer, Sources: results, CreatedAt: time.Now()}
		if err := s.answers.Put(ctx, key, entry, s.opts.CacheTTL); err != nil {
			log.Printf("answer cache put (version %d): %v", version, err)
		}
	}
	return &QueryResult{Answer: answer, Sources: results}, nil
}

// cacheKey derives the cache key for a query, or "" when caching must be
// skipped because the corpus version cannot be read.
func (s *RAGService) cacheKey(query string, topK int, documentIDs []string) (uint64, string) {
	version, err := s.versions.Current()
	if err != nil {
		log.Printf("read corpus version: %v", err)
		return 0, ""
	}
	return version, cache.Key(query, topK, documentIDs, version)
}

func (s *RAGService) clampTopK(topK int) int {
	if topK <= 0 {
		return s.opts.DefaultTopK
	}
	if s.opts.MaxTopK > 0 && topK > s.opts.MaxTopK {
		return s.opts.MaxTopK
	}
	return topK
}

// fitToBudget keeps the longest rank-ordered prefix of results whose combined
// text fits the context budget. Chunks are dropped whole, never truncated.
// The top-ranked chunk is kept even when it alone overflows the budget, so
// generation is never asked to answer without any context.
func (s *RAGService) fitToBudget(results []model.SearchResult) []model.SearchResult {
	budget := s.opts.ContextBudget
	kept := make([]model.SearchResult, 0, len(results))
	used := 0
	for _, r := range results {
		size := utf8.RuneCountInString(r.Text)
		if used+size > budget {
			break
		}
		used += size
		kept = append(kept, r)
	}
	if len(kept) == 0 && len(results) > 0 {
		kept = append(kept, results[0])
	}
	return kept
}

func buildMessages(query string, sources []model.SearchResult) []ai.ChatMessage {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for _, r := range sources {
		fmt.Fprintf(&b, "[Source: %s]\n%s\n\n", r.Filename, r.Text)
	}
	fmt.Fprintf(&b, "Question: %s", query)

	return []ai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// DeleteDocument removes a document's metadata and index entries and bumps
// the corpus version so cached answers built on it expire.
func (s *RAGService) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	if err := s.index.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.docs.Delete(documentID); err != nil {
		return err
	}
	if _, err := s.versions.Bump(); err != nil {
		log.Printf("bump corpus version after deleting %s: %v", documentID, err)
	}
	return nil
}

// ClearDocuments wipes the whole corpus: every document's index entries, all
// metadata rows, and one version bump to expire every cached answer.
func (s *RAGService) ClearDocuments(ctx context.Context) error {
	docs, err := s.docs.List()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.index.DeleteDocument(ctx, doc.ID); err != nil {
			return err
		}
	}
	if err := s.docs.DeleteAll(); err != nil {
		return err
	}
	if len(docs) > 0 {
		if _, err := s.versions.Bump(); err != nil {
			log.Printf("bump corpus version after clearing documents: %v", err)
		}
	}
	return nil
}

func (s *RAGService) ListDocuments() ([]model.Document, error) {
	return s.docs.List()
}

func (s *RAGService) GetDocument(documentID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

// Stats summarizes the corpus for the stats endpoint.
type Stats struct {
	ProcessedDocuments int64  `json:"processed_documents"`
	PendingDocuments   int64  `json:"pending_documents"`
	FailedDocuments    int64  `json:"failed_documents"`
	TotalChunks        int64  `json:"total_chunks"`
	IndexedVectors     int    `json:"indexed_vectors"`
	EmbeddingModel     string `json:"embedding_model"`
	CorpusVersion      uint64 `json:"corpus_version"`
}

func (s *RAGService) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{EmbeddingModel: s.opts.EmbeddingModel}

	var err error
	if stats.ProcessedDocuments, err = s.docs.CountByStatus(model.DocumentStatusProcessed); err != nil {
		return nil, err
	}
	if stats.PendingDocuments, err = s.docs.CountByStatus(model.DocumentStatusPending); err != nil {
		return nil, err
	}
	if stats.FailedDocuments, err = s.docs.CountByStatus(model.DocumentStatusFailed); err != nil {
		return nil, err
	}
	if stats.TotalChunks, err = s.docs.SumChunkCounts(); err != nil {
		return nil, err
	}
	if stats.IndexedVectors, err = s.index.Count(ctx); err != nil {
		log.Printf("count indexed vectors: %v", err)
		stats.IndexedVectors = -1
	}
	if stats.CorpusVersion, err = s.versions.Current(); err != nil {
		log.Printf("read corpus version: %v", err)
	}
	return stats, nil
}
