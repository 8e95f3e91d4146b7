package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/database"
	"github.com/baoteam/rag-bot/types"
	"github.com/baoteam/rag-bot/utils"
	"gopkg.in/yaml.v3"
)

// FLUSH_SIZE caps how many chunks accumulate before an embed-and-index flush.
const FLUSH_SIZE = 1000

// IngestService reads transcript entries from disk, cuts them into chunks,
// embeds them and writes them to the vector index. The ledger records every
// indexed entry so re-running over the same folder only picks up new files.
type IngestService struct {
	cfg      config.IngestConfig
	app      string
	index    database.VectorIndex
	ledger   *database.IngestLedger
	embedder Embedder
}

func NewIngestService(cfg *config.Config, index database.VectorIndex, ledger *database.IngestLedger, embedder Embedder) *IngestService {
	return &IngestService{
		cfg:      cfg.Ingest,
		app:      cfg.Retriever.Collection,
		index:    index,
		ledger:   ledger,
		embedder: embedder,
	}
}

// IngestFolder walks the source directory, skips entries already in the
// ledger and indexes the rest. The ledger is written only after the index
// writes succeed, so a crash re-ingests at most the in-flight batch.
func (s *IngestService) IngestFolder(ctx context.Context, dir string) error {
	if dir == "" {
		dir = s.cfg.SourceDir
	}

	names, byName, err := s.scanFolder(dir)
	if err != nil {
		return err
	}
	fresh, err := s.ledger.FindNewEntries(ctx, s.app, names)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		log.Printf("no new entries under %s", dir)
		return nil
	}
	log.Printf("found %d new entries under %s", len(fresh), dir)

	var (
		buffer []types.Document
		done   []database.LedgerEntry
	)
	flush := func() error {
		if err := s.flush(ctx, buffer); err != nil {
			return err
		}
		if err := s.ledger.BatchInsert(ctx, s.app, done); err != nil {
			return err
		}
		buffer, done = nil, nil
		return nil
	}

	for _, name := range fresh {
		docs, err := s.ingestPath(byName[name])
		if err != nil {
			log.Printf("skipping %s: %v", name, err)
			continue
		}
		buffer = append(buffer, docs...)
		done = append(done, database.LedgerEntry{Name: name, Source: docs[0].Metadata.Source})
		if len(buffer) >= FLUSH_SIZE {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// IngestFile indexes a single entry file and records it in the ledger.
func (s *IngestService) IngestFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	exists, err := s.ledger.IsExistEntry(ctx, s.app, name)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("entry %s already ingested", name)
		return nil
	}
	docs, err := s.ingestPath(path)
	if err != nil {
		return err
	}
	if err := s.flush(ctx, docs); err != nil {
		return err
	}
	return s.ledger.BatchInsert(ctx, s.app,
		[]database.LedgerEntry{{Name: name, Source: docs[0].Metadata.Source}})
}

// IngestEntry indexes one entry from a reader, for upload endpoints where no
// file path exists. Topic falls back to the configured default.
func (s *IngestService) IngestEntry(ctx context.Context, name string, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read entry %s: %v", name, err)
	}
	exists, err := s.ledger.IsExistEntry(ctx, s.app, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: entry %s already ingested", types.ErrValidation, name)
	}
	docs, err := s.buildDocuments(raw, s.cfg.DefaultTopic)
	if err != nil {
		return err
	}
	if err := s.flush(ctx, docs); err != nil {
		return err
	}
	return s.ledger.BatchInsert(ctx, s.app,
		[]database.LedgerEntry{{Name: name, Source: docs[0].Metadata.Source}})
}

// Remove deletes indexed chunks matching one metadata filter, then drops the
// ledger records carrying the same source values when the filter is by source,
// so the entries can be re-ingested. The two deletes are not atomic; a crash
// in between leaves ledger rows whose chunks are gone, which a
// source-filtered Remove rerun cleans up.
func (s *IngestService) Remove(ctx context.Context, filterKey string, filterValues []string) error {
	if err := s.index.DeleteByMetadata(ctx, filterKey, filterValues); err != nil {
		return err
	}
	if filterKey == types.MetaSourceKey {
		return s.ledger.RemoveBySource(ctx, s.app, filterValues)
	}
	return nil
}

// ListSources returns the ingested entries, newest first, optionally filtered
// by a name substring.
func (s *IngestService) ListSources(ctx context.Context, nameLike string) ([]database.IngestRecord, error) {
	return s.ledger.ListEntries(ctx, s.app, nameLike)
}

// scanFolder collects the yaml entry files under dir, one level of topic
// subfolders deep, returning names and a name-to-path map.
func (s *IngestService) scanFolder(dir string) ([]string, map[string]string, error) {
	var names []string
	byName := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		name := d.Name()
		if prev, ok := byName[name]; ok {
			log.Printf("duplicate entry name %s (%s and %s), keeping the first", name, prev, path)
			return nil
		}
		names = append(names, name)
		byName[name] = path
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %v", dir, err)
	}
	return names, byName, nil
}

func (s *IngestService) ingestPath(path string) ([]types.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}
	return s.buildDocuments(raw, s.topicFor(path))
}

// topicFor derives the topic from the entry's parent folder when that folder
// is a configured topic, otherwise the default.
func (s *IngestService) topicFor(path string) string {
	folder := filepath.Base(filepath.Dir(path))
	for _, t := range s.cfg.Topics {
		if t == folder {
			return folder
		}
	}
	return s.cfg.DefaultTopic
}

// buildDocuments parses one yaml entry and cuts it into chunk documents.
func (s *IngestService) buildDocuments(raw []byte, topic string) ([]types.Document, error) {
	var entry types.IngestEntry
	if err := yaml.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: bad entry yaml: %v", types.ErrValidation, err)
	}
	if err := validateEntry(&entry); err != nil {
		return nil, err
	}

	meta := entry.Metadata
	if meta.Topic == "" {
		meta.Topic = topic
	}
	meta.PubYear, meta.PubYearMonth = derivePubParts(meta.PubDate)

	chunks := splitChunks(entry.Content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)

	docs := make([]types.Document, 0, len(chunks))
	startAt := 0
	for i, chunk := range chunks {
		times := utils.ExtractTimesToSeconds(chunk)
		if len(times) > 0 {
			startAt = times[0]
		}
		chunkMeta := meta
		chunkMeta.ChunkNo = i
		chunkMeta.StartAt = startAt
		docs = append(docs, types.Document{
			ID:       utils.HashOfText(chunk),
			Content:  chunk,
			Metadata: chunkMeta,
		})
		// Chunks without their own marker inherit the last one seen.
		if len(times) > 0 {
			startAt = times[len(times)-1]
		}
	}
	return docs, nil
}

func validateEntry(entry *types.IngestEntry) error {
	if strings.TrimSpace(entry.Content) == "" {
		return fmt.Errorf("%w: entry has no content", types.ErrValidation)
	}
	if entry.Metadata.Source == "" {
		return fmt.Errorf("%w: entry metadata missing source", types.ErrValidation)
	}
	if entry.Metadata.Title == "" {
		return fmt.Errorf("%w: entry metadata missing title", types.ErrValidation)
	}
	return nil
}

// derivePubParts expands a publication date into its year and year-month
// forms for coarse date filtering. Both yyyy-MM-dd and compact yyyyMMdd
// entries are accepted.
func derivePubParts(pubDate string) (year, yearMonth string) {
	if strings.Contains(pubDate, "-") {
		parts := strings.Split(pubDate, "-")
		if len(parts[0]) == 4 {
			year = parts[0]
		}
		if len(parts) >= 2 && year != "" {
			yearMonth = parts[0] + "-" + parts[1]
		}
		return year, yearMonth
	}
	if len(pubDate) >= 4 {
		year = pubDate[:4]
	}
	if len(pubDate) >= 6 {
		yearMonth = pubDate[:4] + "-" + pubDate[4:6]
	}
	return year, yearMonth
}

// splitChunks cuts text into chunks of at most size bytes, preferring sentence
// or line boundaries, with the tail of each chunk repeated at the head of the
// next.
func splitChunks(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		end := pos + size
		if end >= len(text) {
			if chunk := strings.TrimSpace(text[pos:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := end
		for i := end; i > pos; i-- {
			if c := text[i]; c == '.' || c == '?' || c == '!' || c == '\n' {
				cut = i + 1
				break
			}
		}
		if chunk := strings.TrimSpace(text[pos:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= pos {
			next = cut
		}
		pos = next
	}
	return chunks
}

// flush embeds the buffered chunks and writes them to the index.
func (s *IngestService) flush(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks: %w", len(docs), err)
	}
	if err := s.index.AddDocuments(ctx, docs, vectors); err != nil {
		return err
	}
	log.Printf("indexed %d chunks", len(docs))
	return nil
}
