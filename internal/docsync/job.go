package docsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xrplevm/docsbot/internal/retrieval"
)

const (
	stateFileName     = "vector_store_id.txt"
	uploadConcurrency = 4
)

// Uploader is the slice of the reasoner client the sync job needs.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
	CreateVectorStore(ctx context.Context, name string) (string, error)
	AddFileToVectorStore(ctx context.Context, storeID, fileID string) error
	EnsureAssistant(ctx context.Context, vectorStoreID string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer receives embedded chunks for similarity search.
type Indexer interface {
	EnsureCollection(ctx context.Context, dimensions int) error
	Upsert(ctx context.Context, chunks []retrieval.Chunk, vectors [][]float32) error
}

type JobOptions struct {
	// Roots are the directory trees converted, gathered and indexed.
	Roots     []string
	StateDir  string
	StoreName string
}

// Job refreshes the corpus: mirror update, text conversion, vector-store
// upload, assistant re-provisioning and chunk indexing.
type Job struct {
	mirror    *Mirror
	converter *Converter
	uploader  Uploader
	indexer   Indexer
	opts      JobOptions
	logger    *slog.Logger
}

func NewJob(log *slog.Logger, mirror *Mirror, converter *Converter, uploader Uploader, indexer Indexer, opts JobOptions) *Job {
	if log == nil {
		log = slog.Default()
	}
	if opts.StoreName == "" {
		opts.StoreName = "Docs Vector Store"
	}
	return &Job{
		mirror:    mirror,
		converter: converter,
		uploader:  uploader,
		indexer:   indexer,
		opts:      opts,
		logger:    log.With(slog.String("service", "docsync")),
	}
}

// Run refreshes the docs corpus. With reupload false it reuses the persisted
// vector store id and only re-provisions the assistant, falling back to a
// full refresh when no id has been persisted yet.
func (j *Job) Run(ctx context.Context, reupload bool) error {
	storeID := ""
	if !reupload {
		storeID = j.loadStoreID()
		if storeID == "" {
			j.logger.Info("no persisted vector store id, running full refresh")
		}
	}

	if storeID == "" {
		var err error
		storeID, err = j.refresh(ctx)
		if err != nil {
			return err
		}
	} else {
		j.logger.Info("using existing vector store", slog.String("store_id", storeID))
	}

	assistantID, err := j.uploader.EnsureAssistant(ctx, storeID)
	if err != nil {
		return fmt.Errorf("provision assistant: %w", err)
	}
	j.logger.Info("assistant ready",
		slog.String("assistant_id", assistantID),
		slog.String("store_id", storeID))
	return nil
}

func (j *Job) refresh(ctx context.Context) (string, error) {
	if err := j.mirror.Update(ctx); err != nil {
		return "", fmt.Errorf("update docs mirror: %w", err)
	}

	for _, root := range j.opts.Roots {
		created, err := j.converter.ConvertTree(ctx, root)
		if err != nil {
			if os.IsNotExist(err) {
				j.logger.Warn("docs root missing, skipping", slog.String("root", root))
				continue
			}
			return "", fmt.Errorf("convert %s: %w", root, err)
		}
		j.logger.Info("converted files", slog.String("root", root), slog.Int("count", len(created)))
	}

	files := j.gatherAll()
	if len(files) == 0 {
		return "", fmt.Errorf("no text files found under %s", strings.Join(j.opts.Roots, ", "))
	}

	fileIDs := j.uploadAll(ctx, files)

	storeID, err := j.uploader.CreateVectorStore(ctx, j.opts.StoreName)
	if err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}
	for _, fileID := range fileIDs {
		if err := j.uploader.AddFileToVectorStore(ctx, storeID, fileID); err != nil {
			j.logger.Error("add file to vector store failed",
				slog.String("file_id", fileID),
				slog.Any("error", err))
		}
	}

	if err := j.saveStoreID(storeID); err != nil {
		j.logger.Error("persist vector store id failed", slog.Any("error", err))
	}

	j.indexChunks(ctx, files)
	return storeID, nil
}

func (j *Job) gatherAll() []string {
	seen := make(map[string]struct{})
	var files []string
	for _, root := range j.opts.Roots {
		found, err := GatherTextFiles(root)
		if err != nil {
			j.logger.Warn("gather text files failed", slog.String("root", root), slog.Any("error", err))
			continue
		}
		for _, f := range found {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			files = append(files, f)
		}
	}
	return files
}

// uploadAll uploads files concurrently. A failed upload drops that file from
// this refresh; it never aborts the others.
func (j *Job) uploadAll(ctx context.Context, files []string) []string {
	var mu sync.Mutex
	var fileIDs []string

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, path := range files {
		g.Go(func() error {
			fileID, err := j.uploader.UploadFile(ctx, path)
			if err != nil {
				j.logger.Error("upload failed", slog.String("path", path), slog.Any("error", err))
				return nil
			}
			j.logger.Debug("uploaded", slog.String("path", path), slog.String("file_id", fileID))
			mu.Lock()
			fileIDs = append(fileIDs, fileID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return fileIDs
}

// indexChunks embeds sentence chunks of every text file and upserts them into
// the similarity store. Indexing problems degrade retrieval quality, never
// the refresh.
func (j *Job) indexChunks(ctx context.Context, files []string) {
	if j.indexer == nil {
		return
	}
	collectionReady := false
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			j.logger.Warn("read file for indexing failed", slog.String("path", path), slog.Any("error", err))
			continue
		}

		var chunks []retrieval.Chunk
		var vectors [][]float32
		for _, text := range ChunkText(string(data), DefaultChunkTokens, DefaultOverlapTokens) {
			vector, err := j.uploader.Embed(ctx, text)
			if err != nil {
				j.logger.Warn("embed chunk failed", slog.String("path", path), slog.Any("error", err))
				continue
			}
			if !collectionReady {
				if err := j.indexer.EnsureCollection(ctx, len(vector)); err != nil {
					j.logger.Error("ensure collection failed, skipping chunk indexing", slog.Any("error", err))
					return
				}
				collectionReady = true
			}
			chunks = append(chunks, retrieval.Chunk{Text: text, Path: path})
			vectors = append(vectors, vector)
		}
		if len(chunks) == 0 {
			continue
		}
		if err := j.indexer.Upsert(ctx, chunks, vectors); err != nil {
			j.logger.Error("upsert chunks failed", slog.String("path", path), slog.Any("error", err))
		}
	}
}

func (j *Job) statePath() string {
	return filepath.Join(j.opts.StateDir, stateFileName)
}

func (j *Job) loadStoreID() string {
	data, err := os.ReadFile(j.statePath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (j *Job) saveStoreID(storeID string) error {
	if err := os.MkdirAll(j.opts.StateDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(j.statePath(), []byte(storeID), 0o644)
}
