package tasks

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/chunker"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeBuildCorpus = "pdfqa:build_corpus"

	buildTimeout  = 30 * time.Minute
	buildMaxRetry = 3
)

type BuildCorpusRequest struct {
	Path   string
	Source string

	// Zero selects chunker.DefaultChunkSize.
	ChunkSize int
	// Nil selects chunker.DefaultOverlap for the chunk size.
	ChunkOverlap *int
}

type buildCorpusPayload struct {
	TraceID      string
	Path         string
	Source       string
	ChunkSize    int
	ChunkOverlap int
}

// NewBuildCorpusTask returns the task and the trace id its progress is
// reported under. The asynq task id is the trace id.
func NewBuildCorpusTask(req BuildCorpusRequest) (*asynq.Task, string, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, "", api.EmptyInputError{Field: "path"}
	}

	tp := buildCorpusPayload{
		TraceID:      uuid.NewString(),
		Path:         req.Path,
		Source:       req.Source,
		ChunkSize:    req.ChunkSize,
	}
	if tp.ChunkSize == 0 {
		tp.ChunkSize = chunker.DefaultChunkSize
	}
	if req.ChunkOverlap != nil {
		tp.ChunkOverlap = *req.ChunkOverlap
	} else {
		tp.ChunkOverlap = chunker.DefaultOverlap(tp.ChunkSize)
	}

	payload, err := json.Marshal(tp)
	if err != nil {
		return nil, "", err
	}
	t := asynq.NewTask(TypeBuildCorpus, payload,
		asynq.TaskID(tp.TraceID),
		asynq.MaxRetry(buildMaxRetry),
		asynq.Timeout(buildTimeout),
	)
	return t, tp.TraceID, nil
}
