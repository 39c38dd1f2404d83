package worker_test

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/pdfqa/internal/tasks"
	"github.com/alan-mat/pdfqa/worker"
)

func TestServeMuxRoutesBuildTasks(t *testing.T) {
	var got []string
	mux := worker.NewServeMux(asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		got = append(got, task.Type())
		return nil
	}))

	task, _, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "manual.pdf"})
	require.NoError(t, err)

	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Equal(t, []string{tasks.TypeBuildCorpus}, got)

	err = mux.ProcessTask(context.Background(), asynq.NewTask("pdfqa:other", nil))
	assert.Error(t, err)
	assert.Len(t, got, 1)
}
