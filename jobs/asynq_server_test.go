package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rec.Body.String())
}

func TestNewWorkerRejectsInvalidCron(t *testing.T) {
	mr := miniredis.RunT(t)
	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{})
	require.NoError(t, err)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.Error(t, err)

	worker, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Handlers: []TaskHandler{{Type: TaskLedgerIntegrity, Handler: func(context.Context, *asynq.Task) error {
			return nil
		}}},
	})
	require.NoError(t, err)
	require.NotNil(t, worker)
}
