package shopify

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/internal/config"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const taskBuffer = 256

type WorkerParams struct {
	fx.In

	Log    *zap.Logger
	Cfg    config.Config
	Syncer *Syncer
}

// Worker drains catalog sync tasks on a small pool of goroutines.
// Enqueue never blocks callers: when the buffer is full the task is
// dropped with a warning and the unit stays pending, to be picked up
// again through a retry.
type Worker struct {
	log     *zap.Logger
	syncer  *Syncer
	workers int

	tasks  chan unitdomain.SyncTask
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewWorker(p WorkerParams) *Worker {
	workers := p.Cfg.SyncWorkers
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		log:     p.Log.Named("shopify.worker"),
		syncer:  p.Syncer,
		workers: workers,
		tasks:   make(chan unitdomain.SyncTask, taskBuffer),
	}
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
	w.log.Info("sync workers started", zap.Int("workers", w.workers))
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.tasks)
	w.mu.Unlock()

	w.wg.Wait()
	if w.cancel != nil {
		w.cancel()
	}
	w.log.Info("sync workers stopped")
}

// Enqueue implements unitdomain.SyncQueue.
func (w *Worker) Enqueue(tasks ...unitdomain.SyncTask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Warn("sync queue closed, dropping tasks", zap.Int("count", len(tasks)))
		return
	}
	for _, task := range tasks {
		select {
		case w.tasks <- task:
		default:
			w.log.Warn("sync queue full, dropping task",
				zap.Int64("unit_id", int64(task.UnitID)),
				zap.String("op", string(task.Op)),
			)
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for task := range w.tasks {
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task unitdomain.SyncTask) {
	var err error
	switch task.Op {
	case unitdomain.OpPush:
		err = w.syncer.PushUnits(ctx, []snowflake.ID{task.UnitID})
	case unitdomain.OpArchive:
		err = w.syncer.ArchiveUnit(ctx, task.UnitID)
	default:
		w.log.Warn("unknown sync op", zap.String("op", string(task.Op)))
		return
	}
	if err != nil {
		w.log.Warn("sync task failed",
			zap.Int64("unit_id", int64(task.UnitID)),
			zap.String("op", string(task.Op)),
			zap.Error(err),
		)
	}
}
