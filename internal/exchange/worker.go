package exchange

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"papertrade/internal/models"
)

const jobChanSize = 256

type matchJob struct {
	id      uuid.UUID
	orderID int
}

// workerPool drains matching jobs. Jobs are sharded by (currency,
// namespace), so matching passes for one book always run on the same worker
// and therefore never concurrently with each other.
type workerPool struct {
	t    *tomb.Tomb
	jobs []chan matchJob
	log  zerolog.Logger
}

// Start spawns n matching workers. Must be called before any order is
// submitted through the server path.
func (e *Engine) Start(n int) {
	if n < 1 {
		n = 1
	}
	pool := &workerPool{
		t:    &tomb.Tomb{},
		jobs: make([]chan matchJob, n),
		log:  e.log,
	}
	for i := range pool.jobs {
		pool.jobs[i] = make(chan matchJob, jobChanSize)
	}
	for i := range pool.jobs {
		shard := i
		pool.t.Go(func() error {
			return e.runWorker(pool, shard)
		})
	}
	e.pool = pool
}

// Stop signals the workers and waits for them to drain their current job.
func (e *Engine) Stop() error {
	if e.pool == nil {
		return nil
	}
	e.pool.t.Kill(nil)
	return e.pool.t.Wait()
}

// schedule enqueues a matching pass for a freshly accepted order. With no
// pool running (tests drive Match directly) it is a no-op.
func (e *Engine) schedule(order *models.Order) {
	if e.pool == nil {
		return
	}
	job := matchJob{id: uuid.New(), orderID: order.ID}
	shard := bookShard(order.Currency, order.Sandbox, len(e.pool.jobs))
	select {
	case e.pool.jobs[shard] <- job:
	case <-e.pool.t.Dying():
		e.log.Warn().Int("order_id", order.ID).Msg("engine stopping, matching pass dropped")
	}
}

func (e *Engine) runWorker(pool *workerPool, shard int) error {
	ctx := pool.t.Context(context.Background())
	for {
		select {
		case <-pool.t.Dying():
			return nil
		case job := <-pool.jobs[shard]:
			if err := e.Match(ctx, job.orderID); err != nil {
				// Best effort: the order stays PENDING and a later
				// submission on the same book can still fill it.
				pool.log.Error().Err(err).
					Str("job_id", job.id.String()).
					Int("order_id", job.orderID).
					Int("shard", shard).
					Msg("matching pass failed")
			}
		}
	}
}

func bookShard(currency string, sandbox bool, n int) int {
	h := fnv.New32a()
	h.Write([]byte(currency))
	if sandbox {
		h.Write([]byte("sandbox"))
	}
	return int(h.Sum32()) % n
}
