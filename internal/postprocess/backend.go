package postprocess

import (
	"github.com/gammazero/workerpool"
	"github.com/panjf2000/ants/v2"
	conc "github.com/sourcegraph/conc/pool"
)

// Pool is the dispatch surface a fire-and-forget Processor runs on. Swapping
// the concrete pool changes only the concurrency policy, never the panic or
// error handling launchAsync already wraps around the task.
type Pool interface {
	Submit(f func()) error
}

// poolFunc adapts a plain func(func()) error to Pool.
type poolFunc func(f func()) error

func (p poolFunc) Submit(f func()) error { return p(f) }

// PoolOfGoroutine is the pipeline's default: one goroutine per fire-and-forget
// call, unbounded. launchAsync already recovers panics on the task itself, so
// this adapter does nothing beyond starting the goroutine.
func PoolOfGoroutine() Pool {
	return poolFunc(func(f func()) error {
		go f()
		return nil
	})
}

// PoolOfAnts bounds fire-and-forget dispatch to an ants.Pool, for
// deployments that want a fixed goroutine budget under sustained load.
func PoolOfAnts(p *ants.Pool) Pool {
	return poolFunc(p.Submit)
}

// PoolOfWorkerpool bounds fire-and-forget dispatch to a gammazero/workerpool.
// Submit never blocks the caller and the pool has no rejection path, so it
// always reports success.
func PoolOfWorkerpool(p *workerpool.WorkerPool) Pool {
	return poolFunc(func(f func()) error {
		p.Submit(f)
		return nil
	})
}

// PoolOfConc bounds fire-and-forget dispatch to a sourcegraph/conc pool.
func PoolOfConc(p *conc.Pool) Pool {
	return poolFunc(func(f func()) error {
		p.Go(f)
		return nil
	})
}
