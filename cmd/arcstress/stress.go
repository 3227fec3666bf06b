package main

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/vkngwrapper/arc/arc"
	"github.com/vkngwrapper/arc/memutils"
	"go.uber.org/atomic"
	"golang.org/x/exp/slog"
)

const checksumSalt uint64 = 0x9e3779b97f4a7c15

// StressConfig controls a stress run
type StressConfig struct {
	// Workers is the number of tasks run concurrently against the shared roots
	Workers int
	// Handles is the number of shared roots every task draws handles from
	Handles int
	// Ops is the number of random operations each task performs
	Ops int
	// Seed seeds every task's random source, so that a run's operation sequence can be repeated
	Seed int64
}

func (c StressConfig) validate() error {
	if c.Workers < 1 {
		return errors.Newf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Handles < 1 {
		return errors.Newf("handles must be at least 1, got %d", c.Handles)
	}
	if c.Ops < 0 {
		return errors.Newf("ops cannot be negative, got %d", c.Ops)
	}
	return nil
}

// stressPayload carries a checksum so that a read of a destroyed payload, which is zeroed, is
// detected
type stressPayload struct {
	root     int
	checksum uint64
}

func newStressPayload(root int) stressPayload {
	return stressPayload{root: root, checksum: uint64(root+1) * checksumSalt}
}

func (p *stressPayload) intact() bool {
	return p.checksum != 0 && p.checksum == uint64(p.root+1)*checksumSalt
}

// StressCounters counts the operations performed during a run
type StressCounters struct {
	Clones         atomic.Int64
	Downgrades     atomic.Int64
	WeakClones     atomic.Int64
	Upgrades       atomic.Int64
	FailedUpgrades atomic.Int64
	Reads          atomic.Int64
	CorruptReads   atomic.Int64
	Mutations      atomic.Int64
	Drops          atomic.Int64
	Destroys       atomic.Int64
}

// StressReport is the outcome of a run
type StressReport struct {
	Config     StressConfig
	Counters   *StressCounters
	Statistics memutils.Statistics
	// LeakErr is set if any block was still live once every handle had been dropped
	LeakErr error
}

// Failed returns true if the run observed a corrupt read or left blocks live
func (r *StressReport) Failed() bool {
	return r.LeakErr != nil ||
		r.Counters.CorruptReads.Load() > 0 ||
		!r.Statistics.Balanced() ||
		int(r.Counters.Destroys.Load()) != r.Statistics.DestroyCount
}

type stressTask struct {
	id       int
	rng      *rand.Rand
	counters *StressCounters

	strongs []*arc.Strong[stressPayload]
	weaks   []*arc.Weak[stressPayload]
}

func (t *stressTask) step() {
	if len(t.strongs) == 0 && len(t.weaks) == 0 {
		return
	}

	switch t.rng.Intn(7) {
	case 0:
		if len(t.strongs) > 0 {
			t.strongs = append(t.strongs, t.pickStrong().Clone())
			t.counters.Clones.Inc()
		}
	case 1:
		if len(t.strongs) > 0 {
			t.weaks = append(t.weaks, t.pickStrong().Downgrade())
			t.counters.Downgrades.Inc()
		}
	case 2:
		if len(t.weaks) > 0 {
			t.weaks = append(t.weaks, t.weaks[t.rng.Intn(len(t.weaks))].Clone())
			t.counters.WeakClones.Inc()
		}
	case 3:
		if len(t.weaks) > 0 {
			if upgraded, ok := t.weaks[t.rng.Intn(len(t.weaks))].Upgrade(); ok {
				t.strongs = append(t.strongs, upgraded)
				t.counters.Upgrades.Inc()
			} else {
				t.counters.FailedUpgrades.Inc()
			}
		}
	case 4:
		if len(t.strongs) > 0 {
			t.counters.Reads.Inc()
			if !t.pickStrong().Get().intact() {
				t.counters.CorruptReads.Inc()
			}
		}
	case 5:
		if len(t.strongs) > 0 {
			if value, ok := t.pickStrong().GetMut(); ok {
				// Rewriting the same contents keeps the checksum valid for later readers
				*value = newStressPayload(value.root)
				t.counters.Mutations.Inc()
			}
		}
	case 6:
		t.dropOne()
	}
}

func (t *stressTask) pickStrong() *arc.Strong[stressPayload] {
	return t.strongs[t.rng.Intn(len(t.strongs))]
}

func (t *stressTask) dropOne() {
	total := len(t.strongs) + len(t.weaks)
	index := t.rng.Intn(total)
	if index < len(t.strongs) {
		t.strongs[index].Drop()
		t.strongs = append(t.strongs[:index], t.strongs[index+1:]...)
	} else {
		index -= len(t.strongs)
		t.weaks[index].Drop()
		t.weaks = append(t.weaks[:index], t.weaks[index+1:]...)
	}
	t.counters.Drops.Inc()
}

func (t *stressTask) release() {
	for _, strong := range t.strongs {
		strong.Drop()
	}
	for _, weak := range t.weaks {
		weak.Drop()
	}
	t.counters.Drops.Add(int64(len(t.strongs) + len(t.weaks)))
	t.strongs = nil
	t.weaks = nil
}

// RunStress seeds config.Handles shared roots, runs config.Workers tasks against them on an ants
// pool, then drops every handle and checks the tracker for leaks
func RunStress(ctx context.Context, logger *slog.Logger, tracker *memutils.Tracker, config StressConfig) (*StressReport, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	counters := &StressCounters{}
	roots := make([]*arc.Strong[stressPayload], 0, config.Handles)
	for i := 0; i < config.Handles; i++ {
		roots = append(roots, arc.NewWithOptions(newStressPayload(i), arc.CreateOptions[stressPayload]{
			Name:    "stress root",
			Tracker: tracker,
			Logger:  logger,
			Destructor: func(value *stressPayload) {
				counters.Destroys.Inc()
			},
		}))
	}

	taskErrs := make(chan error, config.Workers)
	pool, err := ants.NewPool(config.Workers,
		// Tasks recover their own panics, so this only sees panics raised by the pool itself
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker pool panicked", slog.Any("panic", v))
		}),
		ants.WithPreAlloc(true),
		ants.WithNonblocking(false),
	)
	if err != nil {
		for _, root := range roots {
			root.Drop()
		}
		return nil, errors.Wrap(err, "failed to create worker pool")
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		task := &stressTask{
			id:       i,
			rng:      rand.New(rand.NewSource(config.Seed + int64(i))),
			counters: counters,
		}

		// Each task starts with its own clone of every root, taken before any task can drop one
		for _, root := range roots {
			task.strongs = append(task.strongs, root.Clone())
		}

		wg.Add(1)
		err = pool.Submit(func() {
			defer wg.Done()
			defer task.release()
			// Runs before wg.Done, so the error is queued before taskErrs is closed
			defer func() {
				if p := recover(); p != nil {
					taskErrs <- errors.Newf("stress task %d panicked: %v", task.id, p)
				}
			}()

			for op := 0; op < config.Ops; op++ {
				if op%1024 == 0 && ctx.Err() != nil {
					return
				}
				task.step()
			}
			logger.Debug("stress task finished", slog.Int("task", task.id))
		})
		if err != nil {
			wg.Done()
			task.release()
			logger.Error("failed to submit stress task", slog.Int("task", task.id), slog.Any("error", err))
		}
	}

	// The roots are dropped while the tasks are running, so the last drop of each block races
	// with the tasks' upgrades
	for _, root := range roots {
		root.Drop()
	}

	wg.Wait()
	close(taskErrs)

	var runErr error
	for taskErr := range taskErrs {
		runErr = errors.CombineErrors(runErr, taskErr)
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	return &StressReport{
		Config:     config,
		Counters:   counters,
		Statistics: tracker.Statistics(),
		LeakErr:    tracker.CheckLeaks(),
	}, runErr
}
