package memutils

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/arc/internal/utils"
	"go.uber.org/atomic"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

const defaultNamespace = "arc"

// TrackerOptions contains optional settings when creating a Tracker
type TrackerOptions struct {
	// ExternallySynchronized indicates that the consumer guarantees the tracker is only used from
	// one goroutine at a time, so internal mutexes are not used
	ExternallySynchronized bool
	// Namespace is the prometheus namespace used by the tracker's metrics. It defaults to "arc".
	Namespace string
}

type trackedBlock struct {
	id        uint64
	name      string
	size      int
	destroyed bool
}

// Tracker keeps a registry of live shared-ownership blocks. Blocks report their allocation, the
// destruction of their payload, and their release to a tracker, which makes it possible to verify
// that each happens exactly once and to report blocks that are never released.
type Tracker struct {
	logger *slog.Logger
	mutex  utils.OptionalRWMutex
	lastID atomic.Uint64

	blocks *swiss.Map[uint64, *trackedBlock]
	stats  Statistics

	liveDesc     *prometheus.Desc
	liveByteDesc *prometheus.Desc
	weakOnlyDesc *prometheus.Desc
	allocDesc    *prometheus.Desc
	destroyDesc  *prometheus.Desc
	freeDesc     *prometheus.Desc
}

var _ prometheus.Collector = &Tracker{}

// NewTracker creates a new Tracker
//
// logger - The logger that unreleased blocks will be reported to. If nil, nothing is logged.
//
// options - Optional parameters: it is valid to leave all the fields blank
func NewTracker(logger *slog.Logger, options TrackerOptions) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	namespace := options.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &Tracker{
		logger: logger,
		mutex:  utils.OptionalRWMutex{UseMutex: !options.ExternallySynchronized},
		blocks: swiss.NewMap[uint64, *trackedBlock](42),

		liveDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "live_blocks"),
			"Number of blocks that have been allocated and not yet freed.", nil, nil),
		liveByteDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "live_block_bytes"),
			"Bytes held by blocks that have been allocated and not yet freed.", nil, nil),
		weakOnlyDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "weak_only_blocks"),
			"Number of live blocks whose payload has been destroyed but which are still observed by weak handles.", nil, nil),
		allocDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "allocations_total"),
			"Number of blocks allocated.", nil, nil),
		destroyDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "destroys_total"),
			"Number of block payloads destroyed.", nil, nil),
		freeDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "frees_total"),
			"Number of blocks freed.", nil, nil),
	}
}

// Allocate registers a new live block and returns its id. Ids start at 1 and are never reused.
func (t *Tracker) Allocate(name string, size int) uint64 {
	id := t.lastID.Inc()
	size = AlignUp(size, WordSize)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.blocks.Put(id, &trackedBlock{
		id:   id,
		name: name,
		size: size,
	})

	t.stats.LiveBlockCount++
	t.stats.LiveBlockBytes += size
	t.stats.AllocationCount++
	t.stats.AllocationBytes += size

	return id
}

// Destroy records that the payload of a live block has been destroyed or moved out of the block
func (t *Tracker) Destroy(id uint64) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	block, ok := t.blocks.Get(id)
	if !ok {
		return t.missingBlockError(id, UseAfterFreeError)
	}
	if block.destroyed {
		return errors.Wrapf(DoubleDestroyError, "block %d (%s)", id, block.name)
	}

	block.destroyed = true
	t.stats.WeakOnlyBlockCount++
	t.stats.DestroyCount++
	return nil
}

// Free unregisters a live block. A block that is freed without having its payload destroyed
// first is reported as an error, but is still unregistered.
func (t *Tracker) Free(id uint64) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	block, ok := t.blocks.Get(id)
	if !ok {
		return t.missingBlockError(id, DoubleFreeError)
	}

	t.blocks.Delete(id)
	t.stats.LiveBlockCount--
	t.stats.LiveBlockBytes -= block.size
	t.stats.FreeCount++

	if !block.destroyed {
		return errors.Newf("block %d (%s) was freed before its payload was destroyed", id, block.name)
	}

	t.stats.WeakOnlyBlockCount--
	return nil
}

// missingBlockError returns freedErr wrapped if the id was issued by this tracker, since the
// block must have been freed already
func (t *Tracker) missingBlockError(id uint64, freedErr error) error {
	if id != 0 && id <= t.lastID.Load() {
		return errors.Wrapf(freedErr, "block %d", id)
	}

	return errors.Wrapf(UnknownBlockError, "block %d", id)
}

// IsLive returns true if the block has been allocated and not yet freed
func (t *Tracker) IsLive(id uint64) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.blocks.Has(id)
}

// Statistics returns a snapshot of the tracker's statistics
func (t *Tracker) Statistics() Statistics {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.stats
}

// CheckLeaks logs every block that is still live and returns an error if there are any
func (t *Tracker) CheckLeaks() error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.blocks.Count() == 0 {
		return nil
	}

	for _, block := range t.sortedBlocks() {
		t.logUnreleasedBlock(block)
	}

	return errors.Wrapf(LeakedBlocksError, "%d blocks remain live", t.blocks.Count())
}

func (t *Tracker) logUnreleasedBlock(block *trackedBlock) {
	name := block.name
	if name == "" {
		name = "empty"
	}

	t.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed block",
		slog.Uint64("id", block.id),
		slog.Int("size", block.size),
		slog.Bool("payloadDestroyed", block.destroyed),
		slog.String("name", name),
	)
}

func (t *Tracker) sortedBlocks() []*trackedBlock {
	ids := make([]uint64, 0, t.blocks.Count())
	t.blocks.Iter(func(id uint64, _ *trackedBlock) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)

	blocks := make([]*trackedBlock, 0, len(ids))
	for _, id := range ids {
		block, _ := t.blocks.Get(id)
		blocks = append(blocks, block)
	}

	return blocks
}

func (t *Tracker) Validate() error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.stats.LiveBlockCount != t.blocks.Count() {
		return errors.Errorf("the tracker lists %d live blocks but has %d registered", t.stats.LiveBlockCount, t.blocks.Count())
	}

	if t.stats.AllocationCount-t.stats.FreeCount != t.stats.LiveBlockCount {
		return errors.Errorf("%d allocations and %d frees do not account for %d live blocks",
			t.stats.AllocationCount, t.stats.FreeCount, t.stats.LiveBlockCount)
	}

	weakOnly := 0
	liveBytes := 0
	t.blocks.Iter(func(_ uint64, block *trackedBlock) bool {
		if block.destroyed {
			weakOnly++
		}
		liveBytes += block.size
		return false
	})

	if weakOnly != t.stats.WeakOnlyBlockCount {
		return errors.Errorf("the tracker lists %d weak-only blocks but %d live blocks have been destroyed", t.stats.WeakOnlyBlockCount, weakOnly)
	}

	if liveBytes != t.stats.LiveBlockBytes {
		return errors.Errorf("the tracker lists %d live bytes but live blocks add up to %d", t.stats.LiveBlockBytes, liveBytes)
	}

	return nil
}

// BuildStatsString writes the tracker's statistics and every live block to the provided writer
func (t *Tracker) BuildStatsString(writer *jwriter.Writer) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	obj := writer.Object()
	defer obj.End()

	total := obj.Name("Total").Object()
	total.Name("LiveBlockCount").Int(t.stats.LiveBlockCount)
	total.Name("LiveBlockBytes").Int(t.stats.LiveBlockBytes)
	total.Name("WeakOnlyBlockCount").Int(t.stats.WeakOnlyBlockCount)
	total.Name("AllocationCount").Int(t.stats.AllocationCount)
	total.Name("AllocationBytes").Int(t.stats.AllocationBytes)
	total.Name("DestroyCount").Int(t.stats.DestroyCount)
	total.Name("FreeCount").Int(t.stats.FreeCount)
	total.End()

	blocks := obj.Name("LiveBlocks").Array()
	for _, block := range t.sortedBlocks() {
		blockObj := blocks.Object()
		blockObj.Name("Id").Int(int(block.id))
		blockObj.Name("Size").Int(block.size)
		blockObj.Name("PayloadDestroyed").Bool(block.destroyed)
		if block.name != "" {
			blockObj.Name("Name").String(block.name)
		}
		blockObj.End()
	}
	blocks.End()
}

// StatsString returns the output of BuildStatsString as a string
func (t *Tracker) StatsString() string {
	writer := jwriter.NewWriter()
	t.BuildStatsString(&writer)
	return string(writer.Bytes())
}

func (t *Tracker) Describe(ch chan<- *prometheus.Desc) {
	ch <- t.liveDesc
	ch <- t.liveByteDesc
	ch <- t.weakOnlyDesc
	ch <- t.allocDesc
	ch <- t.destroyDesc
	ch <- t.freeDesc
}

func (t *Tracker) Collect(ch chan<- prometheus.Metric) {
	stats := t.Statistics()

	ch <- prometheus.MustNewConstMetric(t.liveDesc, prometheus.GaugeValue, float64(stats.LiveBlockCount))
	ch <- prometheus.MustNewConstMetric(t.liveByteDesc, prometheus.GaugeValue, float64(stats.LiveBlockBytes))
	ch <- prometheus.MustNewConstMetric(t.weakOnlyDesc, prometheus.GaugeValue, float64(stats.WeakOnlyBlockCount))
	ch <- prometheus.MustNewConstMetric(t.allocDesc, prometheus.CounterValue, float64(stats.AllocationCount))
	ch <- prometheus.MustNewConstMetric(t.destroyDesc, prometheus.CounterValue, float64(stats.DestroyCount))
	ch <- prometheus.MustNewConstMetric(t.freeDesc, prometheus.CounterValue, float64(stats.FreeCount))
}
