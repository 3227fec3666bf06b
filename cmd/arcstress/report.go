package main

import (
	"context"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/exp/slog"
)

// residentBytes returns the resident set size of this process
func residentBytes(ctx context.Context) (uint64, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, errors.Wrap(err, "failed to open the current process")
	}

	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read process memory")
	}

	return info.RSS, nil
}

// BuildReportString writes the report, and the resident set size if it is known, to the writer
func (r *StressReport) BuildReportString(writer *jwriter.Writer, rss uint64) {
	obj := writer.Object()
	defer obj.End()

	config := obj.Name("Config").Object()
	config.Name("Workers").Int(r.Config.Workers)
	config.Name("Handles").Int(r.Config.Handles)
	config.Name("Ops").Int(r.Config.Ops)
	// Seeds exceed the integer range of a float64, which JSON readers commonly decode into
	config.Name("Seed").String(strconv.FormatInt(r.Config.Seed, 10))
	config.End()

	ops := obj.Name("Operations").Object()
	ops.Name("Clones").Int(int(r.Counters.Clones.Load()))
	ops.Name("Downgrades").Int(int(r.Counters.Downgrades.Load()))
	ops.Name("WeakClones").Int(int(r.Counters.WeakClones.Load()))
	ops.Name("Upgrades").Int(int(r.Counters.Upgrades.Load()))
	ops.Name("FailedUpgrades").Int(int(r.Counters.FailedUpgrades.Load()))
	ops.Name("Reads").Int(int(r.Counters.Reads.Load()))
	ops.Name("CorruptReads").Int(int(r.Counters.CorruptReads.Load()))
	ops.Name("Mutations").Int(int(r.Counters.Mutations.Load()))
	ops.Name("Drops").Int(int(r.Counters.Drops.Load()))
	ops.Name("Destroys").Int(int(r.Counters.Destroys.Load()))
	ops.End()

	stats := obj.Name("Statistics").Object()
	stats.Name("AllocationCount").Int(r.Statistics.AllocationCount)
	stats.Name("AllocationBytes").Int(r.Statistics.AllocationBytes)
	stats.Name("DestroyCount").Int(r.Statistics.DestroyCount)
	stats.Name("FreeCount").Int(r.Statistics.FreeCount)
	stats.Name("LiveBlockCount").Int(r.Statistics.LiveBlockCount)
	stats.End()

	if rss != 0 {
		obj.Name("ResidentBytes").Int(int(rss))
	}
	obj.Name("Failed").Bool(r.Failed())
}

// ReportString returns the output of BuildReportString as a string
func (r *StressReport) ReportString(rss uint64) string {
	writer := jwriter.NewWriter()
	r.BuildReportString(&writer, rss)
	return string(writer.Bytes())
}

// LogReport writes the report to the logger as a single record
func (r *StressReport) LogReport(logger *slog.Logger, rss uint64) {
	level := slog.LevelInfo
	if r.Failed() {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.Int("workers", r.Config.Workers),
		slog.Int("handles", r.Config.Handles),
		slog.Int("ops", r.Config.Ops),
		slog.Int64("seed", r.Config.Seed),
		slog.Int64("clones", r.Counters.Clones.Load()),
		slog.Int64("downgrades", r.Counters.Downgrades.Load()),
		slog.Int64("upgrades", r.Counters.Upgrades.Load()),
		slog.Int64("failedUpgrades", r.Counters.FailedUpgrades.Load()),
		slog.Int64("corruptReads", r.Counters.CorruptReads.Load()),
		slog.Int64("mutations", r.Counters.Mutations.Load()),
		slog.Int64("destroys", r.Counters.Destroys.Load()),
		slog.Int("allocations", r.Statistics.AllocationCount),
		slog.Int("frees", r.Statistics.FreeCount),
		slog.Int("liveBlocks", r.Statistics.LiveBlockCount),
	}
	if rss != 0 {
		attrs = append(attrs, slog.Uint64("residentBytes", rss))
	}
	if r.LeakErr != nil {
		attrs = append(attrs, slog.Any("error", r.LeakErr))
	}

	logger.LogAttrs(context.Background(), level, "stress run complete", attrs...)
}
