package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arc/memutils"
	"golang.org/x/exp/slog"
)

func TestRunStressBalanced(t *testing.T) {
	tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})

	report, err := RunStress(context.Background(), nil, tracker, StressConfig{
		Workers: 8,
		Handles: 3,
		Ops:     2000,
		Seed:    1,
	})
	require.NoError(t, err)
	require.False(t, report.Failed())
	require.NoError(t, report.LeakErr)

	require.Equal(t, 3, report.Statistics.AllocationCount)
	require.Equal(t, 3, report.Statistics.DestroyCount)
	require.Equal(t, 3, report.Statistics.FreeCount)
	require.Equal(t, int64(3), report.Counters.Destroys.Load())
	require.Zero(t, report.Counters.CorruptReads.Load())
	require.Positive(t, report.Counters.Clones.Load()+report.Counters.Downgrades.Load())
}

func TestRunStressNoOps(t *testing.T) {
	tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})

	report, err := RunStress(context.Background(), nil, tracker, StressConfig{
		Workers: 2,
		Handles: 2,
	})
	require.NoError(t, err)
	require.False(t, report.Failed())
	require.Equal(t, int64(2*2), report.Counters.Drops.Load())
}

func TestRunStressCancelled(t *testing.T) {
	tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := RunStress(ctx, nil, tracker, StressConfig{
		Workers: 4,
		Handles: 2,
		Ops:     1 << 20,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.NoError(t, report.LeakErr)
	require.True(t, report.Statistics.Balanced())
}

var invalidConfigTestCases = map[string]struct {
	Config StressConfig
	Error  string
}{
	"No Workers": {
		Config: StressConfig{Handles: 1},
		Error:  "workers must be at least 1, got 0",
	},
	"No Handles": {
		Config: StressConfig{Workers: 1},
		Error:  "handles must be at least 1, got 0",
	},
	"Negative Ops": {
		Config: StressConfig{Workers: 1, Handles: 1, Ops: -1},
		Error:  "ops cannot be negative, got -1",
	},
}

func TestRunStressInvalidConfig(t *testing.T) {
	for name, testCase := range invalidConfigTestCases {
		t.Run(name, func(t *testing.T) {
			tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})

			report, err := RunStress(context.Background(), nil, tracker, testCase.Config)
			require.Nil(t, report)
			require.EqualError(t, err, testCase.Error)
			require.Zero(t, tracker.Statistics().AllocationCount)
		})
	}
}

func TestStressPayloadIntact(t *testing.T) {
	payload := newStressPayload(5)
	require.True(t, payload.intact())

	var destroyed stressPayload
	require.False(t, destroyed.intact())

	payload.root = 6
	require.False(t, payload.intact())
}

func TestReportString(t *testing.T) {
	const seed int64 = 1760870000123456789

	tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})
	report, err := RunStress(context.Background(), nil, tracker, StressConfig{
		Workers: 2,
		Handles: 1,
		Ops:     100,
		Seed:    seed,
	})
	require.NoError(t, err)

	reader := jreader.NewReader([]byte(report.ReportString(4096)))
	var workers, allocations, clones, rss int
	var seedText string
	var failed bool
	for obj := reader.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "Config":
			for config := reader.Object(); config.Next(); {
				switch string(config.Name()) {
				case "Workers":
					workers = reader.Int()
				case "Seed":
					seedText = reader.String()
				default:
					reader.SkipValue()
				}
			}
		case "Operations":
			for ops := reader.Object(); ops.Next(); {
				if string(ops.Name()) == "Clones" {
					clones = reader.Int()
				} else {
					reader.SkipValue()
				}
			}
		case "Statistics":
			for stats := reader.Object(); stats.Next(); {
				if string(stats.Name()) == "AllocationCount" {
					allocations = reader.Int()
				} else {
					reader.SkipValue()
				}
			}
		case "ResidentBytes":
			rss = reader.Int()
		case "Failed":
			failed = reader.Bool()
		default:
			reader.SkipValue()
		}
	}
	require.NoError(t, reader.Error())

	parsedSeed, err := strconv.ParseInt(seedText, 10, 64)
	require.NoError(t, err)
	require.Equal(t, seed, parsedSeed)

	require.Equal(t, 2, workers)
	require.Equal(t, 1, allocations)
	require.Equal(t, int(report.Counters.Clones.Load()), clones)
	require.Equal(t, 4096, rss)
	require.False(t, failed)
}

// panickingContext panics the first time a task checks it for cancellation
type panickingContext struct {
	context.Context
}

func (panickingContext) Err() error {
	panic("context exploded")
}

func TestRunStressTaskPanics(t *testing.T) {
	const workers = 4

	tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})
	report, err := RunStress(panickingContext{Context: context.Background()}, nil, tracker, StressConfig{
		Workers: workers,
		Handles: 2,
		Ops:     10,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked: context exploded")

	// Every task's error is collected, and handles are released despite the panic
	require.NotNil(t, report)
	require.NoError(t, report.LeakErr)
	require.True(t, report.Statistics.Balanced())
	require.Equal(t, int64(workers*2), report.Counters.Drops.Load())

	// Combined errors only show the first message; the verbose form lists every task's
	verbose := fmt.Sprintf("%+v", err)
	for i := 0; i < workers; i++ {
		require.Contains(t, verbose, "stress task "+strconv.Itoa(i)+" panicked")
	}
}

func TestLogReport(t *testing.T) {
	tracker := memutils.NewTracker(nil, memutils.TrackerOptions{})
	report, err := RunStress(context.Background(), nil, tracker, StressConfig{
		Workers: 1,
		Handles: 1,
		Ops:     10,
	})
	require.NoError(t, err)

	var buffer bytes.Buffer
	report.LogReport(slog.New(slog.NewTextHandler(&buffer)), 0)

	line := buffer.String()
	require.True(t, strings.HasPrefix(line, "time="))
	require.Contains(t, line, "level=INFO")
	require.Contains(t, line, `msg="stress run complete"`)
	require.Contains(t, line, "allocations=1")
	require.Contains(t, line, "liveBlocks=0")
	require.NotContains(t, line, "residentBytes")
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	level, err = parseLevel("warning")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = parseLevel("loud")
	require.EqualError(t, err, `unknown log level "loud"`)
}

func TestRootCommandFailsOnBadFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--workers", "0", "--log-level", "error"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.EqualError(t, err, "workers must be at least 1, got 0")
}

func TestRootCommandJSON(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--workers", "2", "--handles", "2", "--ops", "50", "--seed", "3", "--json", "--log-level", "error"})

	require.NoError(t, cmd.Execute())
}
