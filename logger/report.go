package logger

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

type levelCount struct {
	warns  int64
	errors int64
}

type flowStat struct {
	messages int64
	bytes    int64
}

var (
	levelCounts sync.Map // component -> *levelCount
	flows       sync.Map // name -> *flowStat
)

// countingHook tallies warnings and errors per component for the runtime report.
type countingHook struct{}

func (h *countingHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *countingHook) Fire(entry *logrus.Entry) error {
	component, _ := entry.Data["component"].(string)
	if component == "" {
		component = "unknown"
	}
	v, _ := levelCounts.LoadOrStore(component, &levelCount{})
	lc := v.(*levelCount)
	if entry.Level == logrus.WarnLevel {
		atomic.AddInt64(&lc.warns, 1)
	} else {
		atomic.AddInt64(&lc.errors, 1)
	}
	return nil
}

// RecordFlow counts one message of size bytes on a named flow (e.g. a source or sink).
func RecordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport logs a runtime report every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	fields := Fields{"goroutines": runtime.NumGoroutine()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		fields["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields["host_memory_used_percent"] = vm.UsedPercent
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			fields["rss_mb"] = int64(info.RSS) / 1024 / 1024
		}
	}

	levels := map[string]map[string]int64{}
	levelCounts.Range(func(k, v any) bool {
		lc := v.(*levelCount)
		levels[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&lc.warns),
			"errors": atomic.LoadInt64(&lc.errors),
		}
		return true
	})
	fields["log_levels"] = levels

	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		fs := v.(*flowStat)
		flowData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})
	fields["flows"] = flowData

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
