package agent

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/sit-kite/kite-server/internal/protocol"
)

// statsSampler reports the agent's own resource usage inside ping and
// agent-info responses, giving the host basic observability over its
// workers.
type statsSampler struct {
	proc *process.Process
}

func newStatsSampler() *statsSampler {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &statsSampler{}
	}
	return &statsSampler{proc: p}
}

func (s *statsSampler) sample(ctx context.Context) protocol.AgentStats {
	stats := protocol.AgentStats{Goroutines: runtime.NumGoroutine()}
	if s.proc == nil {
		return stats
	}
	if cpu, err := s.proc.PercentWithContext(ctx, 0); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := s.proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	return stats
}
