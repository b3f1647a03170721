// Package observability aggregates technical events into counters for the debug endpoint.
package observability

import (
	"citychat/domain/event"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/process"
)

// Stats is the snapshot served on /debug/stats.
type Stats struct {
	Rooms             int     `json:"rooms"`
	Connections       int     `json:"connections"`
	MessagesSent      uint64  `json:"messages_sent"`
	PersistenceFailed uint64  `json:"persistence_failed"`
	DeliveryFailed    uint64  `json:"delivery_failed"`
	WorkerRestarts    uint64  `json:"worker_restarts"`
	Goroutines        int     `json:"goroutines"`
	RamBytes          uint64  `json:"ram_bytes"`
	CpuPercent        float64 `json:"cpu_percent"`
}

// DirectoryStats reports the live size of the room directory.
type DirectoryStats func() (rooms, connections int)

// Monitoring implements contract.ITelemetry by running every event through
// the handler chain. It is safe for concurrent use.
type Monitoring struct {
	log       *slog.Logger
	counter   *event.Counter
	handlers  []event.Handler
	directory DirectoryStats
}

func NewMonitoring(log *slog.Logger) *Monitoring {
	counter := event.NewCounter()
	return &Monitoring{
		log:     log,
		counter: counter,
		handlers: []event.Handler{
			event.NewMessageSentHandler(log, counter),
			event.NewFailureHandler(log, counter),
			event.NewWorkerRestartedAfterPanicHandler(log, counter),
		},
	}
}

// WithDirectory plugs the room directory size into the snapshot.
func (m *Monitoring) WithDirectory(directory DirectoryStats) *Monitoring {
	m.directory = directory
	return m
}

func (m *Monitoring) Record(e event.Event) {
	for _, h := range m.handlers {
		h.Handle(e)
	}
}

func (m *Monitoring) Count(t event.Type) uint64 {
	return m.counter.Get(t)
}

// Snapshot collects counters, directory size and process metrics.
// Process metrics are best-effort: a failure leaves them at zero.
func (m *Monitoring) Snapshot() Stats {
	stats := Stats{
		MessagesSent:      m.counter.Get(event.MessageSentType),
		PersistenceFailed: m.counter.Get(event.PersistenceFailedType),
		DeliveryFailed:    m.counter.Get(event.DeliveryFailedType),
		WorkerRestarts:    m.counter.Get(event.RestartedAfterPanicType),
		Goroutines:        runtime.NumGoroutine(),
	}
	if m.directory != nil {
		stats.Rooms, stats.Connections = m.directory()
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Debug("Failed to read process", "error", err)
		return stats
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		stats.RamBytes = memInfo.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CpuPercent = cpu
	}
	return stats
}
