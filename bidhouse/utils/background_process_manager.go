package utils

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// BackgroundProcessManager supervises the long-running goroutines of the auction
// service: the expiry sweep, task queue workers and event lanes.
type BackgroundProcessManager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	processes map[string]*process
	mu        sync.RWMutex
}

// ProcessInfo is a snapshot of one supervised process.
type ProcessInfo struct {
	Name        string
	Description string
	StartedAt   time.Time
	Restarts    int64
}

type process struct {
	info     ProcessInfo
	restarts atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewBackgroundProcessManager() *BackgroundProcessManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundProcessManager{
		ctx:       ctx,
		cancel:    cancel,
		processes: make(map[string]*process),
	}
}

// StartProcess runs fn once. A panic ends the process and is logged.
func (bpm *BackgroundProcessManager) StartProcess(name, description string, fn func(ctx context.Context)) {
	bpm.start(name, description, 0, fn)
}

// Supervise runs fn and starts it again after restartDelay whenever it panics.
// A normal return or cancellation ends the process.
func (bpm *BackgroundProcessManager) Supervise(name, description string, restartDelay time.Duration, fn func(ctx context.Context)) {
	if restartDelay <= 0 {
		restartDelay = time.Second
	}
	bpm.start(name, description, restartDelay, fn)
}

func (bpm *BackgroundProcessManager) start(name, description string, restartDelay time.Duration, fn func(ctx context.Context)) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if _, exists := bpm.processes[name]; exists {
		slog.Warn("Process already registered, replacing it",
			slog.String("type", "sys"),
			slog.String("process", name))
		bpm.stopLocked(name)
	}

	ctx, cancel := context.WithCancel(bpm.ctx)
	p := &process{
		info:   ProcessInfo{Name: name, Description: description, StartedAt: time.Now()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	bpm.processes[name] = p

	bpm.wg.Add(1)
	go func() {
		defer bpm.wg.Done()
		defer close(p.done)

		slog.Debug("Starting background process",
			slog.String("type", "sys"),
			slog.String("process", name),
			slog.String("description", description))

		for {
			if !runGuarded(ctx, name, fn) || restartDelay == 0 {
				break
			}
			p.restarts.Add(1)
			select {
			case <-ctx.Done():
			case <-time.After(restartDelay):
				slog.Warn("Restarting background process",
					slog.String("type", "sys"),
					slog.String("process", name),
					slog.Int64("restarts", p.restarts.Load()))
				continue
			}
			break
		}

		slog.Debug("Background process ended",
			slog.String("type", "sys"),
			slog.String("process", name))
	}()
}

// runGuarded reports whether fn panicked.
func runGuarded(ctx context.Context, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			slog.Error("Background process panic",
				slog.String("type", "error"),
				slog.String("process", name),
				slog.Any("panic", r))
		}
	}()
	fn(ctx)
	return false
}

// StopProcess cancels a process and waits for it to return.
func (bpm *BackgroundProcessManager) StopProcess(name string) {
	bpm.mu.Lock()
	p := bpm.processes[name]
	bpm.stopLocked(name)
	bpm.mu.Unlock()

	if p != nil {
		<-p.done
	}
}

func (bpm *BackgroundProcessManager) stopLocked(name string) {
	if p, exists := bpm.processes[name]; exists {
		p.cancel()
		delete(bpm.processes, name)
	}
}

// Shutdown cancels every process and waits up to timeout for them to return.
func (bpm *BackgroundProcessManager) Shutdown(timeout time.Duration) error {
	slog.Info("Shutting down background processes",
		slog.String("type", "sys"),
		slog.Int("process_count", bpm.GetProcessCount()))

	bpm.cancel()

	done := make(chan struct{})
	go func() {
		bpm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for background processes to stop",
			slog.String("type", "sys"),
			slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}

func (bpm *BackgroundProcessManager) GetProcessCount() int {
	bpm.mu.RLock()
	defer bpm.mu.RUnlock()
	return len(bpm.processes)
}

// ListProcesses returns the registered processes ordered by name.
func (bpm *BackgroundProcessManager) ListProcesses() []ProcessInfo {
	bpm.mu.RLock()
	defer bpm.mu.RUnlock()

	out := make([]ProcessInfo, 0, len(bpm.processes))
	for _, p := range bpm.processes {
		info := p.info
		info.Restarts = p.restarts.Load()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
