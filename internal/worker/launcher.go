package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/me/ossim/pkg/model"
)

// LauncherConfig controls how new workers are drawn.
type LauncherConfig struct {
	Policy      Policy
	MaxLifetime time.Duration // upper bound of the per-worker lifetime draw
	Seed        int64         // zero selects a time-based seed
}

// InProcessLauncher starts each worker as a goroutine. Ids are assigned
// sequentially from 1.
type InProcessLauncher struct {
	config  LauncherConfig
	clock   Clock
	mailbox Mailbox
	logger  *slog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	next model.ProcessID
	live map[model.ProcessID]context.CancelFunc
	wg   sync.WaitGroup
}

// NewInProcessLauncher validates cfg and returns a launcher.
func NewInProcessLauncher(cfg LauncherConfig, clk Clock, mb Mailbox, logger *slog.Logger) (*InProcessLauncher, error) {
	if clk == nil || mb == nil {
		return nil, fmt.Errorf("launcher needs a clock and a mailbox")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxLifetime <= 0 {
		return nil, fmt.Errorf("max lifetime must be positive, got %s", cfg.MaxLifetime)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &InProcessLauncher{
		config:  cfg,
		clock:   clk,
		mailbox: mb,
		logger:  logger.With("component", "launcher"),
		rng:     rand.New(rand.NewSource(seed)),
		next:    1,
		live:    make(map[model.ProcessID]context.CancelFunc),
	}, nil
}

// Launch draws a new worker's category and lifetime and starts it. The
// worker is ready to receive a grant when Launch returns its id.
func (l *InProcessLauncher) Launch(ctx context.Context) (model.ProcessID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	id := l.next
	l.next++
	cfg := Config{
		ID:       id,
		Outcome:  l.config.Policy.Draw(l.rng),
		Start:    l.clock.Now(),
		Lifetime: time.Duration(l.rng.Int63n(int64(l.config.MaxLifetime))) + 1,
	}
	wctx, cancel := context.WithCancel(ctx)
	l.live[id] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	w := New(cfg, l.clock, l.mailbox, l.logger)
	go func() {
		defer l.wg.Done()
		defer l.forget(id)
		if err := w.Run(wctx); err != nil && wctx.Err() == nil {
			l.logger.Warn("worker exited", "pid", id, "error", err)
		}
	}()

	l.logger.Debug("worker launched", "pid", id, "outcome", cfg.Outcome, "lifetime", cfg.Lifetime)
	return id, nil
}

func (l *InProcessLauncher) forget(id model.ProcessID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.live[id]; ok {
		cancel()
		delete(l.live, id)
	}
}

// Kill stops one worker. Unknown ids are ignored.
func (l *InProcessLauncher) Kill(id model.ProcessID) {
	l.forget(id)
}

// KillAll stops every running worker.
func (l *InProcessLauncher) KillAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, cancel := range l.live {
		cancel()
		delete(l.live, id)
	}
}

// Wait blocks until every launched worker goroutine has returned.
func (l *InProcessLauncher) Wait() {
	l.wg.Wait()
}

// Live returns the number of workers still running.
func (l *InProcessLauncher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
