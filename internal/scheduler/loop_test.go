package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/mailbox"
	"github.com/me/ossim/internal/proctable"
	"github.com/me/ossim/pkg/model"
)

// --- Test helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLauncher starts responders that report a scripted outcome sequence.
// The last outcome of a script repeats.
type fakeLauncher struct {
	clock   *clock.Clock
	mailbox *mailbox.Mailbox
	scripts [][]model.Outcome
	onGrant func(ctx context.Context, grant model.Message) bool // true skips the normal reply
	err     error

	mu        sync.Mutex
	launched  int
	cancels   map[model.ProcessID]context.CancelFunc
	killedAll bool
	wg        sync.WaitGroup
}

func (f *fakeLauncher) Launch(ctx context.Context) (model.ProcessID, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	i := f.launched
	f.launched++
	id := model.ProcessID(i + 1)
	outcomes := f.scripts[i%len(f.scripts)]
	wctx, cancel := context.WithCancel(context.Background())
	f.cancels[id] = cancel
	f.wg.Add(1)
	f.mu.Unlock()

	go f.respond(wctx, id, outcomes)
	return id, nil
}

func (f *fakeLauncher) respond(ctx context.Context, id model.ProcessID, outcomes []model.Outcome) {
	defer f.wg.Done()
	for n := 0; ; n++ {
		grant, err := f.mailbox.Receive(ctx, id)
		if err != nil {
			return
		}
		if f.onGrant != nil && f.onGrant(ctx, grant) {
			return
		}
		if _, err := f.clock.WaitUntil(ctx, grant.IssuedAt.Add(grant.Quantum)); err != nil {
			return
		}
		outcome := outcomes[min(n, len(outcomes)-1)]
		if err := f.mailbox.Send(ctx, model.NewReport(id, outcome)); err != nil {
			return
		}
		if outcome == model.OutcomeTerminate {
			return
		}
	}
}

func (f *fakeLauncher) Kill(id model.ProcessID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cancel, ok := f.cancels[id]; ok {
		cancel()
	}
}

func (f *fakeLauncher) KillAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cancel := range f.cancels {
		cancel()
	}
	f.killedAll = true
}

func (f *fakeLauncher) Wait() { f.wg.Wait() }

// recordingSink keeps every event in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingSink) Emit(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) ofKind(kind model.EventKind) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	loop     *Loop
	clock    *clock.Clock
	mailbox  *mailbox.Mailbox
	launcher *fakeLauncher
	events   *recordingSink
}

func newTestEnv(t *testing.T, cfg Config, tableSize int, scripts ...[]model.Outcome) *testEnv {
	t.Helper()
	clk, mb := clock.New(), mailbox.New()
	fl := &fakeLauncher{
		clock:   clk,
		mailbox: mb,
		scripts: scripts,
		cancels: make(map[model.ProcessID]context.CancelFunc),
	}
	rec := &recordingSink{}
	loop, err := NewLoop(Resources{
		RunID:    "run_test",
		Clock:    clk,
		Table:    proctable.New(tableSize),
		Mailbox:  mb,
		Launcher: fl,
		Sink:     rec,
	}, cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	t.Cleanup(loop.release)
	return &testEnv{loop: loop, clock: clk, mailbox: mb, launcher: fl, events: rec}
}

func (e *testEnv) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := e.loop.checkPlacement(); err != nil {
		t.Fatalf("after tick: %v", err)
	}
}

func jobs(n int, cfg Config) Config {
	cfg.TotalJobs = n
	return cfg
}

func ms(n int) model.SimTime { return model.SimTimeOf(time.Duration(n) * time.Millisecond) }

func script(outcomes ...model.Outcome) []model.Outcome { return outcomes }

var (
	cont = model.OutcomeContinue
	blk  = model.OutcomeBlock
	term = model.OutcomeTerminate
)

// --- Scenarios ---

func TestTick_TerminateReleasesSlot(t *testing.T) {
	cfg := jobs(1, DefaultConfig())
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(term))

	before := env.clock.Now()
	env.tick(t)

	if got := env.clock.Now().Sub(before); got != cfg.RoundIncrement {
		t.Errorf("clock advanced %v, want %v", got, cfg.RoundIncrement)
	}
	if _, ok := env.loop.table.Lookup(1); ok {
		t.Error("terminated process still has a slot")
	}
	if got := env.loop.table.Snapshot()[0]; got != (model.PCB{}) {
		t.Errorf("slot 0 not reset: %+v", got)
	}
	if _, ok := env.loop.ready.Contains(1); ok || env.loop.blocked.Contains(1) {
		t.Error("terminated process still queued")
	}
	if !env.loop.Done() {
		t.Error("Done() = false after the only job terminated")
	}
	if st := env.loop.Stats(); st.Admitted != 1 || st.Terminated != 1 || st.Dispatches != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestTick_ContinueDemotes(t *testing.T) {
	cfg := jobs(1, DefaultConfig())
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont))

	wantLevels := []int{1, 2, 2}
	for i, want := range wantLevels {
		env.tick(t)
		level, ok := env.loop.ready.Contains(1)
		if !ok || level != want {
			t.Errorf("after tick %d level = %d (queued %v), want %d", i+1, level, ok, want)
		}
	}

	pcb, _ := env.loop.table.Lookup(1)
	if want := 10*time.Millisecond + 20*time.Millisecond + 40*time.Millisecond; pcb.Service != want {
		t.Errorf("service = %v, want %v", pcb.Service, want)
	}
	if pcb.Level != 2 || pcb.State != model.ProcessStateReady {
		t.Errorf("pcb = %+v", pcb)
	}

	var quanta []time.Duration
	for _, ev := range env.events.ofKind(model.EventDispatched) {
		quanta = append(quanta, ev.Quantum)
	}
	if fmt.Sprint(quanta) != "[10ms 20ms 40ms]" {
		t.Errorf("granted quanta = %v", quanta)
	}
}

func TestTick_BlockWakesAtLevelZero(t *testing.T) {
	cfg := jobs(1, DefaultConfig())
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont, blk, cont))

	env.tick(t) // level 0 -> 1
	env.tick(t) // blocks at level 1, clock 200ms

	pcb, _ := env.loop.table.Lookup(1)
	if !pcb.Blocked || !env.loop.blocked.Contains(1) {
		t.Fatalf("process not blocked: %+v", pcb)
	}
	if pcb.Wake != ms(450) {
		t.Errorf("wake = %v, want %v", pcb.Wake, ms(450))
	}

	for i := 0; i < 3; i++ {
		env.tick(t) // idle
	}
	if env.clock.Now() != ms(500) {
		t.Fatalf("clock = %v, want 500ms", env.clock.Now())
	}
	if got := len(env.events.ofKind(model.EventIdle)); got != 3 {
		t.Errorf("idle ticks = %d, want 3", got)
	}

	env.tick(t)
	woken := env.events.ofKind(model.EventWoken)
	if len(woken) != 1 || woken[0].PID != 1 {
		t.Fatalf("woken = %+v", woken)
	}
	dispatched := env.events.ofKind(model.EventDispatched)
	last := dispatched[len(dispatched)-1]
	if last.Level != 0 || last.Quantum != 10*time.Millisecond {
		t.Errorf("dispatch after wake = level %d quantum %v, want level 0", last.Level, last.Quantum)
	}
}

func TestTick_StrictPriorityAcrossAdmissions(t *testing.T) {
	cfg := jobs(2, DefaultConfig())
	cfg.AdmitInterval = 200 * time.Millisecond
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont))

	for i := 0; i < 5; i++ {
		env.tick(t)
	}

	var order []string
	for _, ev := range env.events.ofKind(model.EventDispatched) {
		order = append(order, fmt.Sprintf("%d@%d", ev.PID, ev.Level))
	}
	if got, want := fmt.Sprint(order), "[1@0 1@1 2@0 2@1 1@2]"; got != want {
		t.Errorf("dispatch order = %s, want %s", got, want)
	}
}

func TestTick_FIFOWithinLevel(t *testing.T) {
	cfg := jobs(3, DefaultConfig())
	cfg.AdmitInterval = 0
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont))

	for i := 0; i < 9; i++ {
		env.tick(t)
	}

	var order []string
	for _, ev := range env.events.ofKind(model.EventDispatched) {
		order = append(order, fmt.Sprintf("%d@%d", ev.PID, ev.Level))
	}
	want := "[1@0 2@0 3@0 1@1 2@1 3@1 1@2 2@2 3@2]"
	if got := fmt.Sprint(order); got != want {
		t.Errorf("dispatch order = %s, want %s", got, want)
	}
}

func TestRun_LifecycleAndSlotReuse(t *testing.T) {
	cfg := jobs(4, DefaultConfig())
	cfg.MaxConcurrent = 2
	cfg.AdmitInterval = 0
	env := newTestEnv(t, cfg, 2, script(cont, term), script(term))

	if err := env.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var slots []string
	for _, ev := range env.events.ofKind(model.EventAdmitted) {
		slots = append(slots, ev.Detail)
	}
	if got, want := fmt.Sprint(slots), "[slot=0 slot=1 slot=1 slot=0]"; got != want {
		t.Errorf("admission slots = %s, want %s", got, want)
	}

	st := env.loop.Stats()
	if st.Admitted != 4 || st.Terminated != 4 {
		t.Errorf("stats = %+v", st)
	}
	if env.loop.table.Live() != 0 {
		t.Errorf("live = %d after run", env.loop.table.Live())
	}
	if len(env.events.ofKind(model.EventTerminated)) != 4 {
		t.Error("every admitted job must terminate")
	}
	snaps := env.events.ofKind(model.EventSnapshot)
	if len(snaps) == 0 || snaps[len(snaps)-1].Snapshot == nil {
		t.Error("missing final snapshot")
	}
	if !env.mailbox.Closed() || !env.clock.Closed() {
		t.Error("resources not released after completion")
	}
}

func TestRun_PeriodicSnapshots(t *testing.T) {
	cfg := jobs(1, DefaultConfig())
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont, cont, cont, cont, cont, cont, term))

	if err := env.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snaps := env.events.ofKind(model.EventSnapshot)
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want periodic + final", len(snaps))
	}
	if snaps[0].Clock != ms(500) {
		t.Errorf("periodic snapshot at %v, want 500ms", snaps[0].Clock)
	}
	if q := snaps[0].Snapshot.Queues[2]; len(q) != 1 || q[0] != 1 {
		t.Errorf("snapshot queues = %v", snaps[0].Snapshot.Queues)
	}
	if snaps[1].Clock != ms(700) {
		t.Errorf("final snapshot at %v, want 700ms", snaps[1].Clock)
	}
}

func TestRun_TimeoutTearsDown(t *testing.T) {
	cfg := jobs(3, DefaultConfig())
	cfg.Timeout = 50 * time.Millisecond
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont))
	env.launcher.onGrant = func(ctx context.Context, _ model.Message) bool {
		<-ctx.Done() // never reply
		return true
	}

	start := time.Now()
	err := env.loop.Run(context.Background())
	if model.KindOf(err) != model.KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if !env.launcher.killedAll {
		t.Error("workers not killed")
	}
	if !env.mailbox.Closed() || !env.clock.Closed() {
		t.Error("channel or clock not released")
	}
}

func TestRun_CommunicationFailure(t *testing.T) {
	cfg := jobs(1, DefaultConfig())
	env := newTestEnv(t, cfg, proctable.DefaultCapacity, script(cont))
	env.launcher.onGrant = func(context.Context, model.Message) bool {
		env.mailbox.Close()
		return true
	}

	err := env.loop.Run(context.Background())
	if model.KindOf(err) != model.KindCommunication {
		t.Fatalf("err = %v, want communication error", err)
	}
	if !errors.Is(err, mailbox.ErrClosed) {
		t.Errorf("cause lost: %v", err)
	}
	if !env.launcher.killedAll || !env.clock.Closed() {
		t.Error("teardown incomplete")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	env := newTestEnv(t, jobs(1, DefaultConfig()), proctable.DefaultCapacity, script(cont))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.loop.Run(ctx)
	if model.KindOf(err) != model.KindTimeout {
		t.Fatalf("err = %v, want timeout kind", err)
	}
	if env.loop.Stats().Admitted != 0 {
		t.Error("nothing should be admitted after cancellation")
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	env := newTestEnv(t, jobs(1, DefaultConfig()), proctable.DefaultCapacity, script(cont))
	env.launcher.err = errors.New("fork: resource temporarily unavailable")

	err := env.loop.Run(context.Background())
	if model.KindOf(err) != model.KindResource {
		t.Fatalf("err = %v, want resource error", err)
	}
}

func TestNewLoop_Resources(t *testing.T) {
	closedClock := clock.New()
	closedClock.Close()
	closedMailbox := mailbox.New()
	closedMailbox.Close()
	fl := &fakeLauncher{cancels: map[model.ProcessID]context.CancelFunc{}}

	tests := []struct {
		name string
		res  Resources
	}{
		{"no clock", Resources{Mailbox: mailbox.New(), Launcher: fl}},
		{"closed clock", Resources{Clock: closedClock, Mailbox: mailbox.New(), Launcher: fl}},
		{"closed mailbox", Resources{Clock: clock.New(), Mailbox: closedMailbox, Launcher: fl}},
		{"no launcher", Resources{Clock: clock.New(), Mailbox: mailbox.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoop(tt.res, DefaultConfig(), discardLogger())
			if model.KindOf(err) != model.KindResource {
				t.Errorf("err = %v, want resource error", err)
			}
		})
	}
}

func TestNewLoop_InvalidConfig(t *testing.T) {
	res := Resources{
		Clock:    clock.New(),
		Mailbox:  mailbox.New(),
		Launcher: &fakeLauncher{},
		Table:    proctable.New(2),
	}

	quantumTooLong := DefaultConfig()
	quantumTooLong.Quanta[2] = 200 * time.Millisecond
	tooConcurrent := DefaultConfig()
	tooConcurrent.MaxConcurrent = 3

	for name, cfg := range map[string]Config{"quantum": quantumTooLong, "concurrency": tooConcurrent} {
		if _, err := NewLoop(res, cfg, discardLogger()); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

// --- Event order against a mocked sink ---

type kindMatcher model.EventKind

func (k kindMatcher) Matches(x any) bool {
	ev, ok := x.(model.Event)
	return ok && ev.Kind == model.EventKind(k)
}

func (k kindMatcher) String() string { return "event of kind " + string(k) }

func TestRun_EventOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockSink(ctrl)

	anyCtx := gomock.Any()
	gomock.InOrder(
		mock.EXPECT().Emit(anyCtx, kindMatcher(model.EventAdmitted)).Return(nil),
		mock.EXPECT().Emit(anyCtx, kindMatcher(model.EventDispatched)).Return(nil),
		mock.EXPECT().Emit(anyCtx, kindMatcher(model.EventReported)).Return(nil),
		mock.EXPECT().Emit(anyCtx, kindMatcher(model.EventTerminated)).Return(nil),
		mock.EXPECT().Emit(anyCtx, kindMatcher(model.EventSnapshot)).Return(nil),
	)

	clk, mb := clock.New(), mailbox.New()
	fl := &fakeLauncher{clock: clk, mailbox: mb, scripts: [][]model.Outcome{script(term)}, cancels: map[model.ProcessID]context.CancelFunc{}}
	loop, err := NewLoop(Resources{RunID: "run_mock", Clock: clk, Mailbox: mb, Launcher: fl, Sink: mock}, jobs(1, DefaultConfig()), discardLogger())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_SinkFailureDoesNotStopRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockSink(ctrl)
	mock.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).AnyTimes()

	clk, mb := clock.New(), mailbox.New()
	fl := &fakeLauncher{clock: clk, mailbox: mb, scripts: [][]model.Outcome{script(cont, term)}, cancels: map[model.ProcessID]context.CancelFunc{}}
	loop, err := NewLoop(Resources{Clock: clk, Mailbox: mb, Launcher: fl, Sink: mock}, jobs(2, DefaultConfig()), discardLogger())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := loop.Stats(); st.Terminated != 2 {
		t.Errorf("terminated = %d, want 2", st.Terminated)
	}
}
