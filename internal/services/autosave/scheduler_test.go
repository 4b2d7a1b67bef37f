package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"

	"liftops/internal/domain/model"
)

type fakeSource struct {
	mutations int
	snapshot  []model.ChecklistAnswer
}

func (f *fakeSource) Snapshot() []model.ChecklistAnswer { return f.snapshot }
func (f *fakeSource) Mutations() int                    { return f.mutations }

type fakeFlusher struct {
	calls int
	fail  bool
	last  []model.ChecklistAnswer
}

func (f *fakeFlusher) UpsertAnswers(_ context.Context, _ string, answers []model.ChecklistAnswer) error {
	f.calls++
	if f.fail {
		return errors.New("disk full")
	}
	f.last = answers
	return nil
}

func TestMaybeFlush_BelowThresholdDoesNothing(t *testing.T) {
	source := &fakeSource{mutations: 4}
	flusher := &fakeFlusher{}
	sched := NewScheduler("chk_1", 5, source, flusher)

	did, err := sched.MaybeFlush(context.Background())
	if err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}
	if did || flusher.calls != 0 {
		t.Fatalf("did=%v calls=%d want no flush", did, flusher.calls)
	}
	if sched.Pending() != 4 {
		t.Fatalf("pending=%d want 4", sched.Pending())
	}
}

func TestMaybeFlush_AtThresholdFlushesSnapshot(t *testing.T) {
	source := &fakeSource{
		mutations: 5,
		snapshot: []model.ChecklistAnswer{
			{Ordinal: 1, Status: model.AnswerApproved},
			{Ordinal: 2, Status: model.AnswerRejected, Observation: "fuga"},
		},
	}
	flusher := &fakeFlusher{}
	sched := NewScheduler("chk_1", 5, source, flusher)

	did, err := sched.MaybeFlush(context.Background())
	if err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}
	if !did || flusher.calls != 1 {
		t.Fatalf("did=%v calls=%d want one flush", did, flusher.calls)
	}
	if len(flusher.last) != 2 {
		t.Fatalf("flushed %d answers want 2", len(flusher.last))
	}
	if sched.Pending() != 0 {
		t.Fatalf("pending=%d want 0 after flush", sched.Pending())
	}
}

func TestMaybeFlush_FailureKeepsCounter(t *testing.T) {
	source := &fakeSource{mutations: 5}
	flusher := &fakeFlusher{fail: true}
	sched := NewScheduler("chk_1", 5, source, flusher)

	if _, err := sched.MaybeFlush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}
	if sched.Pending() != 5 {
		t.Fatalf("pending=%d want 5 after failed flush", sched.Pending())
	}

	// 失败后下一次变更再次触发。
	flusher.fail = false
	source.mutations = 6
	did, err := sched.MaybeFlush(context.Background())
	if err != nil {
		t.Fatalf("retry MaybeFlush: %v", err)
	}
	if !did || sched.Pending() != 0 {
		t.Fatalf("did=%v pending=%d want retried flush", did, sched.Pending())
	}
}

type lockedSource struct {
	mu        sync.Mutex
	mutations int
	snapshot  []model.ChecklistAnswer
}

func (f *lockedSource) set(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = n
}

func (f *lockedSource) Snapshot() []model.ChecklistAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ChecklistAnswer{}, f.snapshot...)
}

func (f *lockedSource) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// gateFlusher 的第一次落库会阻塞到 release 关闭，用于制造“flush 在途”窗口。
type gateFlusher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *gateFlusher) UpsertAnswers(_ context.Context, _ string, _ []model.ChecklistAnswer) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == 1 {
		close(f.started)
		<-f.release
	}
	return nil
}

func (f *gateFlusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestFlush_WaitsForInFlightAndCoversNewMutations(t *testing.T) {
	source := &lockedSource{snapshot: []model.ChecklistAnswer{{Ordinal: 1}}}
	source.set(5)
	flusher := &gateFlusher{started: make(chan struct{}), release: make(chan struct{})}
	sched := NewScheduler("chk_1", 5, source, flusher)

	first := make(chan error, 1)
	go func() { first <- sched.Flush(context.Background()) }()
	<-flusher.started

	// flush 在途期间继续作答，然后手动保存。
	source.set(7)
	second := make(chan error, 1)
	go func() { second <- sched.Flush(context.Background()) }()

	close(flusher.release)
	if err := <-first; err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second flush: %v", err)
	}

	// 在途 flush 只覆盖到计数 5；返回前必须有补落库把 6、7 带上。
	if flusher.count() < 2 {
		t.Fatalf("calls=%d want a re-flush covering late mutations", flusher.count())
	}
	if sched.Pending() != 0 {
		t.Fatalf("pending=%d want 0 after explicit flush", sched.Pending())
	}
}

func TestFlush_Explicit(t *testing.T) {
	source := &fakeSource{mutations: 2, snapshot: []model.ChecklistAnswer{{Ordinal: 1}}}
	flusher := &fakeFlusher{}
	sched := NewScheduler("chk_1", 5, source, flusher)

	if err := sched.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if flusher.calls != 1 || sched.Pending() != 0 {
		t.Fatalf("calls=%d pending=%d", flusher.calls, sched.Pending())
	}
}
