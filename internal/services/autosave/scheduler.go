package autosave

import (
	"context"
	"fmt"
	"sync"

	"liftops/internal/domain/model"
)

// DefaultThreshold 是触发自动保存的未保存变更数。
const DefaultThreshold = 5

// Source 提供答案快照与累计变更数（由会话答案状态实现）。
type Source interface {
	Snapshot() []model.ChecklistAnswer
	Mutations() int
}

// Flusher 将整份答案快照落库（由 sqlite store 实现）。
type Flusher interface {
	UpsertAnswers(ctx context.Context, checklistID string, answers []model.ChecklistAnswer) error
}

// Scheduler 按变更计数调度自动保存。
// 每次落库都写整份快照，不做增量 diff：快照幂等 upsert，
// 重放和交错 flush 都收敛到最后一次快照。
type Scheduler struct {
	checklistID string
	threshold   int
	source      Source
	flusher     Flusher

	mu      sync.Mutex
	cond    *sync.Cond
	flushed int // 最近一次成功落库时的变更计数
	saving  bool
}

func NewScheduler(checklistID string, threshold int, source Source, flusher Flusher) *Scheduler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	s := &Scheduler{
		checklistID: checklistID,
		threshold:   threshold,
		source:      source,
		flusher:     flusher,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// MaybeFlush 在每次变更后调用；未保存变更数达到阈值时落库。
// 返回是否执行了落库。失败时不推进已保存计数，
// 下一次变更会再次触发重试（整份快照重写，丢失上限为一个阈值窗口）。
func (s *Scheduler) MaybeFlush(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.source.Mutations()-s.flushed < s.threshold {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Flush 立即将当前快照整份落库（完成校验前、会话收尾时调用）。
// 已有 flush 在途时等待其结束；等待期间又进了新变更则继续追加落库。
// 正常返回时，调用之前发生的全部变更均已持久化。
func (s *Scheduler) Flush(ctx context.Context) error {
	for first := true; ; first = false {
		s.mu.Lock()
		for s.saving {
			s.cond.Wait()
		}
		if !first && s.source.Mutations() <= s.flushed {
			s.mu.Unlock()
			return nil
		}
		s.saving = true
		s.mu.Unlock()

		// 先取计数再取快照：快照至少覆盖到该计数的全部变更，
		// flush 期间新进的变更留给下一轮。
		mark := s.source.Mutations()
		snapshot := s.source.Snapshot()
		err := s.flusher.UpsertAnswers(ctx, s.checklistID, snapshot)

		s.mu.Lock()
		s.saving = false
		if err == nil && mark > s.flushed {
			s.flushed = mark
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		if err != nil {
			return fmt.Errorf("autosave flush: %w", err)
		}
	}
}

// Saving 返回当前是否正在落库（UI 保存指示器用）。
func (s *Scheduler) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// Pending 返回未保存的变更数。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.source.Mutations() - s.flushed
	if n < 0 {
		n = 0
	}
	return n
}
