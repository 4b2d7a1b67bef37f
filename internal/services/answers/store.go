package answers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"liftops/internal/domain/model"
)

// Store 是单张保养单的会话内答案状态。
// 以 ordinal 为键，不存在重复条目；所有读操作返回拷贝。
// 内部自带互斥锁，UI 回调与自动保存 flush 可以并发访问。
type Store struct {
	mu          sync.Mutex
	checklistID string
	byOrdinal   map[int]model.ChecklistAnswer
	mutations   int
}

// NewStore 按问题集合初始化答案状态，每题一条 pending 记录。
// seed 传入已落库的历史答案时会覆盖对应条目（中断恢复）。
func NewStore(checklistID string, questions []model.ChecklistQuestion, seed []model.ChecklistAnswer) *Store {
	byOrdinal := make(map[int]model.ChecklistAnswer, len(questions))
	for _, q := range questions {
		byOrdinal[q.Ordinal] = model.ChecklistAnswer{
			ChecklistID: checklistID,
			Ordinal:     q.Ordinal,
			Status:      model.AnswerPending,
		}
	}
	for _, a := range seed {
		if _, ok := byOrdinal[a.Ordinal]; ok {
			a.ChecklistID = checklistID
			byOrdinal[a.Ordinal] = a
		}
	}
	return &Store{checklistID: checklistID, byOrdinal: byOrdinal}
}

// SetStatus 更新某题的判定状态并返回更新后的答案。
// 离开 rejected 状态时清空观察说明与两个照片引用：
// 整改证据只跟随 rejected 状态存在。
func (s *Store) SetStatus(ordinal int, status model.AnswerStatus) (model.ChecklistAnswer, error) {
	switch status {
	case model.AnswerPending, model.AnswerApproved, model.AnswerRejected, model.AnswerNotApplicable:
	default:
		return model.ChecklistAnswer{}, fmt.Errorf("unknown answer status: %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byOrdinal[ordinal]
	if !ok {
		return model.ChecklistAnswer{}, fmt.Errorf("ordinal %d not in checklist", ordinal)
	}
	if a.Status == model.AnswerRejected && status != model.AnswerRejected {
		a.Observation = ""
		a.PhotoRef1 = ""
		a.PhotoRef2 = ""
	}
	a.Status = status
	a.UpdatedAt = time.Now().Unix()
	s.byOrdinal[ordinal] = a
	s.mutations++
	return a, nil
}

// SetObservation 更新观察说明。仅 rejected 状态允许携带说明。
func (s *Store) SetObservation(ordinal int, observation string) (model.ChecklistAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byOrdinal[ordinal]
	if !ok {
		return model.ChecklistAnswer{}, fmt.Errorf("ordinal %d not in checklist", ordinal)
	}
	if a.Status != model.AnswerRejected {
		return model.ChecklistAnswer{}, fmt.Errorf("ordinal %d: observation requires rejected status", ordinal)
	}
	a.Observation = observation
	a.UpdatedAt = time.Now().Unix()
	s.byOrdinal[ordinal] = a
	s.mutations++
	return a, nil
}

// SetPhotoRef 绑定已确认上传成功的照片引用（slot 1 或 2）。
// 引用只在上传确认后写入，不存在指向不存在文件的占位引用。
func (s *Store) SetPhotoRef(ordinal, slot int, ref string) (model.ChecklistAnswer, error) {
	if slot != 1 && slot != 2 {
		return model.ChecklistAnswer{}, fmt.Errorf("photo slot must be 1 or 2: %d", slot)
	}
	if strings.TrimSpace(ref) == "" {
		return model.ChecklistAnswer{}, fmt.Errorf("ordinal %d: photo ref is empty", ordinal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byOrdinal[ordinal]
	if !ok {
		return model.ChecklistAnswer{}, fmt.Errorf("ordinal %d not in checklist", ordinal)
	}
	if a.Status != model.AnswerRejected {
		return model.ChecklistAnswer{}, fmt.Errorf("ordinal %d: photo requires rejected status", ordinal)
	}
	if slot == 1 {
		a.PhotoRef1 = ref
	} else {
		a.PhotoRef2 = ref
	}
	a.UpdatedAt = time.Now().Unix()
	s.byOrdinal[ordinal] = a
	s.mutations++
	return a, nil
}

// Get 返回某题当前答案的拷贝。
func (s *Store) Get(ordinal int) (model.ChecklistAnswer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byOrdinal[ordinal]
	return a, ok
}

// Snapshot 返回全部答案的拷贝，按 ordinal 升序。
// 自动保存 flush 使用该快照整份落库。
func (s *Store) Snapshot() []model.ChecklistAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ChecklistAnswer, 0, len(s.byOrdinal))
	for _, a := range s.byOrdinal {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Mutations 返回会话内累计变更次数（自动保存阈值判断用）。
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// ChecklistID 返回该答案状态所属的保养单 ID。
func (s *Store) ChecklistID() string {
	return s.checklistID
}
