package completion

import (
	"strings"

	"liftops/internal/domain/model"
)

// Blocker 描述一条阻止关单的答案及原因。
type Blocker struct {
	Ordinal int    `json:"ordinal"`
	Reason  string `json:"reason"`
}

// Result 是一次完成校验的结论。
type Result struct {
	CanComplete bool      `json:"can_complete"`
	Blockers    []Blocker `json:"blockers"`
}

// Evaluate 校验关单条件：
//   - 本月题集内每题都已作答（非 pending）；
//   - rejected 答案必须有非空白观察说明与至少第一张照片。
//
// Blockers 按 ordinal 升序（与输入题集顺序一致），UI 可直接定位到首个未决项。
func Evaluate(questions []model.ChecklistQuestion, get func(ordinal int) (model.ChecklistAnswer, bool)) Result {
	var blockers []Blocker
	for _, q := range questions {
		a, ok := get(q.Ordinal)
		if !ok || a.Status == model.AnswerPending {
			blockers = append(blockers, Blocker{Ordinal: q.Ordinal, Reason: "unanswered"})
			continue
		}
		if a.Status != model.AnswerRejected {
			continue
		}
		if strings.TrimSpace(a.Observation) == "" {
			blockers = append(blockers, Blocker{Ordinal: q.Ordinal, Reason: "rejected without observation"})
			continue
		}
		if strings.TrimSpace(a.PhotoRef1) == "" {
			blockers = append(blockers, Blocker{Ordinal: q.Ordinal, Reason: "rejected without photo"})
		}
	}
	return Result{CanComplete: len(blockers) == 0, Blockers: blockers}
}
