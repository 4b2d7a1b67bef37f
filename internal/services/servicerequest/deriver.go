package servicerequest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"liftops/internal/domain/model"
	"liftops/internal/platform/id"
)

// Inserter 落库单条派生维修工单（由 sqlite store 实现）。
type Inserter interface {
	InsertServiceRequest(ctx context.Context, req model.DerivedServiceRequest) error
}

// Deriver 把被拒答案转换为维修工单。
type Deriver struct {
	inserter Inserter
}

func NewDeriver(inserter Inserter) *Deriver {
	return &Deriver{inserter: inserter}
}

// Result 是一次派生的结果。单条失败不影响其余条目，
// 失败详情在 Warnings 中逐条给出。
type Result struct {
	Created  []model.DerivedServiceRequest
	Warnings []string
}

// Derive 为一张保养单派生维修工单：
//   - 每条 rejected 且观察说明非空白的答案生成一条工单；
//   - 题目位于高危区段（isCritical 判定）时标记 critical；
//   - 照片引用原样携带；
//   - 不做跨保养单去重，上月同一问题再次被拒会再生成一条。
//
// 签名收尾时每张保养单恰好调用一次。
func (d *Deriver) Derive(ctx context.Context, cl model.Checklist, questions []model.ChecklistQuestion, answers []model.ChecklistAnswer, isCritical func(section string) bool) Result {
	sections := make(map[int]string, len(questions))
	for _, q := range questions {
		sections[q.Ordinal] = q.Section
	}

	var res Result
	now := time.Now().Unix()
	for _, a := range answers {
		if a.Status != model.AnswerRejected {
			continue
		}
		observation := strings.TrimSpace(a.Observation)
		if observation == "" {
			continue
		}

		section := sections[a.Ordinal]
		req := model.DerivedServiceRequest{
			ID:           id.New("req"),
			ChecklistID:  cl.ID,
			EquipmentID:  cl.EquipmentID,
			ClientID:     cl.ClientID,
			TechnicianID: cl.TechnicianID,
			Ordinal:      a.Ordinal,
			Section:      section,
			Description:  observation,
			Critical:     isCritical != nil && isCritical(section),
			PhotoRef1:    a.PhotoRef1,
			PhotoRef2:    a.PhotoRef2,
			CreatedAt:    now,
		}

		if err := d.inserter.InsertServiceRequest(ctx, req); err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("service request ordinal %d: %v", a.Ordinal, err))
			continue
		}
		res.Created = append(res.Created, req)
	}
	return res
}
