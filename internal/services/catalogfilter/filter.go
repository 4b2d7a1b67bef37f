package catalogfilter

import (
	"fmt"

	"liftops/internal/domain/model"
)

// EquipmentProfile 是决定题目可见性的设备画像。
type EquipmentProfile struct {
	Hydraulic bool
	Month     int // 1..12
}

// Filter 返回本月该设备必须回答的问题集合：
//   - monthly 任何月份都出现；
//   - quarterly 仅 3/6/9/12 月出现；
//   - semestral 仅 6/12 月出现；
//   - hydraulic_only 仅液压设备出现。
//
// 输入按 ordinal 升序时输出保持升序（过滤不打乱顺序）。
func Filter(questions []model.ChecklistQuestion, profile EquipmentProfile) ([]model.ChecklistQuestion, error) {
	if profile.Month < 1 || profile.Month > 12 {
		return nil, fmt.Errorf("month out of range: %d", profile.Month)
	}

	out := make([]model.ChecklistQuestion, 0, len(questions))
	for _, q := range questions {
		if q.HydraulicOnly && !profile.Hydraulic {
			continue
		}
		if !tierDue(q.Tier, profile.Month) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func tierDue(tier model.FrequencyTier, month int) bool {
	switch tier {
	case model.TierMonthly:
		return true
	case model.TierQuarterly:
		return month%3 == 0
	case model.TierSemestral:
		return month%6 == 0
	default:
		return false
	}
}
