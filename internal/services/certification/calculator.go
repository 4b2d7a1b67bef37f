package certification

import (
	"fmt"
	"time"

	"liftops/internal/domain/model"
)

// cutoffDay 是宽限截止日：下次年检月的 14 日整天仍算有效，15 日零点起过期。
const cutoffDay = 14

// Input 是认证状态计算的输入。
// Unreadable 为真表示铭牌日期无法辨认，跳过一切日期计算。
type Input struct {
	NextCertMonth int
	NextCertYear  int
	Unreadable    bool
}

// Compute 计算设备年检有效性：
//   - unreadable 优先于日期判断；
//   - now 不晚于目标月 14 日 23:59:59（本地时区）为 vigente；
//   - 之后为 vencida。
//
// 例：目标 2026-06，6 月 14 日全天 vigente，6 月 15 日 00:00:00 起 vencida。
func Compute(now time.Time, in Input) (model.CertificationStatus, error) {
	if in.Unreadable {
		return model.CertUnreadable, nil
	}
	if in.NextCertMonth < 1 || in.NextCertMonth > 12 {
		return "", fmt.Errorf("next cert month out of range: %d", in.NextCertMonth)
	}
	if in.NextCertYear < 2000 || in.NextCertYear > 2200 {
		return "", fmt.Errorf("next cert year out of range: %d", in.NextCertYear)
	}

	// 宽限期结束时刻 = 目标月 15 日零点。
	deadline := time.Date(in.NextCertYear, time.Month(in.NextCertMonth), cutoffDay+1, 0, 0, 0, 0, now.Location())
	if now.Before(deadline) {
		return model.CertVigente, nil
	}
	return model.CertVencida, nil
}
