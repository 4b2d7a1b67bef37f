package model

// FrequencyTier 表示巡检问题的频率档位，决定哪些月份的保养必须回答该问题。
type FrequencyTier string

const (
	// TierMonthly 每月必检。
	TierMonthly FrequencyTier = "monthly"
	// TierQuarterly 每季度必检（3/6/9/12 月）。
	TierQuarterly FrequencyTier = "quarterly"
	// TierSemestral 每半年必检（6/12 月）。
	TierSemestral FrequencyTier = "semestral"
)

// ChecklistQuestion 是保养问题目录中的一条不可变条目。
// Ordinal 全局唯一，同时决定展示顺序与答案顺序。
type ChecklistQuestion struct {
	Ordinal       int           `json:"ordinal"`
	Section       string        `json:"section"`
	Text          string        `json:"text"`
	Tier          FrequencyTier `json:"tier"`
	HydraulicOnly bool          `json:"hydraulic_only"`
}

// AnswerStatus 表示技术员对单条问题的判定状态。
type AnswerStatus string

const (
	// AnswerPending 未作答（默认值）。
	AnswerPending AnswerStatus = "pending"
	// AnswerApproved 检查通过。
	AnswerApproved AnswerStatus = "approved"
	// AnswerRejected 检查不通过；必须附观察说明与至少一张照片才能关单。
	AnswerRejected AnswerStatus = "rejected"
	// AnswerNotApplicable 不适用于本台设备。
	AnswerNotApplicable AnswerStatus = "not_applicable"
)

// ChecklistAnswer 是对一条问题的作答记录（对应 checklist_answers 表）。
// 状态离开 rejected 时 Observation 与两个照片引用会被清空：
// 整改证据只在 rejected 状态下有意义。
type ChecklistAnswer struct {
	ChecklistID string       `json:"checklist_id"`
	Ordinal     int          `json:"ordinal"`
	Status      AnswerStatus `json:"status"`
	Observation string       `json:"observation,omitempty"`
	PhotoRef1   string       `json:"photo_ref_1,omitempty"`
	PhotoRef2   string       `json:"photo_ref_2,omitempty"`
	UpdatedAt   int64        `json:"updated_at,omitempty"`
}
