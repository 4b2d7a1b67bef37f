package model

// ChecklistStatus 表示单张保养单的生命周期状态。
type ChecklistStatus string

const (
	// ChecklistPending 已创建但未开始作答。
	ChecklistPending ChecklistStatus = "pending"
	// ChecklistInProgress 作答中（至少发生过一次变更）。
	ChecklistInProgress ChecklistStatus = "in_progress"
	// ChecklistCompleted 已通过完成校验；签名与认证字段从此只追加不修改。
	ChecklistCompleted ChecklistStatus = "completed"
)

// CertificationStatus 是设备年检有效性三态。
type CertificationStatus string

const (
	// CertVigente 年检在有效期内（now 不晚于目标月 14 日当天结束）。
	CertVigente CertificationStatus = "vigente"
	// CertVencida 年检已过期。
	CertVencida CertificationStatus = "vencida"
	// CertUnreadable 铭牌日期无法辨认，不做任何日期计算。
	CertUnreadable CertificationStatus = "unreadable"
)

// Checklist 是一张保养单（对应 checklists 表）。
// 每个 (client, equipment, month, year) 周期至多一张非废弃保养单。
type Checklist struct {
	ID           string          `json:"checklist_id"`
	ClientID     string          `json:"client_id"`
	EquipmentID  string          `json:"equipment_id"`
	TechnicianID string          `json:"technician_id"`
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	Hydraulic    bool            `json:"hydraulic"`
	Status       ChecklistStatus `json:"status"`

	// 认证字段：铭牌上的上次/下次年检信息。completed 之后只追加不修改。
	LastCertifiedAt     string              `json:"last_certified_at,omitempty"` // 原样文本，可能为空
	NextCertMonth       int                 `json:"next_cert_month,omitempty"`
	NextCertYear        int                 `json:"next_cert_year,omitempty"`
	CertDatesUnreadable bool                `json:"cert_dates_unreadable,omitempty"`
	CertStatus          CertificationStatus `json:"cert_status,omitempty"` // 冗余落库便于审计，可由字段重算

	SignatureID string `json:"signature_id,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
	Folio       string `json:"folio,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
	SignedAt  int64 `json:"signed_at,omitempty"`
}

// SignatureRecord 是一次签名事件（对应 signatures 表）。
// 同一会话中所有 completed 保养单共享同一条记录。
type SignatureRecord struct {
	ID         string `json:"signature_id"`
	SignerName string `json:"signer_name"`
	ImageRef   string `json:"image_ref"`
	SignedAt   int64  `json:"signed_at"`
}

// DerivedServiceRequest 是由被拒答案派生出的维修工单（对应 service_requests 表）。
// 不跨保养单去重：每次拒绝都生成自己的工单。
type DerivedServiceRequest struct {
	ID           string `json:"request_id"`
	ChecklistID  string `json:"checklist_id"`
	EquipmentID  string `json:"equipment_id"`
	ClientID     string `json:"client_id"`
	TechnicianID string `json:"technician_id"`
	Ordinal      int    `json:"ordinal"`
	Section      string `json:"section"`
	Description  string `json:"description"`
	Critical     bool   `json:"critical"`
	PhotoRef1    string `json:"photo_ref_1,omitempty"`
	PhotoRef2    string `json:"photo_ref_2,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// ChecklistOverview 是保养单聚合摘要（答案数/被拒数/派生工单数/文档数）。
type ChecklistOverview struct {
	ChecklistID    string          `json:"checklist_id"`
	ClientID       string          `json:"client_id"`
	EquipmentID    string          `json:"equipment_id"`
	TechnicianID   string          `json:"technician_id"`
	Month          int             `json:"month"`
	Year           int             `json:"year"`
	Status         ChecklistStatus `json:"status"`
	Folio          string          `json:"folio,omitempty"`
	AnswerCount    int             `json:"answer_count"`
	RejectedCount  int             `json:"rejected_count"`
	RequestCount   int             `json:"request_count"`
	DocumentCount  int             `json:"document_count"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	SignedAt       int64           `json:"signed_at,omitempty"`
	SignatureID    string          `json:"signature_id,omitempty"`
	CertStatus     string          `json:"cert_status,omitempty"`
	NextCertMonth  int             `json:"next_cert_month,omitempty"`
	NextCertYear   int             `json:"next_cert_year,omitempty"`
}

// DocumentInfo 是文档产物索引（对应 documents 表）。
type DocumentInfo struct {
	DocumentID       string `json:"document_id"`
	ChecklistID      string `json:"checklist_id"`
	DocType          string `json:"doc_type"` // checklist_pdf|visit_zip
	FilePath         string `json:"file_path"`
	SHA256           string `json:"sha256"`
	GeneratedAt      int64  `json:"generated_at"`
	GeneratorVersion string `json:"generator_version"`
	Status           string `json:"status"`
}
