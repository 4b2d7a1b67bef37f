package model

import "encoding/json"

// AuditLog 是一条审计日志（对应 audit_logs 表）。
// chain_prev_hash/chain_hash 构成按保养单分链的留痕链路。
type AuditLog struct {
	EventID       string          `json:"event_id"`
	ChecklistID   string          `json:"checklist_id"`
	EventType     string          `json:"event_type"`
	Action        string          `json:"action"`
	Status        string          `json:"status"`
	Actor         string          `json:"actor,omitempty"`
	Source        string          `json:"source,omitempty"`
	DetailJSON    json.RawMessage `json:"detail_json,omitempty"`
	OccurredAt    int64           `json:"occurred_at"`
	ChainPrevHash string          `json:"chain_prev_hash,omitempty"`
	ChainHash     string          `json:"chain_hash"`
}
