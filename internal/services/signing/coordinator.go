package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"liftops/internal/domain/model"
	"liftops/internal/platform/id"
)

// Store 是签名收尾所需的持久层能力（由 sqlite store 实现）。
type Store interface {
	GetChecklist(ctx context.Context, checklistID string) (*model.Checklist, error)
	ListAnswers(ctx context.Context, checklistID string) ([]model.ChecklistAnswer, error)
	AttachSignature(ctx context.Context, sig model.SignatureRecord, checklistIDs []string) ([]string, error)
	AppendAudit(ctx context.Context, checklistID, eventType, action, status, actor, source string, detail any) error
}

// Deriver 为单张保养单派生维修工单（恰好调用一次）。
type Deriver interface {
	Derive(ctx context.Context, checklistID string) (created int, warnings []string)
}

// Exporter 为单张保养单生成 PDF 文档。
type Exporter interface {
	Export(ctx context.Context, checklistID string) (documentID string, err error)
}

// Coordinator 执行巡访签名收尾：
// 一次客户签名覆盖会话内全部 completed 保养单，随后逐单派生工单并导出 PDF。
type Coordinator struct {
	store    Store
	deriver  Deriver
	exporter Exporter
}

func NewCoordinator(store Store, deriver Deriver, exporter Exporter) *Coordinator {
	return &Coordinator{store: store, deriver: deriver, exporter: exporter}
}

// Input 是一次签名收尾的输入。ChecklistIDs 来自当前巡访会话。
type Input struct {
	ChecklistIDs []string
	SignerName   string
	ImageRef     string
	Operator     string
}

// Result 是签名收尾的结论。导出失败不阻断流程，只计数并附 warnings。
type Result struct {
	SignatureID     string   `json:"signature_id"`
	Signed          []string `json:"signed"`
	Skipped         []string `json:"skipped,omitempty"`
	RequestsCreated int      `json:"requests_created"`
	ExportFailures  int      `json:"export_failures"`
	Warnings        []string `json:"warnings,omitempty"`
	SignedAt        int64    `json:"signed_at"`
}

// Sign 执行签名收尾：
//   - 仅 completed 且未签名的保养单会被绑定签名（其余记入 Skipped）；
//   - 每张已签名保养单派生一次维修工单；
//   - 每张已签名保养单导出一次 PDF，失败隔离计数；
//   - 会话清理由调用方在收到结果后执行。
func (c *Coordinator) Sign(ctx context.Context, in Input) (*Result, error) {
	signerName := strings.TrimSpace(in.SignerName)
	if signerName == "" {
		return nil, errors.New("signer name is required")
	}
	imageRef := strings.TrimSpace(in.ImageRef)
	if imageRef == "" {
		return nil, errors.New("signature image ref is required")
	}
	if len(in.ChecklistIDs) == 0 {
		return nil, errors.New("no checklists in session")
	}
	operator := strings.TrimSpace(in.Operator)
	if operator == "" {
		operator = "system"
	}

	res := &Result{SignedAt: time.Now().Unix()}

	// 先筛出 completed 候选：未完成/未知的单子不进入绑定。
	var candidates []string
	for _, clID := range in.ChecklistIDs {
		cl, err := c.store.GetChecklist(ctx, clID)
		if err != nil {
			return nil, fmt.Errorf("get checklist %s: %w", clID, err)
		}
		if cl == nil || cl.Status != model.ChecklistCompleted {
			res.Skipped = append(res.Skipped, clID)
			continue
		}
		if cl.SignatureID != "" {
			// 已签名的不重签。
			res.Skipped = append(res.Skipped, clID)
			continue
		}
		candidates = append(candidates, clID)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no completed checklists to sign")
	}

	sig := model.SignatureRecord{
		ID:         id.New("sig"),
		SignerName: signerName,
		ImageRef:   imageRef,
		SignedAt:   res.SignedAt,
	}
	signed, err := c.store.AttachSignature(ctx, sig, candidates)
	if err != nil {
		return nil, fmt.Errorf("attach signature: %w", err)
	}
	res.SignatureID = sig.ID
	res.Signed = signed

	for _, clID := range signed {
		_ = c.store.AppendAudit(ctx, clID, "sign", "attach_signature", "success", operator, "signing.Coordinator", map[string]any{
			"signature_id": sig.ID,
			"signer_name":  signerName,
		})

		created, warnings := c.deriver.Derive(ctx, clID)
		res.RequestsCreated += created
		res.Warnings = append(res.Warnings, warnings...)

		if c.exporter != nil {
			if _, err := c.exporter.Export(ctx, clID); err != nil {
				res.ExportFailures++
				res.Warnings = append(res.Warnings, fmt.Sprintf("export %s: %v", clID, err))
				_ = c.store.AppendAudit(ctx, clID, "export", "checklist_pdf", "failed", operator, "signing.Coordinator", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}

	return res, nil
}
