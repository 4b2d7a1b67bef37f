package visitflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"liftops/internal/adapters/catalog"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/domain/model"
	"liftops/internal/platform/id"
	"liftops/internal/services/answers"
	"liftops/internal/services/autosave"
	"liftops/internal/services/catalogfilter"
	"liftops/internal/services/certification"
	"liftops/internal/services/checklistpdf"
	"liftops/internal/services/completion"
	"liftops/internal/services/servicerequest"
	"liftops/internal/services/signing"
)

// 巡访流程（visit flow）
//
// 一次巡访 = 技术员到一个客户现场，对多台设备逐台填写保养单，
// 最后用一次客户签名覆盖全部 completed 保养单并收尾。
// 会话与答案状态都在进程内，自动保存负责把快照落库，
// 中断后按周期键重新开单即可恢复。

// Service 管理巡访会话并编排引擎各部件。
type Service struct {
	store  *sqliteadapter.Store
	loaded *catalog.LoadedCatalog
	docDir string

	mu       sync.Mutex
	sessions map[string]*VisitSession
}

// VisitSession 是一次进行中的巡访。
type VisitSession struct {
	ID           string
	ClientID     string
	TechnicianID string
	StartedAt    int64

	mu         sync.Mutex
	checklists map[string]*checklistSession
}

type checklistSession struct {
	checklist *model.Checklist
	questions []model.ChecklistQuestion
	answers   *answers.Store
	saver     *autosave.Scheduler
}

func NewService(store *sqliteadapter.Store, loaded *catalog.LoadedCatalog, docDir string) *Service {
	return &Service{
		store:    store,
		loaded:   loaded,
		docDir:   docDir,
		sessions: make(map[string]*VisitSession),
	}
}

// StartVisit 创建一次巡访会话。
func (s *Service) StartVisit(ctx context.Context, clientID, technicianID string) (*VisitSession, error) {
	clientID = strings.TrimSpace(clientID)
	technicianID = strings.TrimSpace(technicianID)
	if clientID == "" || technicianID == "" {
		return nil, errors.New("client_id and technician_id are required")
	}

	sess := &VisitSession{
		ID:           id.New("vis"),
		ClientID:     clientID,
		TechnicianID: technicianID,
		StartedAt:    time.Now().Unix(),
		checklists:   make(map[string]*checklistSession),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

// Session 按 ID 取会话；不存在时返回 (nil, false)。
func (s *Service) Session(sessionID string) (*VisitSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// OpenChecklist 在会话内“开单或续单”一台设备的本月保养单：
//   - 周期内已有未完成保养单时直接续单，并用已落库答案恢复状态；
//   - 周期已 completed 时返回 sqlite.ErrPeriodCompleted；
//   - 题集按设备画像与月份过滤，顺序跟随目录 ordinal。
func (s *Service) OpenChecklist(ctx context.Context, sessionID, equipmentID string, month, year int, hydraulic bool) (*model.Checklist, []model.ChecklistQuestion, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, nil, fmt.Errorf("visit session not found: %s", sessionID)
	}
	equipmentID = strings.TrimSpace(equipmentID)
	if equipmentID == "" {
		return nil, nil, errors.New("equipment_id is required")
	}
	if year < 2000 || year > 2200 {
		return nil, nil, fmt.Errorf("year out of range: %d", year)
	}

	questions, err := catalogfilter.Filter(s.loaded.Questions, catalogfilter.EquipmentProfile{
		Hydraulic: hydraulic,
		Month:     month,
	})
	if err != nil {
		return nil, nil, err
	}

	cl, err := s.store.EnsureChecklist(ctx, sess.ClientID, equipmentID, sess.TechnicianID, month, year, hydraulic)
	if err != nil {
		return nil, nil, err
	}

	seed, err := s.store.ListAnswers(ctx, cl.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("restore answers: %w", err)
	}

	answerStore := answers.NewStore(cl.ID, questions, seed)
	cs := &checklistSession{
		checklist: cl,
		questions: questions,
		answers:   answerStore,
		saver:     autosave.NewScheduler(cl.ID, autosave.DefaultThreshold, answerStore, s.store),
	}

	sess.mu.Lock()
	sess.checklists[cl.ID] = cs
	sess.mu.Unlock()

	_ = s.store.AppendAudit(ctx, cl.ID, "visit", "open_checklist", "success", sess.TechnicianID, "visitflow.OpenChecklist", map[string]any{
		"session_id":     sessionID,
		"equipment_id":   equipmentID,
		"question_count": len(questions),
		"restored":       len(seed),
		"catalog_sha256": s.loaded.SHA256,
	})
	return cl, questions, nil
}

func (sess *VisitSession) checklistSession(checklistID string) (*checklistSession, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	cs, ok := sess.checklists[checklistID]
	if !ok {
		return nil, fmt.Errorf("checklist not open in session: %s", checklistID)
	}
	return cs, nil
}

// AnswerUpdate 是一次答案变更的结果，Saving 供 UI 展示保存指示。
// FlushError 非空表示本次触发的自动保存落库失败（内存状态已应用，
// 下一次变更会重试整份快照）；Saved=false + FlushError="" 才是“未到阈值”。
type AnswerUpdate struct {
	Answer     model.ChecklistAnswer `json:"answer"`
	Saving     bool                  `json:"saving"`
	Saved      bool                  `json:"saved"`
	FlushError string                `json:"flush_error,omitempty"`
}

// SetAnswerStatus 更新某题状态，并按阈值触发自动保存。
func (s *Service) SetAnswerStatus(ctx context.Context, sessionID, checklistID string, ordinal int, status model.AnswerStatus) (*AnswerUpdate, error) {
	return s.mutate(ctx, sessionID, checklistID, func(cs *checklistSession) (model.ChecklistAnswer, error) {
		return cs.answers.SetStatus(ordinal, status)
	})
}

// SetObservation 更新 rejected 答案的观察说明。
func (s *Service) SetObservation(ctx context.Context, sessionID, checklistID string, ordinal int, observation string) (*AnswerUpdate, error) {
	return s.mutate(ctx, sessionID, checklistID, func(cs *checklistSession) (model.ChecklistAnswer, error) {
		return cs.answers.SetObservation(ordinal, observation)
	})
}

// SetPhotoRef 把已确认上传成功的照片引用绑定到 rejected 答案。
func (s *Service) SetPhotoRef(ctx context.Context, sessionID, checklistID string, ordinal, slot int, ref string) (*AnswerUpdate, error) {
	return s.mutate(ctx, sessionID, checklistID, func(cs *checklistSession) (model.ChecklistAnswer, error) {
		return cs.answers.SetPhotoRef(ordinal, slot, ref)
	})
}

func (s *Service) mutate(ctx context.Context, sessionID, checklistID string, apply func(*checklistSession) (model.ChecklistAnswer, error)) (*AnswerUpdate, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, fmt.Errorf("visit session not found: %s", sessionID)
	}
	cs, err := sess.checklistSession(checklistID)
	if err != nil {
		return nil, err
	}

	answer, err := apply(cs)
	if err != nil {
		return nil, err
	}

	saved, err := cs.saver.MaybeFlush(ctx)
	if err != nil {
		// 自动保存失败不回滚内存状态：下一次变更会重试整份快照。
		// 失败必须可见：结果携带 flush_error，审计留痕一条 failed 记录。
		_ = s.store.AppendAudit(ctx, checklistID, "answers", "autosave", "failed", sess.TechnicianID, "visitflow.mutate", map[string]any{
			"error":   err.Error(),
			"pending": cs.saver.Pending(),
		})
		return &AnswerUpdate{Answer: answer, Saving: cs.saver.Saving(), FlushError: err.Error()}, nil
	}
	return &AnswerUpdate{Answer: answer, Saving: cs.saver.Saving(), Saved: saved}, nil
}

// Answers 返回某张保养单的会话内答案快照。
func (s *Service) Answers(sessionID, checklistID string) ([]model.ChecklistAnswer, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, fmt.Errorf("visit session not found: %s", sessionID)
	}
	cs, err := sess.checklistSession(checklistID)
	if err != nil {
		return nil, err
	}
	return cs.answers.Snapshot(), nil
}

// CertificationInput 是铭牌认证信息的录入。
type CertificationInput struct {
	LastCertifiedAt string `json:"last_certified_at"`
	NextCertMonth   int    `json:"next_cert_month"`
	NextCertYear    int    `json:"next_cert_year"`
	Unreadable      bool   `json:"unreadable"`
}

// SetCertification 录入铭牌认证信息并计算有效性。
// completed 保养单的认证字段只追加不修改，store 层会拒绝。
func (s *Service) SetCertification(ctx context.Context, sessionID, checklistID string, in CertificationInput) (model.CertificationStatus, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return "", fmt.Errorf("visit session not found: %s", sessionID)
	}
	if _, err := sess.checklistSession(checklistID); err != nil {
		return "", err
	}

	status, err := certification.Compute(time.Now(), certification.Input{
		NextCertMonth: in.NextCertMonth,
		NextCertYear:  in.NextCertYear,
		Unreadable:    in.Unreadable,
	})
	if err != nil {
		return "", err
	}

	if err := s.store.UpdateCertification(ctx, checklistID, strings.TrimSpace(in.LastCertifiedAt), in.NextCertMonth, in.NextCertYear, in.Unreadable, status); err != nil {
		return "", err
	}

	_ = s.store.AppendAudit(ctx, checklistID, "certification", "set", "success", sess.TechnicianID, "visitflow.SetCertification", map[string]any{
		"cert_status": string(status),
		"unreadable":  in.Unreadable,
	})
	return status, nil
}

// EvaluateCompletion 先落库当前快照再执行完成校验，
// 保证校验结论建立在持久化状态之上。
func (s *Service) EvaluateCompletion(ctx context.Context, sessionID, checklistID string) (*completion.Result, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, fmt.Errorf("visit session not found: %s", sessionID)
	}
	cs, err := sess.checklistSession(checklistID)
	if err != nil {
		return nil, err
	}

	if err := cs.saver.Flush(ctx); err != nil {
		return nil, err
	}
	res := completion.Evaluate(cs.questions, cs.answers.Get)
	return &res, nil
}

// CompleteChecklist 执行关单：校验通过后分配 folio 并置为 completed。
// 校验不通过时返回阻塞明细而不是错误。
func (s *Service) CompleteChecklist(ctx context.Context, sessionID, checklistID string) (*completion.Result, *model.Checklist, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, nil, fmt.Errorf("visit session not found: %s", sessionID)
	}
	cs, err := sess.checklistSession(checklistID)
	if err != nil {
		return nil, nil, err
	}

	res, err := s.EvaluateCompletion(ctx, sessionID, checklistID)
	if err != nil {
		return nil, nil, err
	}
	if !res.CanComplete {
		_ = s.store.AppendAudit(ctx, checklistID, "completion", "request", "blocked", sess.TechnicianID, "visitflow.CompleteChecklist", map[string]any{
			"blockers": res.Blockers,
		})
		return res, nil, nil
	}

	folio, err := s.store.NextFolio(ctx, cs.checklist.Year)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.MarkCompleted(ctx, checklistID, folio); err != nil {
		return nil, nil, err
	}

	cl, err := s.store.GetChecklist(ctx, checklistID)
	if err != nil {
		return nil, nil, err
	}
	if cl != nil {
		cs.checklist = cl
	}

	_ = s.store.AppendAudit(ctx, checklistID, "completion", "request", "success", sess.TechnicianID, "visitflow.CompleteChecklist", map[string]any{
		"folio": folio,
	})
	return res, cl, nil
}

// SignSession 执行签名收尾并清理会话。
// 签名只覆盖会话内 completed 保养单；派生工单与 PDF 导出由 Coordinator 逐单执行。
func (s *Service) SignSession(ctx context.Context, sessionID, signerName, imageRef string) (*signing.Result, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, fmt.Errorf("visit session not found: %s", sessionID)
	}

	sess.mu.Lock()
	var ids []string
	for clID, cs := range sess.checklists {
		// 收尾前把每张单的快照落库，未完成的单子下次巡访继续。
		_ = cs.saver.Flush(ctx)
		ids = append(ids, clID)
	}
	sess.mu.Unlock()

	coord := signing.NewCoordinator(s.store, &sessionDeriver{service: s}, &sessionExporter{service: s})
	res, err := coord.Sign(ctx, signing.Input{
		ChecklistIDs: ids,
		SignerName:   signerName,
		ImageRef:     imageRef,
		Operator:     sess.TechnicianID,
	})
	if err != nil {
		return nil, err
	}

	// 会话清理放在最后：签名与导出全部结束后才释放状态。
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return res, nil
}

// sessionDeriver 把 servicerequest.Deriver 适配到签名收尾的逐单接口。
type sessionDeriver struct {
	service *Service
}

func (d *sessionDeriver) Derive(ctx context.Context, checklistID string) (int, []string) {
	cl, err := d.service.store.GetChecklist(ctx, checklistID)
	if err != nil || cl == nil {
		return 0, []string{fmt.Sprintf("derive %s: checklist unavailable", checklistID)}
	}
	answerRows, err := d.service.store.ListAnswers(ctx, checklistID)
	if err != nil {
		return 0, []string{fmt.Sprintf("derive %s: %v", checklistID, err)}
	}

	res := servicerequest.NewDeriver(d.service.store).Derive(ctx, *cl, d.service.loaded.Questions, answerRows, d.service.loaded.IsCriticalSection)

	_ = d.service.store.AppendAudit(ctx, checklistID, "derive", "service_requests", "success", cl.TechnicianID, "visitflow.sessionDeriver", map[string]any{
		"created":  len(res.Created),
		"warnings": res.Warnings,
	})
	return len(res.Created), res.Warnings
}

// sessionExporter 把 checklistpdf 适配到签名收尾的逐单接口。
type sessionExporter struct {
	service *Service
}

func (e *sessionExporter) Export(ctx context.Context, checklistID string) (string, error) {
	res, err := checklistpdf.GenerateChecklistPDF(ctx, e.service.store, e.service.loaded, checklistpdf.Options{
		ChecklistID: checklistID,
		OutputDir:   e.service.docDir,
		Operator:    "visitflow",
	})
	if err != nil {
		return "", err
	}
	return res.DocumentID, nil
}
