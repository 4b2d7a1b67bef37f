package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"liftops/internal/domain/model"
	"liftops/internal/platform/hash"
	"liftops/internal/platform/id"
)

// ErrPeriodCompleted 表示同周期 (client, equipment, month, year) 已存在
// completed 保养单，不允许重复建单。
var ErrPeriodCompleted = errors.New("checklist period already completed")

// Store 封装与 SQLite 的读写逻辑。
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureChecklist 按周期键“开单或续单”：
// - 该周期已有非 completed 保养单时直接返回（续单，支持中断后恢复）；
// - 已有 completed 保养单时返回 ErrPeriodCompleted（周期内禁止重复建单）；
// - 否则新建 pending 保养单。
func (s *Store) EnsureChecklist(ctx context.Context, clientID, equipmentID, technicianID string, month, year int, hydraulic bool) (*model.Checklist, error) {
	existing, err := s.getChecklistByPeriod(ctx, clientID, equipmentID, month, year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == model.ChecklistCompleted {
			return nil, fmt.Errorf("%w: %s %d/%d", ErrPeriodCompleted, equipmentID, month, year)
		}
		return existing, nil
	}

	now := time.Now().Unix()
	cl := &model.Checklist{
		ID:           id.New("chk"),
		ClientID:     clientID,
		EquipmentID:  equipmentID,
		TechnicianID: technicianID,
		Month:        month,
		Year:         year,
		Hydraulic:    hydraulic,
		Status:       model.ChecklistPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checklists(
			checklist_id, client_id, equipment_id, technician_id, month, year,
			hydraulic, status, created_at, updated_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cl.ID, cl.ClientID, cl.EquipmentID, cl.TechnicianID, cl.Month, cl.Year,
		boolToInt(cl.Hydraulic), string(cl.Status), cl.CreatedAt, cl.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert checklist: %w", err)
	}
	return cl, nil
}

func (s *Store) getChecklistByPeriod(ctx context.Context, clientID, equipmentID string, month, year int) (*model.Checklist, error) {
	row := s.db.QueryRowContext(ctx, checklistSelect+`
		WHERE client_id = ? AND equipment_id = ? AND month = ? AND year = ?
		LIMIT 1
	`, clientID, equipmentID, month, year)
	return scanChecklist(row)
}

// GetChecklist 按 ID 查询保养单；不存在时返回 (nil, nil)。
func (s *Store) GetChecklist(ctx context.Context, checklistID string) (*model.Checklist, error) {
	row := s.db.QueryRowContext(ctx, checklistSelect+`
		WHERE checklist_id = ?
		LIMIT 1
	`, checklistID)
	return scanChecklist(row)
}

// ListOpenChecklistsByClient 返回客户名下未 completed 的保养单（巡访会话恢复用）。
func (s *Store) ListOpenChecklistsByClient(ctx context.Context, clientID string) ([]model.Checklist, error) {
	rows, err := s.db.QueryContext(ctx, checklistSelect+`
		WHERE client_id = ? AND status != 'completed'
		ORDER BY year, month, equipment_id
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query open checklists: %w", err)
	}
	defer rows.Close()
	return collectChecklists(rows)
}

// ListChecklistsBySignature 返回绑定到同一签名事件的保养单（巡访导出用）。
func (s *Store) ListChecklistsBySignature(ctx context.Context, signatureID string) ([]model.Checklist, error) {
	rows, err := s.db.QueryContext(ctx, checklistSelect+`
		WHERE signature_id = ?
		ORDER BY equipment_id
	`, signatureID)
	if err != nil {
		return nil, fmt.Errorf("query checklists by signature: %w", err)
	}
	defer rows.Close()
	return collectChecklists(rows)
}

// UpsertAnswers 将整份答案快照写入 checklist_answers。
// 以 (checklist_id, ordinal) 为键幂等 upsert：同一快照重放、交错的并发
// flush 都不会产生重复记录，后写覆盖先写即为最终状态。
// 同时把 pending 保养单推进为 in_progress。
func (s *Store) UpsertAnswers(ctx context.Context, checklistID string, answers []model.ChecklistAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert answers: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO checklist_answers(
			checklist_id, ordinal, status, observation, photo_ref_1, photo_ref_2, updated_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checklist_id, ordinal) DO UPDATE SET
			status=excluded.status,
			observation=excluded.observation,
			photo_ref_1=excluded.photo_ref_1,
			photo_ref_2=excluded.photo_ref_2,
			updated_at=excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert answers: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, a := range answers {
		_, err = stmt.ExecContext(ctx,
			checklistID,
			a.Ordinal,
			string(a.Status),
			nullIfEmpty(a.Observation),
			nullIfEmpty(a.PhotoRef1),
			nullIfEmpty(a.PhotoRef2),
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert answer %d: %w", a.Ordinal, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE checklists
		SET status = CASE WHEN status = 'pending' THEN 'in_progress' ELSE status END,
			updated_at = ?
		WHERE checklist_id = ?
	`, now, checklistID)
	if err != nil {
		return fmt.Errorf("touch checklist: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert answers: %w", err)
	}
	return nil
}

// ListAnswers 返回保养单全部已落库答案，按 ordinal 升序。
func (s *Store) ListAnswers(ctx context.Context, checklistID string) ([]model.ChecklistAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			checklist_id,
			ordinal,
			status,
			COALESCE(observation, ''),
			COALESCE(photo_ref_1, ''),
			COALESCE(photo_ref_2, ''),
			updated_at
		FROM checklist_answers
		WHERE checklist_id = ?
		ORDER BY ordinal ASC
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []model.ChecklistAnswer
	for rows.Next() {
		var item model.ChecklistAnswer
		var status string
		if err := rows.Scan(
			&item.ChecklistID,
			&item.Ordinal,
			&status,
			&item.Observation,
			&item.PhotoRef1,
			&item.PhotoRef2,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		item.Status = model.AnswerStatus(status)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	if out == nil {
		out = []model.ChecklistAnswer{}
	}
	return out, nil
}

// UpdateCertification 更新保养单的认证字段。
// completed 之后认证字段只追加不修改，此时更新会被拒绝。
func (s *Store) UpdateCertification(ctx context.Context, checklistID, lastCertifiedAt string, nextMonth, nextYear int, unreadable bool, certStatus model.CertificationStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checklists
		SET last_certified_at = ?,
			next_cert_month = ?,
			next_cert_year = ?,
			cert_dates_unreadable = ?,
			cert_status = ?,
			updated_at = ?
		WHERE checklist_id = ? AND status != 'completed'
	`, nullIfEmpty(lastCertifiedAt), nextMonth, nextYear, boolToInt(unreadable), string(certStatus), time.Now().Unix(), checklistID)
	if err != nil {
		return fmt.Errorf("update certification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update certification rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("checklist %s is completed or missing: certification is append-only", checklistID)
	}
	return nil
}

// MarkCompleted 将保养单置为 completed 并写入 folio。
// 仅允许从非 completed 状态推进；调用方必须先通过完成校验。
func (s *Store) MarkCompleted(ctx context.Context, checklistID, folio string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checklists
		SET status = 'completed',
			folio = ?,
			updated_at = ?
		WHERE checklist_id = ? AND status != 'completed'
	`, nullIfEmpty(folio), time.Now().Unix(), checklistID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark completed rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("checklist %s not found or already completed", checklistID)
	}
	return nil
}

// NextFolio 为指定年份分配下一个完成单编号（F-<year>-<seq>）。
func (s *Store) NextFolio(ctx context.Context, year int) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx folio: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO folio_counters(year, last_seq) VALUES(?, 1)
		ON CONFLICT(year) DO UPDATE SET last_seq = folio_counters.last_seq + 1
	`, year)
	if err != nil {
		return "", fmt.Errorf("bump folio counter: %w", err)
	}

	var seq int
	if err = tx.QueryRowContext(ctx, `
		SELECT last_seq FROM folio_counters WHERE year = ?
	`, year).Scan(&seq); err != nil {
		return "", fmt.Errorf("read folio counter: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit folio: %w", err)
	}
	return fmt.Sprintf("F-%d-%04d", year, seq), nil
}

// AttachSignature 登记一次签名事件，并把签名绑定到给定保养单。
// 只有 completed 且尚未签名的保养单会被绑定（已签名的不会被重签），
// 返回实际绑定成功的保养单 ID 列表。
func (s *Store) AttachSignature(ctx context.Context, sig model.SignatureRecord, checklistIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx attach signature: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signatures(signature_id, signer_name, image_ref, signed_at)
		VALUES(?, ?, ?, ?)
	`, sig.ID, sig.SignerName, sig.ImageRef, sig.SignedAt)
	if err != nil {
		return nil, fmt.Errorf("insert signature: %w", err)
	}

	var signed []string
	for _, clID := range checklistIDs {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE checklists
			SET signature_id = ?, signed_at = ?, updated_at = ?
			WHERE checklist_id = ? AND status = 'completed' AND signature_id IS NULL
		`, sig.ID, sig.SignedAt, time.Now().Unix(), clID)
		if err != nil {
			return nil, fmt.Errorf("bind signature %s: %w", clID, err)
		}
		n, rerr := res.RowsAffected()
		if rerr != nil {
			err = fmt.Errorf("bind signature rows %s: %w", clID, rerr)
			return nil, err
		}
		if n > 0 {
			signed = append(signed, clID)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attach signature: %w", err)
	}
	return signed, nil
}

// GetSignature 按 ID 查询签名记录；不存在时返回 (nil, nil)。
func (s *Store) GetSignature(ctx context.Context, signatureID string) (*model.SignatureRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT signature_id, signer_name, image_ref, signed_at
		FROM signatures
		WHERE signature_id = ?
		LIMIT 1
	`, signatureID)

	var out model.SignatureRecord
	if err := row.Scan(&out.ID, &out.SignerName, &out.ImageRef, &out.SignedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query signature: %w", err)
	}
	return &out, nil
}

// InsertServiceRequest 写入一条派生维修工单。
// 派生流程逐条调用：单条失败由调用方记录并跳过，不回滚整批。
func (s *Store) InsertServiceRequest(ctx context.Context, req model.DerivedServiceRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_requests(
			request_id, checklist_id, equipment_id, client_id, technician_id,
			ordinal, section, description, critical, photo_ref_1, photo_ref_2, created_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.ChecklistID, req.EquipmentID, req.ClientID, req.TechnicianID,
		req.Ordinal, nullIfEmpty(req.Section), req.Description, boolToInt(req.Critical),
		nullIfEmpty(req.PhotoRef1), nullIfEmpty(req.PhotoRef2), req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert service request: %w", err)
	}
	return nil
}

// ListServiceRequestsByChecklist 返回保养单派生出的维修工单。
func (s *Store) ListServiceRequestsByChecklist(ctx context.Context, checklistID string) ([]model.DerivedServiceRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			request_id, checklist_id, equipment_id, client_id, technician_id,
			ordinal, COALESCE(section, ''), description, critical,
			COALESCE(photo_ref_1, ''), COALESCE(photo_ref_2, ''), created_at
		FROM service_requests
		WHERE checklist_id = ?
		ORDER BY ordinal ASC, request_id ASC
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("query service requests: %w", err)
	}
	defer rows.Close()

	var out []model.DerivedServiceRequest
	for rows.Next() {
		var item model.DerivedServiceRequest
		var criticalInt int
		if err := rows.Scan(
			&item.ID,
			&item.ChecklistID,
			&item.EquipmentID,
			&item.ClientID,
			&item.TechnicianID,
			&item.Ordinal,
			&item.Section,
			&item.Description,
			&criticalInt,
			&item.PhotoRef1,
			&item.PhotoRef2,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan service request: %w", err)
		}
		item.Critical = criticalInt == 1
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service requests: %w", err)
	}
	if out == nil {
		out = []model.DerivedServiceRequest{}
	}
	return out, nil
}

// SaveDocument 记录文档产物信息，供 UI 或导出流程追踪。
func (s *Store) SaveDocument(ctx context.Context, checklistID, docType, filePath, sha256, generatorVersion, status string) (string, error) {
	documentID := id.New("doc")
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(
			document_id, checklist_id, doc_type, file_path, sha256, generated_at, generator_version, status
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, documentID, checklistID, docType, filePath, sha256, now, generatorVersion, status)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE checklists SET document_id = ?, updated_at = ? WHERE checklist_id = ?
	`, documentID, now, checklistID)
	if err != nil {
		return "", fmt.Errorf("bind document: %w", err)
	}
	return documentID, nil
}

// GetDocumentByID 按文档 ID 查询文档索引。
func (s *Store) GetDocumentByID(ctx context.Context, documentID string) (*model.DocumentInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, checklist_id, doc_type, file_path, sha256, generated_at, COALESCE(generator_version, ''), status
		FROM documents
		WHERE document_id = ?
		LIMIT 1
	`, documentID)
	return scanDocumentInfo(row)
}

// GetLatestDocumentByChecklist 返回保养单最新文档索引。
func (s *Store) GetLatestDocumentByChecklist(ctx context.Context, checklistID string) (*model.DocumentInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, checklist_id, doc_type, file_path, sha256, generated_at, COALESCE(generator_version, ''), status
		FROM documents
		WHERE checklist_id = ?
		ORDER BY generated_at DESC, document_id DESC
		LIMIT 1
	`, checklistID)
	return scanDocumentInfo(row)
}

// ListDocumentsByChecklist 返回保养单全部文档索引，按生成时间倒序。
func (s *Store) ListDocumentsByChecklist(ctx context.Context, checklistID string) ([]model.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, checklist_id, doc_type, file_path, sha256, generated_at, COALESCE(generator_version, ''), status
		FROM documents
		WHERE checklist_id = ?
		ORDER BY generated_at DESC, document_id DESC
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []model.DocumentInfo
	for rows.Next() {
		var item model.DocumentInfo
		if err := rows.Scan(
			&item.DocumentID,
			&item.ChecklistID,
			&item.DocType,
			&item.FilePath,
			&item.SHA256,
			&item.GeneratedAt,
			&item.GeneratorVersion,
			&item.Status,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	if out == nil {
		out = []model.DocumentInfo{}
	}
	return out, nil
}

// AppendAudit 写入审计日志，并生成链式 hash 以便后续校验完整性。
func (s *Store) AppendAudit(ctx context.Context, checklistID, eventType, action, status, actor, source string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			detailJSON = raw
		}
	}

	prev := ""
	err := s.db.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM audit_logs
		WHERE checklist_id = ?
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT 1
	`, checklistID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query previous chain hash: %w", err)
	}

	now := time.Now().Unix()
	eventID := id.New("evt")
	chain := hash.Text(prev, checklistID, eventType, action, status, fmt.Sprintf("%d", now), string(detailJSON))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs(
			event_id, checklist_id, event_type, action, status,
			actor, source, detail_json, occurred_at, chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, checklistID, eventType, action, status, actor, source, string(detailJSON), now, nullIfEmpty(prev), chain)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

// ListAuditLogs 返回保养单审计日志（按时间升序）。
func (s *Store) ListAuditLogs(ctx context.Context, checklistID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			event_id,
			checklist_id,
			event_type,
			action,
			status,
			COALESCE(actor, ''),
			COALESCE(source, ''),
			COALESCE(detail_json, '{}'),
			occurred_at,
			COALESCE(chain_prev_hash, ''),
			chain_hash
		FROM audit_logs
		WHERE checklist_id = ?
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT ?
	`, checklistID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var item model.AuditLog
		var detail string
		if err := rows.Scan(
			&item.EventID,
			&item.ChecklistID,
			&item.EventType,
			&item.Action,
			&item.Status,
			&item.Actor,
			&item.Source,
			&detail,
			&item.OccurredAt,
			&item.ChainPrevHash,
			&item.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		item.DetailJSON = json.RawMessage(detail)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}

// GetChecklistOverview 返回保养单聚合摘要（答案数/被拒数/工单数/文档数）。
func (s *Store) GetChecklistOverview(ctx context.Context, checklistID string) (*model.ChecklistOverview, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			c.checklist_id,
			c.client_id,
			c.equipment_id,
			c.technician_id,
			c.month,
			c.year,
			c.status,
			COALESCE(c.folio, ''),
			COALESCE(c.cert_status, ''),
			COALESCE(c.next_cert_month, 0),
			COALESCE(c.next_cert_year, 0),
			COALESCE(c.signature_id, ''),
			c.created_at,
			c.updated_at,
			COALESCE(c.signed_at, 0),
			(SELECT COUNT(*) FROM checklist_answers a WHERE a.checklist_id = c.checklist_id),
			(SELECT COUNT(*) FROM checklist_answers a WHERE a.checklist_id = c.checklist_id AND a.status = 'rejected'),
			(SELECT COUNT(*) FROM service_requests sr WHERE sr.checklist_id = c.checklist_id),
			(SELECT COUNT(*) FROM documents d WHERE d.checklist_id = c.checklist_id)
		FROM checklists c
		WHERE c.checklist_id = ?
	`, checklistID)

	var out model.ChecklistOverview
	var status string
	if err := row.Scan(
		&out.ChecklistID,
		&out.ClientID,
		&out.EquipmentID,
		&out.TechnicianID,
		&out.Month,
		&out.Year,
		&status,
		&out.Folio,
		&out.CertStatus,
		&out.NextCertMonth,
		&out.NextCertYear,
		&out.SignatureID,
		&out.CreatedAt,
		&out.UpdatedAt,
		&out.SignedAt,
		&out.AnswerCount,
		&out.RejectedCount,
		&out.RequestCount,
		&out.DocumentCount,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query checklist overview: %w", err)
	}
	out.Status = model.ChecklistStatus(status)
	return &out, nil
}

// GetSchemaMetaValue 查询 schema_meta 表指定 key 的 value。
func (s *Store) GetSchemaMetaValue(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value
		FROM schema_meta
		WHERE key = ?
		LIMIT 1
	`, key).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("query schema_meta %s: %w", key, err)
	}
	return v, nil
}

const checklistSelect = `
	SELECT
		checklist_id,
		client_id,
		equipment_id,
		technician_id,
		month,
		year,
		hydraulic,
		status,
		COALESCE(last_certified_at, ''),
		COALESCE(next_cert_month, 0),
		COALESCE(next_cert_year, 0),
		cert_dates_unreadable,
		COALESCE(cert_status, ''),
		COALESCE(signature_id, ''),
		COALESCE(document_id, ''),
		COALESCE(folio, ''),
		created_at,
		updated_at,
		COALESCE(signed_at, 0)
	FROM checklists
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChecklistInto(sc rowScanner, out *model.Checklist) error {
	var hydraulicInt, unreadableInt int
	var status, certStatus string
	if err := sc.Scan(
		&out.ID,
		&out.ClientID,
		&out.EquipmentID,
		&out.TechnicianID,
		&out.Month,
		&out.Year,
		&hydraulicInt,
		&status,
		&out.LastCertifiedAt,
		&out.NextCertMonth,
		&out.NextCertYear,
		&unreadableInt,
		&certStatus,
		&out.SignatureID,
		&out.DocumentID,
		&out.Folio,
		&out.CreatedAt,
		&out.UpdatedAt,
		&out.SignedAt,
	); err != nil {
		return err
	}
	out.Hydraulic = hydraulicInt == 1
	out.CertDatesUnreadable = unreadableInt == 1
	out.Status = model.ChecklistStatus(status)
	out.CertStatus = model.CertificationStatus(certStatus)
	return nil
}

func scanChecklist(row *sql.Row) (*model.Checklist, error) {
	var out model.Checklist
	if err := scanChecklistInto(row, &out); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query checklist: %w", err)
	}
	return &out, nil
}

func collectChecklists(rows *sql.Rows) ([]model.Checklist, error) {
	var out []model.Checklist
	for rows.Next() {
		var item model.Checklist
		if err := scanChecklistInto(rows, &item); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	if out == nil {
		out = []model.Checklist{}
	}
	return out, nil
}

func scanDocumentInfo(row *sql.Row) (*model.DocumentInfo, error) {
	var out model.DocumentInfo
	if err := row.Scan(
		&out.DocumentID,
		&out.ChecklistID,
		&out.DocType,
		&out.FilePath,
		&out.SHA256,
		&out.GeneratedAt,
		&out.GeneratorVersion,
		&out.Status,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query document info: %w", err)
	}
	return &out, nil
}

// SQLite 中没有布尔类型，统一转 0/1 存储。
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// 空字符串按 NULL 写入，避免无意义空值污染查询条件。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
