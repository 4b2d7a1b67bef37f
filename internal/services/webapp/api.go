package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/domain/model"
	"liftops/internal/services/auditverify"
	"liftops/internal/services/visitexport"
	"liftops/internal/services/visitflow"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "webapp",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	type startVisitRequest struct {
		ClientID     string `json:"client_id"`
		TechnicianID string `json:"technician_id"`
	}
	var req startVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	sess, err := s.flow.StartVisit(r.Context(), req.ClientID, req.TechnicianID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// 续单提示：客户名下未完成的保养单（中断恢复入口）。
	open, err := s.store.ListOpenChecklistsByClient(r.Context(), sess.ClientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      sess.ID,
		"client_id":       sess.ClientID,
		"technician_id":   sess.TechnicianID,
		"started_at":      sess.StartedAt,
		"open_checklists": open,
	})
}

func (s *Server) handleVisitRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/visits/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	sessionID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "checklists":
		// /api/visits/{sid}/checklists[/{cid}/...]
		restParts := []string{}
		if len(parts) > 2 {
			restParts = parts[2:]
		}
		s.handleVisitChecklists(w, r, sessionID, restParts)
	case "sign":
		s.handleJobSignSession(w, r, sessionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleVisitChecklists(w http.ResponseWriter, r *http.Request, sessionID string, parts []string) {
	if len(parts) == 0 {
		s.handleOpenChecklist(w, r, sessionID)
		return
	}

	checklistID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "answers":
		restParts := []string{}
		if len(parts) > 2 {
			restParts = parts[2:]
		}
		s.handleAnswers(w, r, sessionID, checklistID, restParts)
	case "certification":
		s.handleCertification(w, r, sessionID, checklistID)
	case "completion":
		s.handleCompletion(w, r, sessionID, checklistID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleOpenChecklist 在会话内“开单或续单”一台设备。
// 周期已完成时返回 409，UI 据此提示“本周期已关单”。
func (s *Server) handleOpenChecklist(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	type openChecklistRequest struct {
		EquipmentID string `json:"equipment_id"`
		Month       int    `json:"month"`
		Year        int    `json:"year"`
		Hydraulic   bool   `json:"hydraulic"`
	}
	var req openChecklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	cl, questions, err := s.flow.OpenChecklist(r.Context(), sessionID, req.EquipmentID, req.Month, req.Year, req.Hydraulic)
	if err != nil {
		if errors.Is(err, sqliteadapter.ErrPeriodCompleted) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	answers, err := s.flow.Answers(sessionID, cl.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checklist": cl,
		"questions": questions,
		"answers":   answers,
	})
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request, sessionID, checklistID string, parts []string) {
	if len(parts) == 0 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		answers, err := s.flow.Answers(sessionID, checklistID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
		return
	}

	ordinal := parseInt(parts[0], 0)
	if ordinal <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ordinal: %s", parts[0]))
		return
	}
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "status":
		s.handleAnswerStatus(w, r, sessionID, checklistID, ordinal)
	case "observation":
		s.handleAnswerObservation(w, r, sessionID, checklistID, ordinal)
	case "photo":
		s.handleAnswerPhoto(w, r, sessionID, checklistID, ordinal)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleAnswerStatus(w http.ResponseWriter, r *http.Request, sessionID, checklistID string, ordinal int) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	type statusRequest struct {
		Status string `json:"status"`
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	update, err := s.flow.SetAnswerStatus(r.Context(), sessionID, checklistID, ordinal, model.AnswerStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *Server) handleAnswerObservation(w http.ResponseWriter, r *http.Request, sessionID, checklistID string, ordinal int) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	type observationRequest struct {
		Observation string `json:"observation"`
	}
	var req observationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	update, err := s.flow.SetObservation(r.Context(), sessionID, checklistID, ordinal, req.Observation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

// handleAnswerPhoto 接收整改照片（multipart），落盘成功后才把引用绑定到答案。
// 引用永远指向已确认存在的文件。
func (s *Server) handleAnswerPhoto(w http.ResponseWriter, r *http.Request, sessionID, checklistID string, ordinal int) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	slot := parseInt(r.FormValue("slot"), 1)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	saved, err := s.blobs.Save("photo", ext, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	update, err := s.flow.SetPhotoRef(r.Context(), sessionID, checklistID, ordinal, slot, saved.Ref)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := map[string]any{
		"answer": update.Answer,
		"saving": update.Saving,
		"saved":  update.Saved,
		"blob": map[string]any{
			"ref":        saved.Ref,
			"sha256":     saved.SHA256,
			"size_bytes": saved.Size,
		},
	}
	if update.FlushError != "" {
		resp["flush_error"] = update.FlushError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCertification(w http.ResponseWriter, r *http.Request, sessionID, checklistID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req visitflow.CertificationInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	status, err := s.flow.SetCertification(r.Context(), sessionID, checklistID, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cert_status": status})
}

// handleCompletion：GET 只做校验，POST 执行关单。
// 校验不通过时 POST 返回 409 + 阻塞明细（UI 直接定位到首个未决项）。
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request, sessionID, checklistID string) {
	switch r.Method {
	case http.MethodGet:
		res, err := s.flow.EvaluateCompletion(r.Context(), sessionID, checklistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case http.MethodPost:
		res, cl, err := s.flow.CompleteChecklist(r.Context(), sessionID, checklistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !res.CanComplete {
			writeJSON(w, http.StatusConflict, res)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"result":    res,
			"checklist": cl,
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChecklistRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/checklists/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	checklistID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		s.handleChecklistOverview(w, r, checklistID)
	case "audits":
		s.handleChecklistAudits(w, r, checklistID)
	case "verify":
		s.handleChecklistVerify(w, r, checklistID)
	case "requests":
		s.handleChecklistRequests(w, r, checklistID)
	case "documents":
		s.handleChecklistDocuments(w, r, checklistID)
	case "exports":
		// /api/checklists/{id}/exports/{kind}
		//
		// 目前支持：
		// - POST /api/checklists/{id}/exports/visit-zip
		restParts := []string{}
		if len(parts) > 2 {
			restParts = parts[2:]
		}
		s.handleChecklistExports(w, r, checklistID, restParts)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleChecklistOverview(w http.ResponseWriter, r *http.Request, checklistID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ov, err := s.store.GetChecklistOverview(r.Context(), checklistID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ov == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("checklist not found: %s", checklistID))
		return
	}

	answers, err := s.store.ListAnswers(r.Context(), checklistID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overview": ov,
		"answers":  answers,
	})
}

func (s *Server) handleChecklistAudits(w http.ResponseWriter, r *http.Request, checklistID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 500)
	logs, err := s.store.ListAuditLogs(r.Context(), checklistID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": logs})
}

// handleChecklistVerify 对保养单审计链做强校验（连续性 + 重算 hash）。
// 用于发现“数据库被手工改动”的情况。
func (s *Server) handleChecklistVerify(w http.ResponseWriter, r *http.Request, checklistID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	logs, err := s.store.ListAuditLogs(r.Context(), checklistID, 5000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, auditverify.VerifyAuditLogs(logs))
}

func (s *Server) handleChecklistRequests(w http.ResponseWriter, r *http.Request, checklistID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows, err := s.store.ListServiceRequestsByChecklist(r.Context(), checklistID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": rows})
}

func (s *Server) handleChecklistDocuments(w http.ResponseWriter, r *http.Request, checklistID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows, err := s.store.ListDocumentsByChecklist(r.Context(), checklistID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": rows})
}

func (s *Server) handleChecklistExports(w http.ResponseWriter, r *http.Request, checklistID string, parts []string) {
	if len(parts) < 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	kind := strings.TrimSpace(parts[0])
	switch kind {
	case "visit-zip":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		type reqBody struct {
			Operator string `json:"operator,omitempty"`
			Note     string `json:"note,omitempty"`
		}
		var req reqBody
		_ = json.NewDecoder(r.Body).Decode(&req)

		res, err := visitexport.GenerateVisitZip(r.Context(), s.store, s.blobs, visitexport.ZipOptions{
			ChecklistID:  checklistID,
			DBPath:       s.opts.DBPath,
			EvidenceRoot: s.opts.EvidenceRoot,
			CatalogPath:  s.opts.CatalogPath,
			Operator:     strings.TrimSpace(req.Operator),
			Note:         strings.TrimSpace(req.Note),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	rest = strings.Trim(rest, "/")
	parts := strings.Split(rest, "/")
	if len(parts) < 1 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	documentID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		info, err := s.store.GetDocumentByID(r.Context(), documentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if info == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("document not found: %s", documentID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": info})
	case "download":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		info, err := s.store.GetDocumentByID(r.Context(), documentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if info == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("document not found: %s", documentID))
			return
		}
		serveFile(w, r, info.FilePath, "document_"+documentID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleUploadSignature 接收客户签名图片（multipart），返回 blob 引用。
// 签名收尾请求携带该引用。
func (s *Server) handleUploadSignature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	saved, err := s.blobs.Save("signature", ext, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ref":        saved.Ref,
		"sha256":     saved.SHA256,
		"size_bytes": saved.Size,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
