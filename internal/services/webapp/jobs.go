package webapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"liftops/internal/platform/id"
	"liftops/internal/services/signing"
)

type jobManager struct {
	mu   sync.Mutex
	jobs map[string]*signSessionJob
}

func newJobManager() *jobManager {
	return &jobManager{jobs: make(map[string]*signSessionJob)}
}

type signSessionJob struct {
	JobID      string `json:"job_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"` // running|success|failed
	CreatedAt  int64  `json:"created_at"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`

	// Stage/Progress/Logs 是给前端“签名进度”用的轻量字段：
	// 签名收尾是串行流程（绑定签名 -> 派生工单 -> 逐单导出 PDF），
	// 只需要让 UI 展示当前阶段和实时日志。
	Stage    string       `json:"stage,omitempty"` // signing|exporting|finished
	Progress int          `json:"progress,omitempty"`
	Logs     []jobLogLine `json:"logs,omitempty"`

	SessionID string `json:"session_id,omitempty"`

	Result *signing.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type jobLogLine struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

func (m *jobManager) put(job *signSessionJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job
}

func (m *jobManager) getCopy(jobID string) (signSessionJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j == nil {
		return signSessionJob{}, false
	}
	cpy := *j
	// 深拷贝 slice，避免解锁后后台 goroutine append 导致 data race。
	if len(cpy.Logs) > 0 {
		tmp := make([]jobLogLine, len(cpy.Logs))
		copy(tmp, cpy.Logs)
		cpy.Logs = tmp
	}
	return cpy, true
}

func (m *jobManager) listCopies() []signSessionJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]signSessionJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j == nil {
			continue
		}
		cpy := *j
		if len(cpy.Logs) > 0 {
			tmp := make([]jobLogLine, len(cpy.Logs))
			copy(tmp, cpy.Logs)
			cpy.Logs = tmp
		}
		out = append(out, cpy)
	}
	return out
}

type signSessionRequest struct {
	SignerName string `json:"signer_name"`
	ImageRef   string `json:"image_ref"`
}

// handleJobSignSession 启动签名收尾后台任务：
// 一次客户签名覆盖会话内全部 completed 保养单，随后逐单派生工单并导出 PDF。
// PDF 导出可能较慢（字体探测/多张单），因此走异步 job，UI 轮询进度。
func (s *Server) handleJobSignSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req signSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	signerName := strings.TrimSpace(req.SignerName)
	imageRef := strings.TrimSpace(req.ImageRef)
	if signerName == "" || imageRef == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("signer_name and image_ref are required"))
		return
	}
	if !s.blobs.Exists(imageRef) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("signature image not uploaded: %s", imageRef))
		return
	}
	if _, ok := s.flow.Session(sessionID); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("visit session not found: %s", sessionID))
		return
	}

	jobID := id.New("job")
	now := time.Now().Unix()
	job := &signSessionJob{
		JobID:     jobID,
		Kind:      "sign_session",
		Status:    "running",
		CreatedAt: now,
		StartedAt: now,
		Stage:     "signing",
		Progress:  1,
		SessionID: sessionID,
		Logs: []jobLogLine{{
			Time:    now,
			Message: "job created",
		}},
	}
	s.jobs.put(job)

	// 先返回一份拷贝，避免后台 goroutine 修改同一对象导致数据竞争。
	resp := *job

	go func() {
		ctx := context.Background()

		update := func(stage string, progress int, msg string) {
			s.jobs.mu.Lock()
			defer s.jobs.mu.Unlock()
			if stage != "" {
				job.Stage = stage
			}
			if progress >= 0 {
				job.Progress = progress
			}
			if strings.TrimSpace(msg) != "" {
				job.Logs = append(job.Logs, jobLogLine{
					Time:    time.Now().Unix(),
					Message: msg,
				})
			}
		}

		update("signing", 10, "sign session starting")
		res, err := s.flow.SignSession(ctx, sessionID, signerName, imageRef)

		s.jobs.mu.Lock()
		defer s.jobs.mu.Unlock()
		job.Stage = "finished"
		job.Progress = 100
		job.FinishedAt = time.Now().Unix()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			job.Logs = append(job.Logs, jobLogLine{Time: time.Now().Unix(), Message: "sign session failed: " + err.Error()})
			return
		}
		job.Result = res
		// 导出失败不影响签名结论：签名成功即 success，失败数在 result 中。
		job.Status = "success"
		job.Logs = append(job.Logs, jobLogLine{
			Time: time.Now().Unix(),
			Message: fmt.Sprintf("sign session finished: signed=%d requests=%d export_failures=%d",
				len(res.Signed), res.RequestsCreated, res.ExportFailures),
		})
	}()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		// 简单返回全部 job（现场单机用，后续可加 limit/排序）
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs": s.jobs.listCopies(),
		})
		return
	}

	job, ok := s.jobs.getCopy(rest)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job not found: %s", rest))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
