package visitexport

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"liftops/internal/adapters/blob"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/app"
	"liftops/internal/domain/model"
	"liftops/internal/platform/hash"
)

// ZipOptions 定义“巡访交付包（ZIP）”生成参数。
//
// 设计目标（内部流转阶段）：
// - 把一张保养单相关的“PDF 产物 + 整改照片 + 客户签名 + 目录文件 + 清单(manifest) + hash 列表”
//   打包到一个 ZIP，供客户交付与内部复核
// - 后续可增强为带时间戳签章的正式交付格式
type ZipOptions struct {
	ChecklistID string

	// DBPath 用于决定导出文件落盘目录（默认写入 db 同级目录下 exports/）。
	DBPath string

	// EvidenceRoot 是照片/签名 blob 的根目录。
	EvidenceRoot string

	// CatalogPath 用于把本次使用的问题目录文件一并带走（可追溯）。
	CatalogPath string

	// Operator/Note 用于审计日志。
	Operator string
	Note     string

	// ExportDir 可选：显式指定导出目录。
	ExportDir string
}

type FileHashEntry struct {
	Path      string `json:"path"`       // ZIP 内路径（使用 "/" 分隔）
	SHA256    string `json:"sha256"`     // 文件内容 SHA-256
	SizeBytes int64  `json:"size_bytes"` // 原始字节数
	Kind      string `json:"kind"`       // document|photo|signature|catalog|manifest
}

type ManifestDocument struct {
	Document model.DocumentInfo `json:"document"`
	ZipPath  string             `json:"zip_path"`
}

type ZipManifest struct {
	Schema      string `json:"schema"`
	GeneratedAt int64  `json:"generated_at"`

	App struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildTime string `json:"build_time"`
	} `json:"app"`

	Checklist *model.ChecklistOverview      `json:"checklist"`
	Answers   []model.ChecklistAnswer       `json:"answers"`
	Requests  []model.DerivedServiceRequest `json:"requests"`
	Signature *model.SignatureRecord        `json:"signature,omitempty"`
	Audits    []model.AuditLog              `json:"audits"`
	Documents []ManifestDocument            `json:"documents"`
	Files     []FileHashEntry               `json:"files"`
	Warnings  []string                      `json:"warnings,omitempty"`
	Note      string                        `json:"note,omitempty"`
	Extra     map[string]any                `json:"extra,omitempty"`
	Stats     map[string]any                `json:"stats,omitempty"`
}

// ZipResult 是一次 ZIP 导出任务的摘要输出。
type ZipResult struct {
	ChecklistID string   `json:"checklist_id"`
	DocumentID  string   `json:"document_id"`
	ZipPath     string   `json:"zip_path"`
	ZipSHA256   string   `json:"zip_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	StartedAt   int64    `json:"started_at"`
	FinishedAt  int64    `json:"finished_at"`
}

const (
	manifestSchemaV1 = "liftops.visit_export_manifest.v1"
	zipGeneratorVer  = "visit-exportzip-0.1.0"
)

// GenerateVisitZip 生成“巡访交付包（ZIP）”并在 documents 表登记为 doc_type=visit_zip。
//
// 输出 ZIP 内容（v1）：
// - manifest.json：保养单/答案/工单/签名/审计/文档的结构化清单
// - hashes.sha256：ZIP 内各文件（除自身）sha256 列表（sha256sum 兼容格式）
// - documents/..：PDF 产物（不包含 visit_zip 自身以避免递归）
// - evidence/..：整改照片与客户签名图片
// - catalog/..：本次使用的问题目录文件
func GenerateVisitZip(ctx context.Context, store *sqliteadapter.Store, blobs *blob.Store, opts ZipOptions) (*ZipResult, error) {
	startedAt := time.Now().Unix()

	checklistID := strings.TrimSpace(opts.ChecklistID)
	if checklistID == "" {
		return nil, fmt.Errorf("checklist_id is required")
	}

	dbPath := strings.TrimSpace(opts.DBPath)
	if dbPath == "" {
		dbPath = app.DefaultConfig().DBPath
	}
	catalogPath := strings.TrimSpace(opts.CatalogPath)
	if catalogPath == "" {
		catalogPath = app.DefaultConfig().CatalogPath
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}

	exportDir := strings.TrimSpace(opts.ExportDir)
	if exportDir == "" {
		// 默认写到 db 同级目录（通常是 data/exports）。
		exportDir = filepath.Join(filepath.Dir(dbPath), "exports")
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	overview, err := store.GetChecklistOverview(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	if overview == nil {
		return nil, fmt.Errorf("checklist not found: %s", checklistID)
	}

	// --- 拉取保养单数据（全部写入 manifest；文件内容只打包 PDF/照片/签名/目录） ---
	answers, err := store.ListAnswers(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	requests, err := store.ListServiceRequestsByChecklist(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	audits, err := store.ListAuditLogs(ctx, checklistID, 5000)
	if err != nil {
		return nil, err
	}
	allDocs, err := store.ListDocumentsByChecklist(ctx, checklistID)
	if err != nil {
		return nil, err
	}

	var sig *model.SignatureRecord
	if overview.SignatureID != "" {
		sig, err = store.GetSignature(ctx, overview.SignatureID)
		if err != nil {
			return nil, err
		}
	}

	// --- 组织需要打进 ZIP 的磁盘文件清单 ---
	type includeSpec struct {
		SrcPath string
		ZipPath string
		Kind    string
	}

	var warnings []string
	var includes []includeSpec

	// documents (skip visit_zip itself to avoid "zip in zip" recursion)
	manifestDocs := make([]ManifestDocument, 0, len(allDocs))
	for _, d := range allDocs {
		if strings.TrimSpace(d.DocType) == "visit_zip" {
			continue
		}
		src := strings.TrimSpace(d.FilePath)
		if src == "" {
			continue
		}
		zipPath := filepath.ToSlash(filepath.Join("documents", filepath.Base(src)))
		includes = append(includes, includeSpec{SrcPath: src, ZipPath: zipPath, Kind: "document"})
		manifestDocs = append(manifestDocs, ManifestDocument{Document: d, ZipPath: zipPath})
	}

	// evidence photos (blob refs from rejected answers)
	addBlob := func(ref, kind string) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		src, err := blobs.Resolve(ref)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("resolve blob %s: %v", ref, err))
			return
		}
		includes = append(includes, includeSpec{
			SrcPath: src,
			ZipPath: filepath.ToSlash(filepath.Join("evidence", ref)),
			Kind:    kind,
		})
	}
	for _, a := range answers {
		addBlob(a.PhotoRef1, "photo")
		addBlob(a.PhotoRef2, "photo")
	}
	if sig != nil {
		addBlob(sig.ImageRef, "signature")
	}

	// catalog (可追溯：把本次使用的目录文件一并带走)
	includes = append(includes, includeSpec{
		SrcPath: catalogPath,
		ZipPath: filepath.ToSlash(filepath.Join("catalog", filepath.Base(catalogPath))),
		Kind:    "catalog",
	})

	// --- 开始写 ZIP ---
	zipName := fmt.Sprintf("%s_visit_export_%d.zip", checklistID, time.Now().Unix())
	zipPath := filepath.Join(exportDir, zipName)
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	defer func() { _ = zw.Close() }()

	var fileHashes []FileHashEntry
	seen := map[string]struct{}{}

	addDiskFile := func(srcPath, zipEntryPath, kind string) {
		if strings.TrimSpace(srcPath) == "" || strings.TrimSpace(zipEntryPath) == "" {
			return
		}
		if _, dup := seen[zipEntryPath]; dup {
			return
		}
		select {
		case <-ctx.Done():
			warnings = append(warnings, "context cancelled")
			return
		default:
		}

		sum, size, err := writeZipFileFromDisk(zw, srcPath, zipEntryPath)
		if err != nil {
			// best-effort：缺失文件不阻断导出，但必须在 manifest 里留下痕迹。
			warnings = append(warnings, fmt.Sprintf("skip file %s -> %s: %v", srcPath, zipEntryPath, err))
			return
		}
		seen[zipEntryPath] = struct{}{}
		fileHashes = append(fileHashes, FileHashEntry{
			Path:      zipEntryPath,
			SHA256:    sum,
			SizeBytes: size,
			Kind:      kind,
		})
	}

	for _, it := range includes {
		addDiskFile(it.SrcPath, it.ZipPath, it.Kind)
	}

	// manifest.json（先写入，再把它的 hash 也记录进 hashes.sha256）
	manifest := ZipManifest{
		Schema:      manifestSchemaV1,
		GeneratedAt: time.Now().Unix(),
		Checklist:   overview,
		Answers:     answers,
		Requests:    requests,
		Signature:   sig,
		Audits:      audits,
		Documents:   manifestDocs,
		Warnings:    warnings,
		Note:        strings.TrimSpace(opts.Note),
		Extra: map[string]any{
			"evidence_root": strings.TrimSpace(opts.EvidenceRoot),
		},
		Stats: map[string]any{
			"answer_count":   len(answers),
			"request_count":  len(requests),
			"audit_count":    len(audits),
			"document_count": len(allDocs),
		},
	}
	manifest.App.Version = app.Version
	manifest.App.Commit = app.Commit
	manifest.App.BuildTime = app.BuildTime

	// 排序：让 manifest 与 hashes.sha256 尽量稳定（便于对比）。
	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	manifest.Files = fileHashes

	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestZipPath := "manifest.json"
	manifestSum, manifestSize, err := writeZipFileFromBytes(zw, manifestZipPath, manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("write manifest to zip: %w", err)
	}
	fileHashes = append(fileHashes, FileHashEntry{
		Path:      manifestZipPath,
		SHA256:    manifestSum,
		SizeBytes: manifestSize,
		Kind:      "manifest",
	})

	// hashes.sha256（sha256sum 兼容格式，默认不包含自身）
	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	hashLines := make([]string, 0, len(fileHashes)+4)
	hashLines = append(hashLines, "# liftops visit export hash list")
	hashLines = append(hashLines, fmt.Sprintf("# generated_at=%d", time.Now().Unix()))
	hashLines = append(hashLines, "# format: <sha256><two spaces><path>")
	for _, fh := range fileHashes {
		hashLines = append(hashLines, fmt.Sprintf("%s  %s", fh.SHA256, fh.Path))
	}
	hashLines = append(hashLines, "")
	hashRaw := []byte(strings.Join(hashLines, "\n"))
	if _, _, err := writeZipFileFromBytes(zw, "hashes.sha256", hashRaw); err != nil {
		return nil, fmt.Errorf("write hashes.sha256 to zip: %w", err)
	}

	// flush/close zip
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close zip file: %w", err)
	}

	zipSum, _, err := hash.File(zipPath)
	if err != nil {
		return nil, fmt.Errorf("hash zip: %w", err)
	}

	// 入库登记（documents 表）+ 审计留痕（audit_logs）
	documentID, err := store.SaveDocument(ctx, checklistID, "visit_zip", zipPath, zipSum, zipGeneratorVer, "ready")
	if err != nil {
		return nil, err
	}
	_ = store.AppendAudit(ctx, checklistID, "export", "visit_zip", "success", operator, "visitexport.GenerateVisitZip", map[string]any{
		"zip_path":   zipPath,
		"zip_sha256": zipSum,
		"warnings":   warnings,
	})

	return &ZipResult{
		ChecklistID: checklistID,
		DocumentID:  documentID,
		ZipPath:     zipPath,
		ZipSHA256:   zipSum,
		Warnings:    warnings,
		StartedAt:   startedAt,
		FinishedAt:  time.Now().Unix(),
	}, nil
}

func writeZipFileFromDisk(zw *zip.Writer, srcPath, zipPath string) (sum string, size int64, err error) {
	fi, err := os.Stat(srcPath)
	if err != nil {
		return "", 0, err
	}
	if fi.IsDir() {
		return "", 0, fmt.Errorf("is a directory")
	}

	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return "", 0, err
	}
	hdr.Name = zipPath
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func writeZipFileFromBytes(zw *zip.Writer, zipPath string, b []byte) (sum string, size int64, err error) {
	hdr := &zip.FileHeader{
		Name:     zipPath,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
