package checklistpdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"liftops/internal/adapters/catalog"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/domain/model"
	"liftops/internal/platform/hash"

	"github.com/phpdave11/gofpdf"
)

// 保养单 PDF（checklist_pdf）
//
// 设计目标（当前版本：现场交付优先）：
// - 先“能用”：输出一份可打印、可长期归档的保养单 PDF
// - 先“可追溯”：产物登记到 documents 表，并写入 audit_logs 留痕
// - 先“可扩展”：后续可补充公司抬头、双签栏、二维码校验等
//
// 注意：
// - 题目与观察说明是西语文本，必须尽量加载 UTF-8 字体；
//   加载失败时回退替换非 ASCII 字符并在 warnings 中说明。

type Options struct {
	ChecklistID string
	OutputDir   string
	Operator    string
	Note        string
}

type Result struct {
	DocumentID  string   `json:"document_id"`
	PDFPath     string   `json:"pdf_path"`
	PDFSHA256   string   `json:"pdf_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	GeneratedAt int64    `json:"generated_at"`
}

const pdfGeneratorVer = "checklistpdf-0.1.0"

// GenerateChecklistPDF 生成保养单 PDF，并在 documents 表登记为 doc_type=checklist_pdf。
func GenerateChecklistPDF(ctx context.Context, store *sqliteadapter.Store, loaded *catalog.LoadedCatalog, opts Options) (*Result, error) {
	checklistID := strings.TrimSpace(opts.ChecklistID)
	if checklistID == "" {
		return nil, fmt.Errorf("checklist_id is required")
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		return nil, fmt.Errorf("output_dir is required")
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}

	cl, err := store.GetChecklist(ctx, checklistID)
	if err != nil {
		return nil, fmt.Errorf("get checklist: %w", err)
	}
	if cl == nil {
		return nil, fmt.Errorf("checklist not found: %s", checklistID)
	}

	warnings := []string{}

	answers, err := store.ListAnswers(ctx, checklistID)
	if err != nil {
		warnings = append(warnings, "list answers failed: "+err.Error())
		answers = []model.ChecklistAnswer{}
	}
	requests, err := store.ListServiceRequestsByChecklist(ctx, checklistID)
	if err != nil {
		warnings = append(warnings, "list service requests failed: "+err.Error())
		requests = []model.DerivedServiceRequest{}
	}

	var sig *model.SignatureRecord
	if cl.SignatureID != "" {
		sig, err = store.GetSignature(ctx, cl.SignatureID)
		if err != nil {
			warnings = append(warnings, "get signature failed: "+err.Error())
		}
	}

	audits, err := store.ListAuditLogs(ctx, checklistID, 5000)
	if err != nil {
		warnings = append(warnings, "list audits failed: "+err.Error())
		audits = []model.AuditLog{}
	}
	lastAuditHash := ""
	if len(audits) > 0 {
		lastAuditHash = audits[len(audits)-1].ChainHash
	}

	now := time.Now().Unix()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir documents: %w", err)
	}
	pdfPath := filepath.Join(outputDir, fmt.Sprintf("%s_checklist_%d.pdf", checklistID, now))

	pdf, utf8OK := buildPDF(*cl, loaded, answers, requests, sig, operator, opts.Note, lastAuditHash, warnings, now)
	if !utf8OK {
		warnings = append(warnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, _, err := hash.File(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 pdf: %w", err)
	}

	documentID, err := store.SaveDocument(ctx, checklistID, "checklist_pdf", pdfPath, sum, pdfGeneratorVer, "ready")
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	_ = store.AppendAudit(ctx, checklistID, "export", "checklist_pdf", "success", operator, "checklistpdf.GenerateChecklistPDF", map[string]any{
		"pdf":          pdfPath,
		"pdf_sha256":   sum,
		"answer_count": len(answers),
		"note":         strings.TrimSpace(opts.Note),
		"warnings":     warnings,
	})

	return &Result{
		DocumentID:  documentID,
		PDFPath:     pdfPath,
		PDFSHA256:   sum,
		Warnings:    warnings,
		GeneratedAt: now,
	}, nil
}

func buildPDF(
	cl model.Checklist,
	loaded *catalog.LoadedCatalog,
	answers []model.ChecklistAnswer,
	requests []model.DerivedServiceRequest,
	sig *model.SignatureRecord,
	operator string,
	note string,
	lastAuditHash string,
	warnings []string,
	generatedAt int64,
) (*gofpdf.Fpdf, bool) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("LiftOps - Checklist de Mantenimiento", false)

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	pdf.AddPage()

	// 标题
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "LiftOps - Checklist de Mantenimiento", "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", fmtTime(generatedAt)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Operator: %s", safeText(operator, utf8OK)), "", 1, "L", false, 0, "")
	if strings.TrimSpace(note) != "" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Note: %s", safeText(note, utf8OK)), "", "L", false)
	}
	pdf.Ln(2)

	// 基本信息
	sectionTitle(pdf, fontFamily, "1. Datos de la visita")
	kv(pdf, fontFamily, utf8OK, "Checklist ID", cl.ID)
	kv(pdf, fontFamily, utf8OK, "Folio", cl.Folio)
	kv(pdf, fontFamily, utf8OK, "Cliente", cl.ClientID)
	kv(pdf, fontFamily, utf8OK, "Equipo", cl.EquipmentID)
	kv(pdf, fontFamily, utf8OK, "Técnico", cl.TechnicianID)
	kv(pdf, fontFamily, utf8OK, "Periodo", fmt.Sprintf("%02d/%d", cl.Month, cl.Year))
	kv(pdf, fontFamily, utf8OK, "Tipo", equipmentKind(cl.Hydraulic))
	kv(pdf, fontFamily, utf8OK, "Estado", string(cl.Status))
	if strings.TrimSpace(lastAuditHash) != "" {
		kv(pdf, fontFamily, utf8OK, "Audit Chain Last Hash", lastAuditHash)
	}
	pdf.Ln(2)

	// 认证状态
	sectionTitle(pdf, fontFamily, "2. Certificación anual")
	if cl.CertDatesUnreadable {
		kv(pdf, fontFamily, utf8OK, "Estado", "fechas ilegibles en la placa")
	} else {
		kv(pdf, fontFamily, utf8OK, "Última certificación", cl.LastCertifiedAt)
		if cl.NextCertMonth > 0 {
			kv(pdf, fontFamily, utf8OK, "Próxima certificación", fmt.Sprintf("%02d/%d", cl.NextCertMonth, cl.NextCertYear))
		}
		kv(pdf, fontFamily, utf8OK, "Estado", string(cl.CertStatus))
	}
	pdf.Ln(2)

	// Warnings（缺数据/回退行为显式写入 PDF）
	localWarnings := append([]string{}, warnings...)
	if !utf8OK {
		localWarnings = append(localWarnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if len(localWarnings) > 0 {
		sectionTitle(pdf, fontFamily, "Warnings")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(120, 80, 0)
		for _, w := range localWarnings {
			pdf.MultiCell(0, 4.5, "- "+safeText(w, utf8OK), "", "L", false)
		}
		pdf.Ln(2)
	}

	// 答案明细
	sectionTitle(pdf, fontFamily, "3. Puntos de revisión")
	if len(answers) == 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(sin respuestas)", "", "L", false)
	} else {
		texts := map[int]model.ChecklistQuestion{}
		if loaded != nil {
			for _, q := range loaded.Questions {
				texts[q.Ordinal] = q
			}
		}
		currentSection := ""
		for _, a := range answers {
			q, known := texts[a.Ordinal]
			if known && q.Section != currentSection {
				currentSection = q.Section
				pdf.SetFont(fontFamily, "B", 11)
				pdf.SetTextColor(20, 20, 20)
				pdf.CellFormat(0, 6, safeText(currentSection, utf8OK), "", 1, "L", false, 0, "")
			}

			label := fmt.Sprintf("%d.", a.Ordinal)
			if known {
				label = fmt.Sprintf("%d. %s", a.Ordinal, q.Text)
			}
			pdf.SetFont(fontFamily, "", 10)
			pdf.SetTextColor(30, 30, 30)
			pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s", answerMark(a.Status), safeText(label, utf8OK)), "", "L", false)

			if a.Status == model.AnswerRejected {
				pdf.SetFont(fontFamily, "", 9)
				pdf.SetTextColor(150, 40, 40)
				pdf.MultiCell(0, 4.5, fmt.Sprintf("Observación: %s", safeText(a.Observation, utf8OK)), "", "L", false)
				if strings.TrimSpace(a.PhotoRef1) != "" {
					pdf.SetTextColor(40, 40, 40)
					pdf.MultiCell(0, 4.5, fmt.Sprintf("Evidencia: %s %s", safeText(a.PhotoRef1, utf8OK), safeText(a.PhotoRef2, utf8OK)), "", "L", false)
				}
			}
		}
	}
	pdf.Ln(2)

	// 派生工单
	sectionTitle(pdf, fontFamily, "4. Solicitudes de servicio derivadas")
	if len(requests) == 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(ninguna)", "", "L", false)
	} else {
		for _, r := range requests {
			prio := "normal"
			if r.Critical {
				prio = "ALTA"
			}
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetTextColor(20, 20, 20)
			pdf.MultiCell(0, 5, fmt.Sprintf("%s | punto %d | prioridad %s", safeText(r.Section, utf8OK), r.Ordinal, prio), "", "L", false)
			pdf.SetFont(fontFamily, "", 9)
			pdf.SetTextColor(40, 40, 40)
			pdf.MultiCell(0, 4.5, safeText(r.Description, utf8OK), "", "L", false)
			pdf.Ln(1)
		}
	}
	pdf.Ln(2)

	// 签名
	sectionTitle(pdf, fontFamily, "5. Conformidad del cliente")
	if sig == nil {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(pendiente de firma)", "", "L", false)
	} else {
		kv(pdf, fontFamily, utf8OK, "Firmante", sig.SignerName)
		kv(pdf, fontFamily, utf8OK, "Fecha", fmtTime(sig.SignedAt))
		kv(pdf, fontFamily, utf8OK, "Referencia", sig.ImageRef)
	}

	// 尾注
	pdf.Ln(2)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4.5, "Nota: documento generado por LiftOps. Para el paquete completo de la visita use la exportación ZIP (manifest.json + hashes.sha256).", "", "L", false)

	return pdf, utf8OK
}

func answerMark(status model.AnswerStatus) string {
	switch status {
	case model.AnswerApproved:
		return "OK"
	case model.AnswerRejected:
		return "RECHAZADO"
	case model.AnswerNotApplicable:
		return "N/A"
	default:
		return "PENDIENTE"
	}
}

func equipmentKind(hydraulic bool) string {
	if hydraulic {
		return "hidráulico"
	}
	return "tracción"
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(46, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

func safeText(s string, utf8OK bool) string {
	// gofpdf 内置字体只覆盖 ASCII/Latin；
	// 未加载 UTF-8 字体时替换非 ASCII 字符，保证 PDF 一定能生成。
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

// initPDFUnicodeFont 尝试加载 UTF-8 字体（TrueType），以支持西语重音字符。
//
// 规则：
// 1) 设置了环境变量 LIFTOPS_PDF_FONT 时优先使用该文件路径。
// 2) 否则按常见系统字体路径探测（macOS/Windows/Linux）。
// 3) 加载失败回退到核心字体（Helvetica），由 safeText() 兜底替换非 ASCII 字符。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	candidates := []string{}

	if v := strings.TrimSpace(os.Getenv("LIFTOPS_PDF_FONT")); v != "" {
		candidates = append(candidates, v)
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/System/Library/Fonts/Supplemental/AppleMyungjo.ttf",
			"/System/Library/Fonts/Supplemental/AppleGothic.ttf",
			"/System/Library/Fonts/Hiragino Sans GB.ttc",
			"/System/Library/Fonts/PingFang.ttc",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\arial.ttf`,
			`C:\Windows\Fonts\segoeui.ttf`,
		)
	default:
		// Linux (best effort)
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/noto/NotoSans-Regular.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		)
	}

	for _, p := range candidates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}

		// 即使只有一个字体文件，也注册 B 样式，避免 SetFont(...,"B",...) 报错。
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			// bold 失败不致命：清错后仍可用 regular
			pdf.ClearError()
		}
		return familyName, true
	}

	return "Helvetica", false
}
