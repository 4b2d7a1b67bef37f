package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"liftops/internal/adapters/blob"
	"liftops/internal/adapters/catalog"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/app"
	"liftops/internal/services/auditverify"
	"liftops/internal/services/checklistpdf"
	"liftops/internal/services/visitexport"
	"liftops/internal/services/webapp"

	_ "modernc.org/sqlite"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由：migrate / catalog / query / export / verify / serve。
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "catalog":
		return runCatalog(ctx, args[1:])
	case "query":
		return runQuery(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "verify":
		return runVerify(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runMigrate 执行 SQLite 迁移，确保数据库结构完整。
func runMigrate(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	m := sqliteadapter.NewMigrator(db)
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	fmt.Printf("migrations applied successfully: db=%s\n", *dbPath)
	return nil
}

// runCatalog 是二级命令路由，目前支持 catalog validate。
func runCatalog(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printCatalogUsage()
		return nil
	}

	switch args[0] {
	case "validate":
		return runCatalogValidate(ctx, args[1:])
	default:
		printCatalogUsage()
		return fmt.Errorf("unknown catalog command: %s", args[0])
	}
}

// runCatalogValidate 用于问题目录文件合法性检查，输出版本与哈希摘要。
func runCatalogValidate(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("catalog validate", flag.ContinueOnError)
	catalogPath := fs.String("catalog", cfg.CatalogPath, "question catalog file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := catalog.NewLoader(*catalogPath).Load(ctx)
	if err != nil {
		return err
	}

	monthly, quarterly, semestral, hydraulic := 0, 0, 0, 0
	for _, q := range loaded.Questions {
		switch q.Tier {
		case "monthly":
			monthly++
		case "quarterly":
			quarterly++
		case "semestral":
			semestral++
		}
		if q.HydraulicOnly {
			hydraulic++
		}
	}

	fmt.Println("catalog validation passed")
	fmt.Printf("version=%s questions=%d sha256=%s\n", loaded.Bundle.Version, len(loaded.Questions), loaded.SHA256)
	fmt.Printf("tiers: monthly=%d quarterly=%d semestral=%d hydraulic_only=%d\n", monthly, quarterly, semestral, hydraulic)
	fmt.Printf("critical_sections=%d\n", len(loaded.CriticalSections))
	return nil
}

// runQuery 是查询命令路由（保养单摘要/派生工单）。
func runQuery(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printQueryUsage()
		return nil
	}
	switch args[0] {
	case "checklist":
		return runQueryChecklist(ctx, args[1:])
	default:
		printQueryUsage()
		return fmt.Errorf("unknown query command: %s", args[0])
	}
}

// runQueryChecklist 查询保养单摘要、答案与派生工单，适合巡检后复核。
func runQueryChecklist(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("query checklist", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	checklistID := fs.String("checklist-id", "", "checklist id (required)")
	asJSON := fs.Bool("json", true, "print as json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*checklistID) == "" {
		return fmt.Errorf("--checklist-id is required")
	}

	db, store, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ov, err := store.GetChecklistOverview(ctx, strings.TrimSpace(*checklistID))
	if err != nil {
		return err
	}
	if ov == nil {
		return fmt.Errorf("checklist not found: %s", *checklistID)
	}
	answers, err := store.ListAnswers(ctx, ov.ChecklistID)
	if err != nil {
		return err
	}
	requests, err := store.ListServiceRequestsByChecklist(ctx, ov.ChecklistID)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(map[string]any{
			"overview": ov,
			"answers":  answers,
			"requests": requests,
		})
	}

	fmt.Printf("checklist_id=%s status=%s folio=%s period=%02d/%d\n", ov.ChecklistID, ov.Status, ov.Folio, ov.Month, ov.Year)
	fmt.Printf("answers=%d rejected=%d requests=%d documents=%d\n", ov.AnswerCount, ov.RejectedCount, ov.RequestCount, ov.DocumentCount)
	for _, req := range requests {
		prio := "normal"
		if req.Critical {
			prio = "high"
		}
		fmt.Printf("request_id=%s ordinal=%d section=%s priority=%s\n", req.ID, req.Ordinal, req.Section, prio)
	}
	return nil
}

// runExport 是导出命令路由：保养单 PDF / 巡访交付包 ZIP。
func runExport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printExportUsage()
		return nil
	}
	switch args[0] {
	case "checklist-pdf":
		return runExportChecklistPDF(ctx, args[1:])
	case "visit-zip":
		return runExportVisitZip(ctx, args[1:])
	default:
		printExportUsage()
		return fmt.Errorf("unknown export command: %s", args[0])
	}
}

func runExportChecklistPDF(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("export checklist-pdf", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	catalogPath := fs.String("catalog", cfg.CatalogPath, "question catalog file")
	checklistID := fs.String("checklist-id", "", "checklist id (required)")
	operator := fs.String("operator", "system", "operator id or name")
	note := fs.String("note", "", "export note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*checklistID) == "" {
		return fmt.Errorf("--checklist-id is required")
	}

	db, store, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	loaded, err := catalog.NewLoader(*catalogPath).Load(ctx)
	if err != nil {
		return err
	}

	res, err := checklistpdf.GenerateChecklistPDF(ctx, store, loaded, checklistpdf.Options{
		ChecklistID: strings.TrimSpace(*checklistID),
		OutputDir:   filepath.Join(filepath.Dir(*dbPath), "documents"),
		Operator:    strings.TrimSpace(*operator),
		Note:        strings.TrimSpace(*note),
	})
	if err != nil {
		return err
	}

	fmt.Println("checklist pdf export completed")
	fmt.Printf("checklist_id=%s document_id=%s\n", strings.TrimSpace(*checklistID), res.DocumentID)
	fmt.Printf("pdf=%s\n", res.PDFPath)
	fmt.Printf("pdf_sha256=%s\n", res.PDFSHA256)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

func runExportVisitZip(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("export visit-zip", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	evidenceRoot := fs.String("evidence-dir", cfg.EvidenceRoot, "evidence root directory")
	catalogPath := fs.String("catalog", cfg.CatalogPath, "question catalog file")
	checklistID := fs.String("checklist-id", "", "checklist id (required)")
	operator := fs.String("operator", "system", "operator id or name")
	note := fs.String("note", "", "export note")
	outDir := fs.String("out-dir", "", "export output directory (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*checklistID) == "" {
		return fmt.Errorf("--checklist-id is required")
	}

	db, store, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := visitexport.GenerateVisitZip(ctx, store, blob.NewStore(*evidenceRoot), visitexport.ZipOptions{
		ChecklistID:  strings.TrimSpace(*checklistID),
		DBPath:       *dbPath,
		EvidenceRoot: *evidenceRoot,
		CatalogPath:  *catalogPath,
		Operator:     strings.TrimSpace(*operator),
		Note:         strings.TrimSpace(*note),
		ExportDir:    strings.TrimSpace(*outDir),
	})
	if err != nil {
		return err
	}

	fmt.Println("visit zip export completed")
	fmt.Printf("checklist_id=%s document_id=%s\n", res.ChecklistID, res.DocumentID)
	fmt.Printf("zip=%s\n", res.ZipPath)
	fmt.Printf("zip_sha256=%s\n", res.ZipSHA256)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

// runVerify 是校验命令路由，目前支持 verify audits。
func runVerify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printVerifyUsage()
		return nil
	}
	switch args[0] {
	case "audits":
		return runVerifyAudits(ctx, args[1:])
	default:
		printVerifyUsage()
		return fmt.Errorf("unknown verify command: %s", args[0])
	}
}

// runVerifyAudits 对保养单审计链做强校验（连续性 + 重算 hash）。
func runVerifyAudits(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("verify audits", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	checklistID := fs.String("checklist-id", "", "checklist id (required)")
	asJSON := fs.Bool("json", false, "print full result as json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*checklistID) == "" {
		return fmt.Errorf("--checklist-id is required")
	}

	db, store, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logs, err := store.ListAuditLogs(ctx, strings.TrimSpace(*checklistID), 5000)
	if err != nil {
		return err
	}

	res := auditverify.VerifyAuditLogs(logs)
	if *asJSON {
		return printJSON(res)
	}

	fmt.Printf("audit chain verify: ok=%v total=%d failed=%d prev_hash_failed=%d chain_hash_failed=%d\n",
		res.OK, res.Total, res.Failed, res.PrevHashFailed, res.ChainHashFailed)
	for _, f := range res.Failures {
		fmt.Printf("failure: index=%d event_id=%s message=%s\n", f.Index, f.EventID, f.Message)
	}
	if !res.OK {
		return fmt.Errorf("audit chain verification failed")
	}
	return nil
}

// runServe 启动内置 Web UI + API，便于“安装即用”的现场体验。
func runServe(ctx context.Context, args []string) error {
	cfg := app.LoadConfig()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	catalogPath := fs.String("catalog", cfg.CatalogPath, "question catalog file")
	evidenceRoot := fs.String("evidence-dir", cfg.EvidenceRoot, "evidence root directory")
	listen := fs.String("listen", cfg.ListenAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// 支持 Ctrl+C 优雅退出。
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return webapp.Run(sigCtx, webapp.Options{
		DBPath:       *dbPath,
		CatalogPath:  *catalogPath,
		EvidenceRoot: *evidenceRoot,
		ListenAddr:   *listen,
	})
}

func openStore(ctx context.Context, dbPath string) (*sql.DB, *sqliteadapter.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	migrator := sqliteadapter.NewMigrator(db)
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, sqliteadapter.NewStore(db), nil
}

// printUsage 输出一级命令帮助。
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  liftops-cli migrate [--db data/liftops.db]")
	fmt.Println("  liftops-cli catalog validate [--catalog catalog/checklist_catalog.template.yaml]")
	fmt.Println("  liftops-cli query checklist --checklist-id CHK_ID [--db data/liftops.db] [--json=true]")
	fmt.Println("  liftops-cli export checklist-pdf --checklist-id CHK_ID [--db data/liftops.db] [--catalog path]")
	fmt.Println("  liftops-cli export visit-zip --checklist-id CHK_ID [--db data/liftops.db] [--evidence-dir data/evidence] [--out-dir path]")
	fmt.Println("  liftops-cli verify audits --checklist-id CHK_ID [--db data/liftops.db] [--json]")
	fmt.Println("  liftops-cli serve [--listen 127.0.0.1:8787] [--db data/liftops.db] [--catalog path] [--evidence-dir data/evidence]")
}

// printCatalogUsage 输出 catalog 子命令帮助。
func printCatalogUsage() {
	fmt.Println("Usage:")
	fmt.Println("  liftops-cli catalog validate [--catalog path]")
}

// printQueryUsage 输出 query 子命令帮助。
func printQueryUsage() {
	fmt.Println("Usage:")
	fmt.Println("  liftops-cli query checklist --checklist-id id [--db path] [--json=true]")
}

func printExportUsage() {
	fmt.Println("Usage:")
	fmt.Println("  liftops-cli export checklist-pdf --checklist-id CHK_ID [--db path] [--catalog path] [--operator name] [--note text]")
	fmt.Println("  liftops-cli export visit-zip --checklist-id CHK_ID [--db path] [--evidence-dir path] [--catalog path] [--out-dir path]")
}

func printVerifyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  liftops-cli verify audits --checklist-id CHK_ID [--db path] [--json]")
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
