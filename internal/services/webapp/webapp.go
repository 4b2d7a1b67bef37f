package webapp

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"liftops/internal/adapters/blob"
	"liftops/internal/adapters/catalog"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/app"
	"liftops/internal/services/visitflow"

	_ "modernc.org/sqlite"
)

// 注意：
// - go:embed 的路径必须相对当前包目录，且不能包含 ".."
// - 前端 build 输出拷贝到 internal/services/webapp/ui_dist/，二进制即可离线分发（解压即用）。
// - ui_dist/ 至少要有一个文件（本仓库已放置占位 index.html），否则 go:embed 会因“无匹配文件”而编译失败。
//
//go:embed ui_dist
var uiFS embed.FS

// Options 定义 Web UI + API 服务启动参数。
// 目标：现场单机使用优先（默认不做鉴权，监听回环地址）。
type Options struct {
	DBPath       string
	CatalogPath  string
	EvidenceRoot string

	ListenAddr string
}

// Run 启动内置 Web UI：
// - 提供巡访会话、保养单、答案、认证、签名收尾接口
// - 提供照片/签名上传与文档下载接口
// - 提供审计链校验与巡访 ZIP 导出接口
func Run(ctx context.Context, opts Options) error {
	defaults := app.DefaultConfig()
	if opts.DBPath == "" {
		opts.DBPath = defaults.DBPath
	}
	if opts.CatalogPath == "" {
		opts.CatalogPath = defaults.CatalogPath
	}
	if opts.EvidenceRoot == "" {
		opts.EvidenceRoot = defaults.EvidenceRoot
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = defaults.ListenAddr
	}

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(opts.EvidenceRoot, 0o755); err != nil {
		return fmt.Errorf("create evidence directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	migrator := sqliteadapter.NewMigrator(db)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	loaded, err := catalog.NewLoader(opts.CatalogPath).Load(ctx)
	if err != nil {
		return fmt.Errorf("load question catalog: %w", err)
	}

	sub, err := fs.Sub(uiFS, "ui_dist")
	if err != nil {
		return fmt.Errorf("sub ui fs: %w", err)
	}

	store := sqliteadapter.NewStore(db)
	docDir := filepath.Join(filepath.Dir(opts.DBPath), "documents")

	s := &Server{
		opts:   opts,
		db:     db,
		store:  store,
		blobs:  blob.NewStore(opts.EvidenceRoot),
		loaded: loaded,
		flow:   visitflow.NewService(store, loaded, docDir),
		ui:     sub,
		jobs:   newJobManager(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	httpServer := &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("webapp listening: http://%s\n", opts.ListenAddr)
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
