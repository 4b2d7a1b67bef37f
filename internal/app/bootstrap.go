package app

import (
	"os"

	"github.com/joho/godotenv"
)

// 构建信息，由 -ldflags 注入；默认值用于本地开发。
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Config 存放应用级默认路径配置。
type Config struct {
	DBPath       string
	CatalogPath  string
	EvidenceRoot string
	ListenAddr   string
}

// DefaultConfig 返回本地开发环境的默认配置。
func DefaultConfig() Config {
	return Config{
		DBPath:       "data/liftops.db",
		CatalogPath:  "catalog/checklist_catalog.template.yaml",
		EvidenceRoot: "data/evidence",
		ListenAddr:   "127.0.0.1:8787",
	}
}

// LoadConfig 在默认配置之上叠加环境变量（.env 不存在也不报错）。
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.DBPath = getEnv("LIFTOPS_DB_PATH", cfg.DBPath)
	cfg.CatalogPath = getEnv("LIFTOPS_CATALOG_PATH", cfg.CatalogPath)
	cfg.EvidenceRoot = getEnv("LIFTOPS_EVIDENCE_ROOT", cfg.EvidenceRoot)
	cfg.ListenAddr = getEnv("LIFTOPS_LISTEN_ADDR", cfg.ListenAddr)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
