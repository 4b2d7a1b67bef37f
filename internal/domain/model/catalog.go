package model

// QuestionCatalogBundle 是保养问题目录文件的顶层结构。
type QuestionCatalogBundle struct {
	Version     string            `yaml:"version"`
	BundleType  string            `yaml:"bundle_type"`
	Maintainer  string            `yaml:"maintainer"`
	Description string            `yaml:"description"`
	Meta        CatalogMeta       `yaml:"meta"`
	Questions   []CatalogQuestion `yaml:"questions"`
}

// CatalogMeta 保存目录文件的全局元信息。
// CriticalSections 列出“高危区段”：这些区段的被拒答案会派生高优先级工单。
type CatalogMeta struct {
	CriticalSections []string `yaml:"critical_sections"`
	Notes            []string `yaml:"notes"`
}

// CatalogQuestion 定义目录文件中的一条问题。
type CatalogQuestion struct {
	Ordinal       int    `yaml:"ordinal"`
	Section       string `yaml:"section"`
	Text          string `yaml:"text"`
	Tier          string `yaml:"tier"` // monthly|quarterly|semestral
	HydraulicOnly bool   `yaml:"hydraulic_only"`
}
