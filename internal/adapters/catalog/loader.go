package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"os"

	"liftops/internal/domain/model"

	"gopkg.in/yaml.v3"
)

// Loader 负责从磁盘读取并校验保养问题目录文件。
type Loader struct {
	CatalogFile string
}

// LoadedCatalog 是加载后的问题目录与其文件哈希，用于留痕与版本确认。
// Questions 已按 ordinal 升序排好；CriticalSections 已归一化为小写集合。
type LoadedCatalog struct {
	Bundle           model.QuestionCatalogBundle
	Questions        []model.ChecklistQuestion
	CriticalSections map[string]struct{}
	SHA256           string
}

func NewLoader(catalogFile string) *Loader {
	return &Loader{CatalogFile: catalogFile}
}

// Load 读取目录文件并执行基础结构校验。
// 目录是只读数据，进程内可整份缓存（上层自行决定缓存策略）。
func (l *Loader) Load(ctx context.Context) (*LoadedCatalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("read question catalog: %w", err)
	}

	var bundle model.QuestionCatalogBundle
	if err := yaml.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("parse question catalog: %w", err)
	}
	if err := validateCatalog(bundle); err != nil {
		return nil, err
	}

	questions := make([]model.ChecklistQuestion, 0, len(bundle.Questions))
	for _, q := range bundle.Questions {
		questions = append(questions, model.ChecklistQuestion{
			Ordinal:       q.Ordinal,
			Section:       strings.TrimSpace(q.Section),
			Text:          strings.TrimSpace(q.Text),
			Tier:          model.FrequencyTier(strings.ToLower(strings.TrimSpace(q.Tier))),
			HydraulicOnly: q.HydraulicOnly,
		})
	}
	// 目录顺序以 ordinal 为准，与文件内书写顺序解耦。
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Ordinal < questions[j].Ordinal
	})

	critical := make(map[string]struct{}, len(bundle.Meta.CriticalSections))
	for _, s := range bundle.Meta.CriticalSections {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			critical[s] = struct{}{}
		}
	}

	sum := sha256.Sum256(raw)

	return &LoadedCatalog{
		Bundle:           bundle,
		Questions:        questions,
		CriticalSections: critical,
		SHA256:           hex.EncodeToString(sum[:]),
	}, nil
}

// IsCriticalSection 判断一个区段是否属于高危区段（大小写不敏感）。
func (c *LoadedCatalog) IsCriticalSection(section string) bool {
	_, ok := c.CriticalSections[strings.ToLower(strings.TrimSpace(section))]
	return ok
}

// validateCatalog 检查目录文件的完整性与唯一性。
func validateCatalog(bundle model.QuestionCatalogBundle) error {
	if strings.TrimSpace(bundle.Version) == "" {
		return errors.New("question catalog: version is required")
	}
	if strings.TrimSpace(bundle.BundleType) == "" {
		return errors.New("question catalog: bundle_type is required")
	}
	if len(bundle.Questions) == 0 {
		return errors.New("question catalog: questions is empty")
	}

	seen := make(map[int]struct{}, len(bundle.Questions))
	for _, q := range bundle.Questions {
		if q.Ordinal <= 0 {
			return fmt.Errorf("question catalog: ordinal must be positive: %d", q.Ordinal)
		}
		if _, ok := seen[q.Ordinal]; ok {
			return fmt.Errorf("question catalog: duplicate ordinal: %d", q.Ordinal)
		}
		seen[q.Ordinal] = struct{}{}

		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question catalog: question text is required: ordinal %d", q.Ordinal)
		}
		if strings.TrimSpace(q.Section) == "" {
			return fmt.Errorf("question catalog: section is required: ordinal %d", q.Ordinal)
		}

		switch model.FrequencyTier(strings.ToLower(strings.TrimSpace(q.Tier))) {
		case model.TierMonthly, model.TierQuarterly, model.TierSemestral:
		default:
			return fmt.Errorf("question catalog: unknown tier %q: ordinal %d", q.Tier, q.Ordinal)
		}
	}

	return nil
}
