package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"suma_backend/internal/model"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	minLevels   = 4
	maxLevels   = 8
	minSections = 3
	maxSections = 6
)

// CourseInput 用户创建课程时提交的信息
type CourseInput struct {
	Subject         string `json:"subject"`
	LearningGoal    string `json:"learningGoal"`
	ExperienceLevel string `json:"experienceLevel"`
	LearningStyle   string `json:"learningStyle,omitempty"`
	TimeCommitment  string `json:"timeCommitment"`
}

// OutlineItem 是模型返回的关卡或小节大纲
type OutlineItem struct {
	Title       string `json:"title"`
	Order       int    `json:"order"`
	Description string `json:"description"`
}

type CourseCopy struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type CourseMetadata struct {
	Topics        []string `json:"topics"`
	Prerequisites []string `json:"prerequisites"`
	NextSteps     []string `json:"nextSteps"`
}

// CurriculumGenerator 负责课程骨架相关的模型调用
type CurriculumGenerator struct {
	llm LanguageModel
}

func NewCurriculumGenerator(llm LanguageModel) *CurriculumGenerator {
	return &CurriculumGenerator{llm: llm}
}

func (g *CurriculumGenerator) Describe(ctx context.Context, in CourseInput) (*CourseCopy, error) {
	var out CourseCopy
	err := g.llm.GenerateObject(ctx, ObjectRequest{
		System: courseDescriptionSystemPrompt,
		Prompt: courseBrief(in),
		Schema: courseDescriptionSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Description) == "" {
		return nil, fmt.Errorf("%w: empty course description", util.ErrUpstream)
	}
	return &out, nil
}

func (g *CurriculumGenerator) Levels(ctx context.Context, in CourseInput) ([]OutlineItem, error) {
	var out struct {
		Levels []OutlineItem `json:"levels"`
	}
	err := g.llm.GenerateObject(ctx, ObjectRequest{
		System: levelsSystemPrompt,
		Prompt: levelsPrompt(in),
		Schema: levelsSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	return normalizeOutline(out.Levels, minLevels, maxLevels, "levels")
}

func (g *CurriculumGenerator) Sections(ctx context.Context, in CourseInput, level OutlineItem) ([]OutlineItem, error) {
	var out struct {
		Sections []OutlineItem `json:"sections"`
	}
	err := g.llm.GenerateObject(ctx, ObjectRequest{
		System: sectionsSystemPrompt,
		Prompt: sectionsPrompt(in, level),
		Schema: sectionsSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	return normalizeOutline(out.Sections, minSections, maxSections, "sections")
}

func (g *CurriculumGenerator) Metadata(ctx context.Context, in CourseInput, levels []OutlineItem) (*CourseMetadata, error) {
	var out CourseMetadata
	err := g.llm.GenerateObject(ctx, ObjectRequest{
		System: metadataSystemPrompt,
		Prompt: metadataPrompt(in, levels),
		Schema: metadataSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Summarize 把一个块压缩成一两句话，供视频脚本使用
func (g *CurriculumGenerator) Summarize(ctx context.Context, text string) (string, error) {
	return g.llm.GenerateText(ctx, summarizeSystemPrompt, "Summarize this in 1-2 sentences:\n\n"+text)
}

// normalizeOutline 丢弃空标题，条目不足时视为上游失败，超出上限时截断。
// 模型给出的 order 恰好是 1..n 的排列时按原样使用，否则按返回顺序重新编号。
func normalizeOutline(items []OutlineItem, min, max int, what string) ([]OutlineItem, error) {
	kept := make([]OutlineItem, 0, len(items))
	for _, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		if it.Title == "" {
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) < min {
		return nil, fmt.Errorf("%w: expected at least %d %s, got %d", util.ErrUpstream, min, what, len(kept))
	}

	if isPermutation(kept) {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Order < kept[j].Order })
	} else {
		for i := range kept {
			kept[i].Order = i + 1
		}
	}

	if len(kept) > max {
		logger.Log.Warn("Truncating generated outline",
			zap.String("kind", what),
			zap.Int("got", len(kept)),
			zap.Int("max", max),
		)
		kept = kept[:max]
	}
	return kept, nil
}

func isPermutation(items []OutlineItem) bool {
	seen := make([]bool, len(items)+1)
	for _, it := range items {
		if it.Order < 1 || it.Order > len(items) || seen[it.Order] {
			return false
		}
		seen[it.Order] = true
	}
	return true
}

// GeneratedBlock 是模型返回的原始块
type GeneratedBlock struct {
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	Order         int      `json:"order"`
	QuestionType  string   `json:"questionType,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	Hint          string   `json:"hint,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

func (g GeneratedBlock) body() model.BlockBody {
	if model.BlockType(g.Type) == model.BlockQuestion {
		return model.Question{
			Prompt:        g.Content,
			Type:          model.QuestionType(g.QuestionType),
			Options:       g.Options,
			CorrectAnswer: g.CorrectAnswer,
			Hint:          g.Hint,
			Explanation:   g.Explanation,
		}
	}
	return model.Prose{Type: model.BlockType(g.Type), Body: g.Content}
}

// BlockGenerator 检索资料并生成一个小节的学习块
type BlockGenerator struct {
	llm        LanguageModel
	researcher Researcher
}

func NewBlockGenerator(llm LanguageModel, researcher Researcher) *BlockGenerator {
	return &BlockGenerator{llm: llm, researcher: researcher}
}

// Generate 返回已经校验、编号的块，尚未落库
func (g *BlockGenerator) Generate(ctx context.Context, sectionID, userID uint, brief SectionBrief) ([]*model.Block, error) {
	log := logger.Log.With(zap.Uint("sectionId", sectionID))

	var research *Research
	if g.researcher != nil {
		r, err := g.researcher.Research(ctx, g.searchQuery(ctx, brief))
		if err != nil {
			log.Warn("Research failed, generating without sources", zap.Error(err))
		} else {
			research = r
		}
	}

	var out struct {
		Blocks []GeneratedBlock `json:"blocks"`
	}
	if err := g.llm.GenerateObject(ctx, ObjectRequest{
		System: blocksSystemPrompt,
		Prompt: blocksPrompt(brief, research),
		Schema: blocksSchema,
	}, &out); err != nil {
		return nil, err
	}

	var sources []string
	if research != nil {
		sources = research.Sources
	}
	blocks, dropped, err := NormalizeBlocks(sectionID, userID, out.Blocks, sources)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Info("Dropped invalid generated blocks", zap.Int("dropped", dropped), zap.Int("kept", len(blocks)))
	}
	return blocks, nil
}

// searchQuery 模型生成失败时退回到 "主题 + 小节标题"
func (g *BlockGenerator) searchQuery(ctx context.Context, brief SectionBrief) string {
	fallback := strings.TrimSpace(brief.Subject + " " + brief.Title)
	query, err := g.llm.GenerateText(ctx, searchQuerySystemPrompt, searchQueryPrompt(brief))
	if err != nil {
		return fallback
	}
	query = strings.Trim(strings.TrimSpace(query), "\"")
	if query == "" || len(query) > 200 {
		return fallback
	}
	return query
}

// NormalizeBlocks 过滤非法块，去掉末尾的问题块，然后从 1 开始连续编号。
// 没有来源的块继承检索得到的来源。
func NormalizeBlocks(sectionID, userID uint, raw []GeneratedBlock, sources []string) ([]*model.Block, int, error) {
	ordered := make([]GeneratedBlock, len(raw))
	copy(ordered, raw)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	blocks := make([]*model.Block, 0, len(ordered))
	for _, g := range ordered {
		if strings.TrimSpace(g.Content) == "" {
			continue
		}
		src := g.Sources
		if len(src) == 0 {
			src = sources
		}
		b, err := model.NewBlock(sectionID, userID, 0, g.body(), src)
		if err != nil {
			continue
		}
		blocks = append(blocks, b)
	}

	for len(blocks) > 0 && blocks[len(blocks)-1].IsQuestion() {
		blocks = blocks[:len(blocks)-1]
	}
	dropped := len(raw) - len(blocks)
	if len(blocks) == 0 {
		return nil, dropped, fmt.Errorf("%w: no usable blocks generated", util.ErrUpstream)
	}

	for i, b := range blocks {
		b.Order = i + 1
	}
	return blocks, dropped, nil
}
