package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"suma_backend/internal/jobs"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/internal/util"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	fcStageExtract  = "extract"
	fcStageGenerate = "generate"
	fcStagePersist  = "persist"
	fcStageNotify   = "notify"

	sourceChunkSize    = 4000
	sourceChunkOverlap = 200

	maxStoredSourceBytes = 64 << 20
)

var flashcardStages = []string{fcStageExtract, fcStageGenerate, fcStagePersist, fcStageNotify}

// GeneratedCard 模型返回的单张卡片
type GeneratedCard struct {
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	QuestionType  string `json:"questionType"`
	Difficulty    string `json:"difficulty"`
	Explanation   string `json:"explanation"`
	SourceExcerpt string `json:"sourceExcerpt"`
	OrderIndex    int    `json:"orderIndex"`
}

type generatedCards struct {
	Summary string          `json:"summary"`
	Cards   []GeneratedCard `json:"cards"`
}

// flashcardCheckpoint 抽取出的正文和生成结果，重启后不必重新抓取或调用模型
type flashcardCheckpoint struct {
	Content string          `json:"content,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Cards   []GeneratedCard `json:"cards,omitempty"`
}

type FlashcardGenerationHandler struct {
	LLM            LanguageModel
	Scraper        Scraper
	Storage        *StorageService
	Notifier       *NotificationService
	MaxSourceChars int
}

func NewFlashcardGenerationHandler(llm LanguageModel, scraper Scraper, storage *StorageService, notifier *NotificationService, maxSourceChars int) *FlashcardGenerationHandler {
	return &FlashcardGenerationHandler{
		LLM:            llm,
		Scraper:        scraper,
		Storage:        storage,
		Notifier:       notifier,
		MaxSourceChars: maxSourceChars,
	}
}

func (h *FlashcardGenerationHandler) Type() string {
	return model.JobTypeFlashcardGeneration
}

func flashcardStageIndex(stage string) int {
	for i, s := range flashcardStages {
		if s == stage {
			return i
		}
	}
	if stage == stageDone {
		return len(flashcardStages)
	}
	return 0
}

func (h *FlashcardGenerationHandler) Run(jc *jobs.Context) error {
	var p FlashcardJobPayload
	if err := jc.Payload(&p); err != nil {
		return err
	}
	repo := repository.NewFlashcardRepository(jc.DB)
	set, err := repo.FindSetByID(p.SetID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load flashcard set %d: %w", p.SetID, err))
	}

	var cp flashcardCheckpoint
	if err := jc.Checkpoint(&cp); err != nil {
		return jobs.Permanent(err)
	}

	for i := flashcardStageIndex(jc.Stage()); i < len(flashcardStages); i++ {
		stage := flashcardStages[i]
		switch stage {
		case fcStageExtract:
			if set.Status != model.FlashcardSetProcessing {
				jc.Log.Info("Flashcard set no longer processing", zap.String("status", string(set.Status)))
				return nil
			}
			err = jc.RunStage(stage, func(ctx context.Context) error {
				content, err := h.extract(ctx, set)
				if err != nil {
					return err
				}
				cp.Content = content
				return nil
			})
		case fcStageGenerate:
			err = jc.RunStage(stage, func(ctx context.Context) error {
				out, err := h.generate(ctx, cp.Content, set.TargetCount)
				if err != nil {
					return err
				}
				cp = flashcardCheckpoint{Summary: out.Summary, Cards: out.Cards}
				return nil
			})
		case fcStagePersist:
			err = jc.RunStage(stage, func(ctx context.Context) error {
				return persistFlashcards(jc.DB.WithContext(ctx), set.ID, cp)
			})
			cp = flashcardCheckpoint{}
		case fcStageNotify:
			h.notify(jc, set.ID)
		}
		if err != nil {
			return err
		}

		next := stageDone
		if i+1 < len(flashcardStages) {
			next = flashcardStages[i+1]
		}
		if err := jc.Advance(next, cp); err != nil {
			return err
		}
	}
	return nil
}

// OnFailure 卡片集置为 failed 并记录错误
func (h *FlashcardGenerationHandler) OnFailure(jc *jobs.Context, cause error) {
	var p FlashcardJobPayload
	if err := jc.Payload(&p); err != nil {
		return
	}
	_, err := repository.NewFlashcardRepository(jc.DB).TransitionSetStatus(p.SetID,
		model.FlashcardSetProcessing, model.FlashcardSetFailed,
		map[string]interface{}{"error_message": cause.Error()})
	if err != nil {
		jc.Log.Error("Mark flashcard set failed", zap.Error(err))
	}
}

func (h *FlashcardGenerationHandler) extract(ctx context.Context, set *model.FlashcardSet) (string, error) {
	switch set.SourceType {
	case model.FlashcardSourceURL:
		if h.Scraper == nil {
			return "", jobs.Permanent(errors.New("no scraper configured"))
		}
		res, err := ScrapeAll(ctx, h.Scraper, []string(set.SourceURLs))
		if err != nil {
			return "", err
		}
		return res.Content, nil
	case model.FlashcardSourceFile:
		return h.loadFile(ctx, set)
	}
	return "", jobs.Permanent(fmt.Errorf("unknown source type %q", set.SourceType))
}

// loadFile 从存储读取源文件，PDF 按页抽取文本
func (h *FlashcardGenerationHandler) loadFile(ctx context.Context, set *model.FlashcardSet) (string, error) {
	data, err := h.Storage.ReadSource(ctx, set.SourceFileKey, maxStoredSourceBytes)
	if err != nil {
		if errors.Is(err, util.ErrInvalidInput) {
			return "", jobs.Permanent(err)
		}
		return "", err
	}

	var docs []schema.Document
	if util.IsPDF(set.SourceFileType) {
		docs, err = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
	} else {
		docs, err = documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	}
	if err != nil {
		return "", jobs.Permanent(fmt.Errorf("%w: parse source file: %v", util.ErrInvalidInput, err))
	}

	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.TrimSpace(d.PageContent); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", jobs.Permanent(fmt.Errorf("%w: source file has no extractable text", util.ErrInvalidInput))
	}
	return strings.Join(pages, "\n\n"), nil
}

// leadingSource 切块后取前面不超过 maxChars 的部分
func leadingSource(content string, maxChars int) (string, error) {
	if maxChars <= 0 || len(content) <= maxChars {
		return content, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(sourceChunkSize),
		textsplitter.WithChunkOverlap(sourceChunkOverlap),
	)
	chunks, err := splitter.SplitText(content)
	if err != nil {
		return "", err
	}
	var (
		b    strings.Builder
		used int
	)
	for _, c := range chunks {
		if used+len(c) > maxChars {
			break
		}
		if used > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c)
		used += len(c)
	}
	if used == 0 {
		return content[:maxChars], nil
	}
	return b.String(), nil
}

func (h *FlashcardGenerationHandler) generate(ctx context.Context, content string, target int) (*generatedCards, error) {
	if strings.TrimSpace(content) == "" {
		return nil, jobs.Permanent(fmt.Errorf("%w: no source content", util.ErrInvalidInput))
	}
	source, err := leadingSource(content, h.MaxSourceChars)
	if err != nil {
		return nil, err
	}

	var out generatedCards
	if err := h.LLM.GenerateObject(ctx, ObjectRequest{
		System: flashcardSystemPrompt,
		Prompt: flashcardPrompt(source, target),
		Schema: flashcardSchema,
	}, &out); err != nil {
		return nil, err
	}
	out.Cards = NormalizeCards(out.Cards)
	if len(out.Cards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards generated", util.ErrUpstream)
	}
	return &out, nil
}

// NormalizeCards 丢弃空问题或空答案，保持模型给出的顺序并重新编号
func NormalizeCards(cards []GeneratedCard) []GeneratedCard {
	out := make([]GeneratedCard, 0, len(cards))
	for _, c := range cards {
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		if c.Question == "" || c.Answer == "" {
			continue
		}
		if c.QuestionType == "" {
			c.QuestionType = "text"
		}
		c.OrderIndex = len(out)
		out = append(out, c)
		if len(out) == MaxFlashcardTarget {
			break
		}
	}
	return out
}

// persistFlashcards 卡片、数量、摘要和状态在一个事务里写入；已写过卡片时只补状态
func persistFlashcards(db *gorm.DB, setID uint, cp flashcardCheckpoint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		repo := repository.NewFlashcardRepository(tx)
		existing, err := repo.CountCards(setID)
		if err != nil {
			return err
		}
		count := int(existing)
		if existing == 0 {
			cards := make([]model.Flashcard, len(cp.Cards))
			for i, c := range cp.Cards {
				cards[i] = model.Flashcard{
					SetID:         setID,
					Question:      c.Question,
					Answer:        c.Answer,
					QuestionType:  c.QuestionType,
					Difficulty:    c.Difficulty,
					Explanation:   c.Explanation,
					SourceExcerpt: c.SourceExcerpt,
					OrderIndex:    c.OrderIndex,
				}
			}
			if err := repo.CreateCards(cards); err != nil {
				return err
			}
			count = len(cards)
		}
		if count == 0 {
			return jobs.Permanent(fmt.Errorf("%w: nothing to persist", util.ErrUpstream))
		}
		_, err = repo.TransitionSetStatus(setID, model.FlashcardSetProcessing, model.FlashcardSetCompleted,
			map[string]interface{}{
				"card_count":      count,
				"content_summary": cp.Summary,
				"error_message":   "",
			})
		return err
	})
}

func (h *FlashcardGenerationHandler) notify(jc *jobs.Context, setID uint) {
	if h.Notifier == nil {
		return
	}
	set, err := repository.NewFlashcardRepository(jc.DB).FindSetByID(setID)
	if err != nil {
		jc.Log.Warn("Load flashcard set for notification", zap.Error(err))
		return
	}
	if err := h.Notifier.FlashcardsReady(jc.Ctx, set); err != nil {
		jc.Log.Warn("Flashcards ready email failed", zap.Error(err))
	}
}
