package model

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

type BlockType string

const (
	BlockIntroduction BlockType = "introduction"
	BlockContent      BlockType = "content"
	BlockQuestion     BlockType = "question"
	BlockReflection   BlockType = "reflection"
)

type QuestionType string

const (
	QuestionSelect      QuestionType = "select"
	QuestionMultiselect QuestionType = "multiselect"
	QuestionText        QuestionType = "text"
	QuestionSort        QuestionType = "sort"
)

func (q QuestionType) Valid() bool {
	switch q {
	case QuestionSelect, QuestionMultiselect, QuestionText, QuestionSort:
		return true
	}
	return false
}

// Block 是小节内最小的学习单元。表结构是扁平的，但只能通过 NewBlock 构造，
// 读取时用 Body() 还原为 Prose 或 Question。
// swagger:model Block
type Block struct {
	BaseModel
	SectionID     uint                        `gorm:"not null;uniqueIndex:idx_block_section_order,priority:1" json:"sectionId"`
	UserID        uint                        `gorm:"not null;index" json:"userId"`
	Order         int                         `gorm:"column:order_index;not null;uniqueIndex:idx_block_section_order,priority:2" json:"order"`
	Type          BlockType                   `gorm:"size:20;not null" json:"type"`
	Content       string                      `gorm:"type:text;not null" json:"content"`
	QuestionType  QuestionType                `gorm:"size:20" json:"questionType,omitempty"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectAnswer string                      `gorm:"type:text" json:"-"`
	Hint          string                      `gorm:"type:text" json:"-"`
	Explanation   string                      `gorm:"type:text" json:"-"`
	Sources       datatypes.JSONSlice[string] `json:"sources,omitempty"`
}

func (Block) TableName() string {
	return "blocks"
}

// BlockBody 是 Prose 与 Question 的联合类型
type BlockBody interface {
	Kind() BlockType
	Text() string
}

// Prose 对应 introduction / content / reflection，只携带正文
type Prose struct {
	Type BlockType
	Body string
}

func (p Prose) Kind() BlockType { return p.Type }
func (p Prose) Text() string { return p.Body }

type Question struct {
	Prompt        string
	Type          QuestionType
	Options       []string
	CorrectAnswer string
	Hint          string
	Explanation   string
}

func (Question) Kind() BlockType { return BlockQuestion }
func (q Question) Text() string { return q.Prompt }

var (
	ErrInvalidBlockKind = errors.New("invalid block kind")
	ErrInvalidQuestion  = errors.New("invalid question")
)

func NewBlock(sectionID, userID uint, order int, body BlockBody, sources []string) (*Block, error) {
	b := &Block{
		SectionID: sectionID,
		UserID:    userID,
		Order:     order,
		Type:      body.Kind(),
		Content:   body.Text(),
	}
	if len(sources) > 0 {
		b.Sources = datatypes.JSONSlice[string](sources)
	}

	switch v := body.(type) {
	case Prose:
		switch v.Type {
		case BlockIntroduction, BlockContent, BlockReflection:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidBlockKind, v.Type)
		}
	case Question:
		if !v.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, v.Type)
		}
		if strings.TrimSpace(v.CorrectAnswer) == "" {
			return nil, fmt.Errorf("%w: missing correct answer", ErrInvalidQuestion)
		}
		b.QuestionType = v.Type
		b.CorrectAnswer = v.CorrectAnswer
		b.Hint = v.Hint
		b.Explanation = v.Explanation
		if len(v.Options) > 0 {
			b.Options = datatypes.JSONSlice[string](v.Options)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidBlockKind, body)
	}
	return b, nil
}

func (b *Block) IsQuestion() bool {
	return b.Type == BlockQuestion
}
