package service

import (
	"context"
	"fmt"
	"strings"
	"suma_backend/internal/util"
)

// swagger:model AnswerVerification
type AnswerVerification struct {
	IsCorrect   bool    `json:"isCorrect"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// AnswerService 用模型判断自由文本答案是否与参考答案意思一致
type AnswerService struct {
	LLM LanguageModel
}

func NewAnswerService(llm LanguageModel) *AnswerService {
	return &AnswerService{LLM: llm}
}

// VerifyAnswer 去空白、忽略大小写完全一致时直接判对，不调用模型
func (s *AnswerService) VerifyAnswer(ctx context.Context, question, correctAnswer, userAnswer string) (*AnswerVerification, error) {
	given := strings.TrimSpace(userAnswer)
	if given == "" || strings.TrimSpace(correctAnswer) == "" {
		return nil, fmt.Errorf("%w: answer and correctAnswer are required", util.ErrInvalidInput)
	}
	if strings.EqualFold(given, strings.TrimSpace(correctAnswer)) {
		return &AnswerVerification{IsCorrect: true, Explanation: "Exact match.", Confidence: 1}, nil
	}

	var out AnswerVerification
	if err := s.LLM.GenerateObject(ctx, ObjectRequest{
		System: answerSystemPrompt,
		Prompt: answerPrompt(question, correctAnswer, given),
		Schema: answerSchema,
	}, &out); err != nil {
		return nil, err
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out, nil
}
