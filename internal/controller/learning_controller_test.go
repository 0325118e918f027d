package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"suma_backend/internal/model"
	"suma_backend/internal/service"
	"suma_backend/internal/testutil"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser 代替 JWT 中间件，X-User 头指定当前用户
func asUser(c *gin.Context) {
	var id uint
	if _, err := fmt.Sscan(c.GetHeader("X-User"), &id); err == nil {
		c.Set("user", &util.Claims{UserID: id, Role: model.Learner})
	}
	c.Next()
}

func newLearningRouter(t *testing.T) (*gin.Engine, *testutil.Section) {
	t.Helper()
	db := testutil.OpenDB(t)
	user := testutil.CreateUser(t, db, "grace@example.com")
	seed := testutil.SeedSection(t, db, user.ID,
		model.Prose{Type: model.BlockIntroduction, Body: "Welcome"},
		model.Question{
			Prompt:        "2 + 2?",
			Type:          model.QuestionText,
			CorrectAnswer: "4",
		},
	)

	c := NewLearningController(service.NewLearningService(db, nil), nil)
	r := gin.New()
	api := r.Group("/api", asUser)
	api.GET("/sections/:id/blocks", c.GetSectionBlocks)
	api.POST("/blocks/:id/complete", c.CompleteBlock)
	api.POST("/blocks/:id/answer", c.SubmitAnswer)
	return r, seed
}

func call(r *gin.Engine, method, path string, user uint, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set("X-User", fmt.Sprint(user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLearningController_StatusCodes(t *testing.T) {
	r, seed := newLearningRouter(t)
	owner := seed.Section.UserID
	blocksPath := fmt.Sprintf("/api/sections/%d/blocks", seed.Section.ID)

	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, blocksPath, 0, "").Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, blocksPath, owner+1, "").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/sections/9999/blocks", owner, "").Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodGet, "/api/sections/abc/blocks", owner, "").Code)

	question := seed.Blocks[1]
	answerPath := fmt.Sprintf("/api/blocks/%d/answer", question.ID)
	// 第二个块尚未解锁
	assert.Equal(t, http.StatusUnprocessableEntity, call(r, http.MethodPost, answerPath, owner, `{"answer":"4"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPost, answerPath, owner, `{}`).Code)
}

func TestLearningController_Walkthrough(t *testing.T) {
	r, seed := newLearningRouter(t)
	owner := seed.Section.UserID

	w := call(r, http.MethodGet, fmt.Sprintf("/api/sections/%d/blocks", seed.Section.ID), owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	var blocks struct {
		Data []service.BlockView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &blocks))
	require.Len(t, blocks.Data, 1)

	w = call(r, http.MethodPost, fmt.Sprintf("/api/blocks/%d/complete", seed.Blocks[0].ID), owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	var done struct {
		Data service.CompletionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.True(t, done.Data.Credited)

	w = call(r, http.MethodPost, fmt.Sprintf("/api/blocks/%d/answer", seed.Blocks[1].ID), owner, `{"answer":"4"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var answered struct {
		Data service.AnswerResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answered))
	assert.True(t, answered.Data.IsCorrect)
	assert.True(t, answered.Data.SectionCompleted)
}
