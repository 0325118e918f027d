package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"typed not found", ErrSectionNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", ErrCourseNotFound), http.StatusNotFound},
		{"not authorized", fmt.Errorf("%w: section 3", ErrNotAuthorized), http.StatusForbidden},
		{"race lost", fmt.Errorf("%w: block already completed", ErrRaceLost), http.StatusConflict},
		{"invalid state", fmt.Errorf("%w: course not ready", ErrInvalidState), http.StatusUnprocessableEntity},
		{"invalid input", fmt.Errorf("%w: too many urls", ErrInvalidInput), http.StatusBadRequest},
		{"upstream", fmt.Errorf("%w: model timeout", ErrUpstream), http.StatusBadGateway},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			HandleServiceError(c, tc.err)

			assert.Equal(t, tc.code, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestHandleServiceError_HidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleServiceError(c, errors.New("dial tcp 10.0.0.3:3306: refused"))

	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}
