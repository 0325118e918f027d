package util

import "errors"

// 错误分类，业务错误统一用 fmt.Errorf("%w: ...") 包装，控制器用 errors.Is 映射状态码
var (
	ErrNotFound      = errors.New("not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidState  = errors.New("invalid state")
	ErrRaceLost      = errors.New("race lost")
	ErrUpstream      = errors.New("upstream failure")
	ErrInvalidInput  = errors.New("invalid input")
)

var (
	ErrUserNotFound         = wrapNotFound("user not found")
	ErrEmailRegistered      = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrCourseNotFound       = wrapNotFound("course not found")
	ErrSectionNotFound      = wrapNotFound("section not found")
	ErrBlockNotFound        = wrapNotFound("block not found")
	ErrFlashcardSetNotFound = wrapNotFound("flashcard set not found")
	ErrFlashcardNotFound    = wrapNotFound("flashcard not found")
)

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func wrapNotFound(msg string) error {
	return &notFoundError{msg: msg}
}
