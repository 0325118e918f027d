package jobs

import "sync"

// Handler 执行一种任务类型。Run 返回 error 时 worker 将任务标记为 failed。
type Handler interface {
	Type() string
	Run(jc *Context) error
}

// FailureHook 可选。Run 返回错误或 panic 时调用一次，用于补偿写
// （例如把课程置为 failed），在任务标记为 failed 之前执行。
type FailureHook interface {
	OnFailure(jc *Context, err error)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
