package parted

import (
	"sync"

	"go.uber.org/zap"
)

// Exceptions 分区库的诊断处理器.
// 未被捕获时, 诊断以warn级别输出; Fetch 期间的诊断被捕获并仅以debug级别输出.
type Exceptions struct {
	mu      sync.Mutex
	depth   int
	fetched []error
	logger  *zap.SugaredLogger
}

func NewExceptions(l *zap.SugaredLogger) *Exceptions {
	return &Exceptions{logger: l}
}

// Throw 报告一条诊断并原样返回err, 便于 `return e.Throw(err)`.
func (e *Exceptions) Throw(err error) error {
	if err == nil || e == nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.depth > 0 {
		e.fetched = append(e.fetched, err)
		e.logger.Debugf("Exceptions. Fetched: %v", err)
		return err
	}
	e.logger.Warnf("%v", err)
	return err
}

// Fetch 开始捕获诊断, 返回的restore函数恢复到此前的状态, 多次调用restore仅生效一次.
// 捕获可嵌套, 最外层restore之后诊断重新对外输出.
func (e *Exceptions) Fetch() (restore func()) {
	e.mu.Lock()
	e.depth++
	if e.depth == 1 {
		e.fetched = nil
	}
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.depth--
			e.mu.Unlock()
		})
	}
}

// Suppressed 若当前处于捕获状态, 则返回true.
func (e *Exceptions) Suppressed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depth > 0
}

// Fetched 返回最近一次捕获期间累计的诊断.
func (e *Exceptions) Fetched() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.fetched...)
}
