package server

import "sync"

// pathLocks 按设备路径串行化修改操作, 不同设备互不阻塞.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*sync.Mutex)}
}

// lock 锁定path并返回解锁函数.
func (l *pathLocks) lock(path string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[path]
	if !ok {
		m = new(sync.Mutex)
		l.locks[path] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
