// Package eventloop 提供单线程、先进先出的任务队列，用于表达“推迟到下一轮事件循环”。
package eventloop

// Loop 是页面的事件循环。
//
// 约束：
// - 不并发安全：一个页面只在一个 goroutine 内驱动（与浏览器 UI 线程一致）
// - Post 只入队，不执行；任务之间只保证 FIFO，不保证与其他来源任务的相对顺序
type Loop struct {
	queue []func()
}

func New() *Loop { return &Loop{} }

// Post 把 task 放到队尾。
func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.queue = append(l.queue, task)
}

// Len 返回尚未执行的任务数。
func (l *Loop) Len() int { return len(l.queue) }

// RunPending 依次执行队列中的任务直到队列为空（执行中新入队的任务同样会被执行），
// 返回执行的任务数。
func (l *Loop) RunPending() int {
	n := 0
	for len(l.queue) > 0 {
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		task()
		n++
	}
	return n
}
