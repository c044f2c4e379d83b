package dom

// Listeners 是可嵌入的监听器表；按注册顺序同步调用。
type Listeners struct {
	m map[string][]Listener
}

func (l *Listeners) AddEventListener(typ string, fn Listener) {
	if fn == nil {
		return
	}
	if l.m == nil {
		l.m = make(map[string][]Listener, 4)
	}
	l.m[typ] = append(l.m[typ], fn)
}

// Fire 调用 ev.Type 的全部监听器。
// 监听器在派发过程中新增的监听器不会在本次派发中被调用。
func (l *Listeners) Fire(ev Event) {
	fns := l.m[ev.Type]
	if len(fns) == 0 {
		return
	}
	fns = append([]Listener(nil), fns...)
	for _, fn := range fns {
		fn(ev)
	}
}
