package domain

// Param 是一个有序的 key=value 对（表单条目或 URL 查询参数）。
type Param struct {
	Key   string
	Value string
}

// Selection 是一次评估使用的筛选选择：每个 key 只出现一次，保留首次出现的位置。
//
// 约束：每次评估都从表单重新构造，不做缓存。
type Selection struct {
	params []Param
}

// NewSelection 从表单条目构造 Selection：空值丢弃；重复 key 取最后一个值、保留首次位置。
func NewSelection(entries []Param) Selection {
	out := make([]Param, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Value == "" {
			continue
		}
		if i, ok := index[e.Key]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Key] = len(out)
		out = append(out, e)
	}
	return Selection{params: out}
}

// Get 返回 key 对应的值；不存在（未筛选）时 ok=false。
func (s Selection) Get(key string) (string, bool) {
	for _, p := range s.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Dimension 是 Get 的维度版本。
func (s Selection) Dimension(d Dimension) (string, bool) {
	return s.Get(string(d))
}

func (s Selection) Params() []Param {
	return append([]Param(nil), s.params...)
}

func (s Selection) Len() int { return len(s.params) }
