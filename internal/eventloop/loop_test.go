package eventloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoop_FIFOAndNestedPost(t *testing.T) {
	l := New()
	var got []string

	l.Post(func() {
		got = append(got, "a")
		l.Post(func() { got = append(got, "c") })
	})
	l.Post(func() { got = append(got, "b") })
	l.Post(nil)

	assert.Equal(t, 2, l.Len())
	assert.Empty(t, got, "Post 不应立即执行")

	n := l.RunPending()
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.RunPending())
}
