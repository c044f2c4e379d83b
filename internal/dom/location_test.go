package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocation_ReplaceStateKeepsHistoryLength(t *testing.T) {
	loc, err := NewLocation("https://bestmoney.co.nz/car-insurance/?coverage=x#top")
	require.NoError(t, err)

	assert.Equal(t, "/car-insurance/", loc.Pathname())
	assert.Equal(t, "?coverage=x", loc.Search())
	assert.Equal(t, "bestmoney.co.nz", loc.Hostname())

	loc.ReplaceState("/car-insurance/?credit=good")
	assert.Equal(t, "?credit=good", loc.Search())
	assert.Equal(t, "https://bestmoney.co.nz/car-insurance/?credit=good", loc.Href())

	loc.ReplaceState("/car-insurance/")
	assert.Equal(t, "", loc.Search())

	assert.Equal(t, 1, loc.HistoryLength())
	assert.Equal(t, 2, loc.Replacements())
}

func TestListeners_FireInOrder(t *testing.T) {
	var l Listeners
	var got []int
	l.AddEventListener(EventClick, func(Event) { got = append(got, 1) })
	l.AddEventListener(EventClick, func(Event) {
		got = append(got, 2)
		l.AddEventListener(EventClick, func(Event) { got = append(got, 3) })
	})
	l.AddEventListener(EventChange, func(Event) { got = append(got, 99) })

	l.Fire(Event{Type: EventClick})
	assert.Equal(t, []int{1, 2}, got)
}
