package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterAccept(t *testing.T) {
	f := NewFilter(nil)

	tests := []struct {
		title string
		query string
		want  bool
	}{
		{"Mickey Mouse Compilation", "mickey mouse", false},
		{"Mickey Mouse Episode 3", "mickey mouse", true},
		{"MICKEY MOUSE - Best Scenes!", "mickey mouse", false},
		{"Mickey's best day", "mickey mouse", true},
		{"Minnie's best moments", "minnie", false},
		{"Tom & Jerry | Cat and Mouse", "Tom and Jerry", true},
		{"How to draw Tom", "tom", false},
		{"Drawing with Tom", "tom", true},
		{"Popeye gtav mod", "popeye", true},
		{"Popeye GTA mod", "popeye", false},
		{"Random unrelated upload", "popeye", false},
		{"", "popeye", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Accept(tt.title, tt.query))
		})
	}
}

func TestFilterExtraDenylist(t *testing.T) {
	f := NewFilter([]string{"Full Movie", "  "})

	assert.True(t, f.Denied("Garfield: the full movie (HD)"))
	assert.False(t, f.Denied("Garfield movie night"))
	assert.False(t, f.Accept("Garfield Full Movie", "garfield"))
	assert.True(t, f.Accept("Garfield eats lasagna", "garfield"))
}

func TestContainsPhrase(t *testing.T) {
	hay := []string{"the", "best", "scenes", "ever"}
	assert.True(t, containsPhrase(hay, []string{"best", "scenes"}))
	assert.False(t, containsPhrase(hay, []string{"scenes", "best"}))
	assert.False(t, containsPhrase(hay, nil))
	assert.False(t, containsPhrase([]string{"best"}, []string{"best", "scenes"}))
}
