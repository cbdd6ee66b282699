package assets

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		dest   string
		want   Strategy
	}{
		{name: "script destination", target: "/bundle", dest: "script", want: CacheFirst},
		{name: "style destination", target: "/theme", dest: "style", want: CacheFirst},
		{name: "manifest destination", target: "/m", dest: "manifest", want: CacheFirst},
		{name: "js extension", target: "/script.js", want: CacheFirst},
		{name: "json before api rule", target: "/api/config.json", want: CacheFirst},
		{name: "image destination", target: "/avatar", dest: "image", want: CacheFirst},
		{name: "image extension", target: "/DSi.png", want: CacheFirst},
		{name: "uppercase image extension", target: "/photo.JPG", want: CacheFirst},
		{name: "api path", target: "/v1/api/jobs", want: NetworkFirst},
		{name: "api document", target: "/api/", dest: "document", want: NetworkFirst},
		{name: "firebase host", target: "https://placement.firebaseio.com/data", want: NetworkFirst},
		{name: "googleapis host", target: "https://fonts.googleapis.com/css2", want: NetworkFirst},
		{name: "document", target: "/jobs", dest: "document", want: StaleWhileRevalidate},
		{name: "default", target: "/jobs", want: NetworkFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.dest != "" {
				req.Header.Set("Sec-Fetch-Dest", tt.dest)
			}
			assert.Equal(t, tt.want, StrategyFor(req))
		})
	}
}

func TestStorage(t *testing.T) {
	t.Parallel()

	s := NewStorage()
	first, err := s.Open("first", 2)
	assert.NoError(t, err)
	second, err := s.Open("second", 2)
	assert.NoError(t, err)

	again, err := s.Open("first", 99)
	assert.NoError(t, err)
	assert.Same(t, first, again)

	first.Put("k", Entry{Status: 200, Body: []byte("one")})
	second.Put("k", Entry{Status: 200, Body: []byte("two")})
	e, ok := s.Match("k")
	assert.True(t, ok)
	assert.Equal(t, "one", string(e.Body), "older caches match first")

	assert.True(t, s.Delete("first"))
	assert.False(t, s.Delete("first"))
	e, _ = s.Match("k")
	assert.Equal(t, "two", string(e.Body))
	assert.Equal(t, []string{"second"}, s.Names())

	_, err = s.Open("empty", 0)
	assert.Error(t, err)
}
