package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy_AllowOrigin(t *testing.T) {
	p := newOriginPolicy([]string{" HTTP://LocalHost:3000 ", "not a url", "", "https://chat.example.com"}, zerolog.Nop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"http://LOCALHOST:3000", true},
		{"https://chat.example.com", true},
		{"http://chat.example.com", false},
		{"http://localhost:8080", false},
		{"null", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, p.allowOrigin(tt.origin))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, zerolog.Nop())
	assert.True(t, p.allowOrigin("https://anything.example"))
}

func TestOriginPolicy_CheckOrigin(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080"}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/api/ws", nil)
	assert.True(t, p.checkOrigin(req), "requests without Origin come from non-browser clients")

	req.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, p.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, p.checkOrigin(req))
}
