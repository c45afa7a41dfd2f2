package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		path     string
		expected string
	}{
		{"/health", "/health"},
		{"/api/squads", "/api/squads"},
		{"/api/squads/", "/api/squads/"},
		{"/api/squads/ab12cd34", "/api/squads/:id"},
		{"/api/squads/ab12cd34/messages", "/api/squads/:id/messages"},
		{"/api/squads/ab12cd34/vote", "/api/squads/:id/vote"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, normalizePath(tc.path))
		})
	}
}
