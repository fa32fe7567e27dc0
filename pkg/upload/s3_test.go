package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "json file",
			path:       "/data/report.json",
			wantPrefix: "application/json",
		},
		{
			name:       "no extension",
			path:       "/data/Makefile",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "txt file",
			path:       "/data/notes.txt",
			wantPrefix: "text/plain",
		},
		{
			name:       "html file",
			path:       "/data/index.html",
			wantPrefix: "text/html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}
