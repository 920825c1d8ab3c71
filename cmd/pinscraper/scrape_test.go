package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestDeriveProjectName(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"https://www.pinterest.com/someone/recipes/", "someone_recipes"},
		{"https://www.pinterest.com/pin/123456/", "pin_123456"},
		{"mid century chairs", "mid_century_chairs"},
		{"  ", "pinterest"},
		{"https://www.pinterest.com/", "pinterest"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveProjectName(tt.query))
		})
	}
}

func TestChangedFlagsOnlyCarriesSetFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addPipelineFlags(cmd)
	defer func() { workers, video = 0, false }()

	assert.NoError(t, cmd.Flags().Parse([]string{"--workers", "8", "--video"}))

	flags := changedFlags(cmd)
	assert.Equal(t, 8, flags["workers"])
	assert.Equal(t, true, flags["video"])
	assert.NotContains(t, flags, "headless")
	assert.NotContains(t, flags, "fail-fast")
}
