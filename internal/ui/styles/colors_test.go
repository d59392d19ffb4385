// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestRenderStatusIncludesIndicator(t *testing.T) {
	tests := []struct {
		ok   bool
		want string
	}{
		{true, StatusIndicators.Success},
		{false, StatusIndicators.Error},
	}
	for _, tt := range tests {
		got := RenderStatus(tt.ok, "pulled")
		if !strings.Contains(got, tt.want) || !strings.Contains(got, "pulled") {
			t.Errorf("RenderStatus(%v) = %q, want %q marker", tt.ok, got, tt.want)
		}
	}
}

func TestRenderWarning(t *testing.T) {
	if got := RenderWarning("slow"); !strings.Contains(got, "[!] slow") {
		t.Errorf("RenderWarning = %q", got)
	}
}
