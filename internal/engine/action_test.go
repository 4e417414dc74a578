package engine

import (
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]any{
		"count":  float64(3),
		"family": "gauge",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "substitution",
			template: "{count} cutter(s) flagged in {family}",
			want:     "3 cutter(s) flagged in gauge",
		},
		{
			name:     "unresolved placeholder stays literal",
			template: "{count} items for {unknown}",
			want:     "3 items for {unknown}",
		},
		{
			name:     "no placeholders",
			template: "plain message",
			want:     "plain message",
		},
		{
			name:     "empty template",
			template: "",
			want:     "",
		},
		{
			name:     "malformed braces left alone",
			template: "{count items",
			want:     "{count items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.template, vars); got != tt.want {
				t.Errorf("RenderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTemplate_NoVars(t *testing.T) {
	if got := RenderTemplate("{count} items", nil); got != "{count} items" {
		t.Errorf("RenderTemplate() = %q, want literal template", got)
	}
}
