package content

import (
	"strings"
	"testing"
)

func TestRenderer_HTML(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name    string
		in      string
		want    []string
		notWant []string
	}{
		{
			name: "emphasis",
			in:   "Bring your **student ID**.",
			want: []string{"<strong>student ID</strong>"},
		},
		{
			name:    "script dropped",
			in:      "Hello <script>alert(1)</script>",
			notWant: []string{"<script", "alert(1)</script>"},
		},
		{
			name:    "javascript link dropped",
			in:      "[click](javascript:alert(1))",
			notWant: []string{"javascript:"},
		},
		{
			name: "external link",
			in:   "[venue](https://maps.example.com/hall)",
			want: []string{`href="https://maps.example.com/hall"`, `target="_blank"`, "noreferrer"},
		},
		{
			name: "list",
			in:   "- food\n- drinks",
			want: []string{"<ul>", "<li>food</li>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.HTML(tt.in)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("HTML(%q) = %q, missing %q", tt.in, got, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(got, nw) {
					t.Errorf("HTML(%q) = %q, should not contain %q", tt.in, got, nw)
				}
			}
		})
	}

	if r.HTML("") != "" {
		t.Error("empty input should render empty")
	}
}

func TestPlain(t *testing.T) {
	if got := Plain("<b>Hall</b> A"); got != "Hall A" {
		t.Fatalf("Plain = %q", got)
	}
}
