package security

import (
	"strings"
	"testing"
)

func TestSummarySanitizer_AllowedTags(t *testing.T) {
	sanitizer := NewSummarySanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>新しいシングルバレル</p>",
			wantContains: []string{"<p>新しいシングルバレル</p>"},
		},
		{
			name:         "リストが許可される",
			input:        "<ul><li>Nose</li><li>Palate</li></ul>",
			wantContains: []string{"<ul>", "<li>Nose</li>", "</ul>"},
		},
		{
			name:         "強調が許可される",
			input:        "<strong>限定</strong><em>再入荷</em>",
			wantContains: []string{"<strong>限定</strong>", "<em>再入荷</em>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, want to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

func TestSummarySanitizer_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewSummarySanitizer()

	tests := []struct {
		name       string
		input      string
		notContain []string
	}{
		{"script", `<p>ok</p><script>alert(1)</script>`, []string{"<script", "alert(1)"}},
		{"iframe", `<iframe src="https://evil.example.com"></iframe>`, []string{"<iframe"}},
		{"onclick", `<p onclick="alert(1)">x</p>`, []string{"onclick"}},
		{"javascript link", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"img", `<img src="https://example.com/a.png">`, []string{"<img"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, bad := range tt.notContain {
				if strings.Contains(got, bad) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

func TestSummarySanitizer_AnchorAttributes(t *testing.T) {
	got := NewSummarySanitizer().Sanitize(`<a href="https://example.com/release">記事</a>`)

	for _, want := range []string{`href="https://example.com/release"`, `target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, want to contain %q", got, want)
		}
	}
}

func TestSummarySanitizer_Idempotent(t *testing.T) {
	sanitizer := NewSummarySanitizer()
	input := `<p>Distilled <a href="https://example.com">here</a><script>x</script></p>`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("not idempotent: %q != %q", first, second)
	}
}

func TestTextSanitizer_StripsAllTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain text", "Caramel, vanilla, oak", "Caramel, vanilla, oak"},
		{"ampersand is kept as text", "Caramel & vanilla", "Caramel & vanilla"},
		{"tags removed", "<b>Bold</b> finish", "Bold finish"},
		{"script removed", "Sweet<script>alert(1)</script>", "Sweet"},
		{"surrounding whitespace trimmed", "  long finish  ", "long finish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
