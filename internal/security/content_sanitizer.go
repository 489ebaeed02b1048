package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は入力をポリシーに従ってサニタイズする。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// htmlSanitizer は許可リストのHTMLを残すサニタイザー。
// ニュース記事の要約に使う。
type htmlSanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はニュース要約用のサニタイザーを生成する。
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em
//   - aのhrefは絶対URLのみ。target="_blank"とrel="noreferrer noopener"を付与
//   - script, iframe, style, img, on*属性は除去
func NewSummarySanitizer() *htmlSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &htmlSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *htmlSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// textSanitizer はすべてのタグを除去してプレーンテキストにするサニタイザー。
// テイスティングノート、コメント、検索結果の説明文に使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグをすべて除去するサニタイザーを生成する。
// 結果はエスケープ前のプレーンテキストとして保存し、表示側でエスケープする。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、エンティティを復元したテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

var (
	_ ContentSanitizerService = (*htmlSanitizer)(nil)
	_ ContentSanitizerService = (*textSanitizer)(nil)
)
