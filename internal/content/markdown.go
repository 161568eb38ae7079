package content

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer turns event descriptions written in Markdown into HTML that is
// safe to embed in dashboard pages.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del", "h3", "h4",
	)
	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("https", "http", "mailto")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify)),
		policy: p,
	}
}

// HTML renders src. Raw HTML in src is dropped by the sanitizer.
func (r *Renderer) HTML(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return r.policy.Sanitize(src)
	}
	return r.policy.Sanitize(buf.String())
}

// Plain strips all markup from s.
func Plain(s string) string {
	return bluemonday.StrictPolicy().Sanitize(s)
}
