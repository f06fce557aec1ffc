// Package views renders the participant-facing pages.
package views

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/trivia/internal/i18n"
	"github.com/pavelanni/trivia/internal/model"
)

const styles = `body{font-family:system-ui,sans-serif;max-width:720px;margin:2rem auto;padding:0 1rem;line-height:1.5}
h1{font-size:1.6rem}.statement{font-size:1.25rem;margin:1.5rem 0}
.warning{background:#fff4e5;border:1px solid #f0a020;padding:.75rem;border-radius:4px}
.error{background:#fdecea;border:1px solid #e53935;padding:.75rem;border-radius:4px}
fieldset{border:none;padding:0;margin:1rem 0}label.choice{display:block;margin:.25rem 0}
textarea{width:100%;min-height:6rem}button{padding:.5rem 1.25rem;font-size:1rem}
img.stimulus{width:400px;max-width:100%;display:block;margin:1rem 0}`

// page collects markup and writes it out in one piece.
type page struct {
	ctx context.Context
	buf bytes.Buffer
}

func (p *page) raw(s string) {
	p.buf.WriteString(s)
}

func (p *page) text(s string) {
	p.buf.WriteString(templ.EscapeString(s))
}

func (p *page) printf(format string, args ...any) {
	fmt.Fprintf(&p.buf, format, args...)
}

// t appends an escaped translation.
func (p *page) t(msgID string) {
	p.text(appI18n.T(p.ctx, msgID))
}

// url prefixes an application path with the deployment base path.
func (p *page) url(path string) string {
	return templ.EscapeString(model.BasePathFromContext(p.ctx) + path)
}

// form opens a POST form carrying the CSRF token.
func (p *page) form(action string) {
	p.printf(`<form method="post" action="%s">`, p.url(action))
	p.printf(`<input type="hidden" name="csrf_token" value="%s">`,
		templ.EscapeString(model.CSRFTokenFromContext(p.ctx)))
}

// layout wraps body in the common document shell.
func layout(body func(p *page)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{ctx: ctx}
		p.raw("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw("<title>")
		p.t("AppTitle")
		p.raw("</title><style>" + styles + "</style></head><body>")
		body(p)
		p.raw("</body></html>\n")
		_, err := p.buf.WriteTo(w)
		return err
	})
}
