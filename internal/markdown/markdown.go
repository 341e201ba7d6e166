// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package markdown converts post bodies from Markdown into HTML using
// goldmark, and derives plain-text excerpts for cards and emails.
package markdown

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// md is the configured goldmark instance, reused across calls.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		// Posts are written by the admin only; embedded HTML (video
		// embeds, callouts) is allowed through.
		html.WithUnsafe(),
	),
)

// ToHTML converts Markdown source into HTML.
func ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Excerpt returns the plain text of the first paragraphs of source, cut at a
// word boundary so that the result is at most max runes (plus an ellipsis).
// Headings, code blocks and raw HTML are skipped.
func Excerpt(source string, max int) string {
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			if !entering && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		}
		if utf8.RuneCountInString(sb.String()) > max {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	plain := strings.Join(strings.Fields(sb.String()), " ")
	if utf8.RuneCountInString(plain) <= max {
		return plain
	}

	runes := []rune(plain)
	cut := runes[:max]
	if runes[max] == ' ' {
		return string(cut) + "…"
	}
	if i := strings.LastIndexByte(string(cut), ' '); i > 0 {
		return strings.TrimRight(string(cut)[:i], ",.;:") + "…"
	}
	return string(cut) + "…"
}
