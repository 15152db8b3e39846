package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!"

var mdV1Re = regexp.MustCompile(`([_*\\\[` + "`" + `])`)
var mdV2Re = regexp.MustCompile("([" + regexp.QuoteMeta(mdV2Specials) + "])")

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// EscapeV1 escapes user-supplied text for MarkdownV1 replies.
func EscapeV1(text string) string {
	escaped, err := EscapeMarkdown(text, MarkdownV1)
	if err != nil {
		return text
	}
	return escaped
}

// Code wraps text in an inline code span, stripping backticks from the input.
func Code(text string) string {
	return "`" + strings.ReplaceAll(text, "`", "'") + "`"
}
