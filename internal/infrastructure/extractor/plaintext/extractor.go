package plaintext

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Decode returns UTF-8 text with line structure kept, so the chunker can
// still see paragraphs and headings.
func Decode(raw []byte) (string, error) {
	raw = trimBOM(raw)
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("text is not valid utf-8")
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}

var (
	htmlBlockTag = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlBreakTag = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6])[^>]*>`)
	htmlTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	blankLines   = regexp.MustCompile(`\n\s*\n+`)
)

// DecodeHTML strips markup, turning block elements into paragraph breaks.
func DecodeHTML(raw []byte) (string, error) {
	text, err := Decode(raw)
	if err != nil {
		return "", err
	}
	text = htmlBlockTag.ReplaceAllString(text, " ")
	text = htmlBreakTag.ReplaceAllString(text, "\n\n")
	text = htmlTag.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")), nil
}

func trimBOM(raw []byte) []byte {
	if len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF {
		return raw[3:]
	}
	return raw
}
