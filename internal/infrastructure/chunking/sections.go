package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minMarkerSections  = 2
	maxMarkerSections  = 200
	minEvenSections    = 5
	maxEvenSections    = 10
	evenSectionBytes   = 100 * 1024
	maxSectionTitleLen = 80
	minCapsHeadingLen  = 10
)

var (
	namedHeading = regexp.MustCompile(`(?i)^(chapter|section|part)\s+[\w.]+`)
	mdHeading    = regexp.MustCompile(`^#{1,6}\s+\S`)
	ruleLine     = regexp.MustCompile(`^(={3,}|-{3,}|\*{3,})$`)
)

type section struct {
	title string
	text  string
}

func splitSections(text string) []section {
	if sections := splitByMarkers(text); len(sections) >= minMarkerSections && len(sections) <= maxMarkerSections {
		return sections
	}
	return splitEvenly(text)
}

func splitByMarkers(text string) []section {
	lines := strings.SplitAfter(text, "\n")
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line)
	}

	starts := make([]int, 0, 16)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !isHeadingLine(trimmed) {
			continue
		}
		start := offsets[i]
		// Underlined headings start at the title line above the rule.
		if ruleLine.MatchString(trimmed) && i > 0 && strings.TrimSpace(lines[i-1]) != "" {
			start = offsets[i-1]
		}
		if len(starts) == 0 || start > starts[len(starts)-1] {
			starts = append(starts, start)
		}
	}
	if len(starts) == 0 {
		return nil
	}
	if starts[0] > 0 {
		starts = append([]int{0}, starts...)
	}

	out := make([]section, 0, len(starts))
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		body := text[start:end]
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, section{title: sectionTitle(body, len(out)+1), text: body})
	}
	return out
}

func splitEvenly(text string) []section {
	count := len(text) / evenSectionBytes
	if count < minEvenSections {
		count = minEvenSections
	}
	if count > maxEvenSections {
		count = maxEvenSections
	}
	size := len(text) / count

	out := make([]section, 0, count)
	start := 0
	for i := 1; i < count; i++ {
		cut := alignToParagraph(text, i*size)
		if cut <= start || cut >= len(text) {
			continue
		}
		out = append(out, section{title: fmt.Sprintf("Part %d", len(out)+1), text: text[start:cut]})
		start = cut
	}
	out = append(out, section{title: fmt.Sprintf("Part %d", len(out)+1), text: text[start:]})
	return out
}

// alignToParagraph moves pos to the nearest paragraph boundary, or at least
// to a rune boundary.
func alignToParagraph(text string, pos int) int {
	if pos >= len(text) {
		return len(text)
	}
	next := strings.Index(text[pos:], "\n\n")
	prev := strings.LastIndex(text[:pos], "\n\n")
	switch {
	case next >= 0 && (prev < 0 || next <= pos-prev):
		return pos + next + 2
	case prev >= 0:
		return prev + 2
	}
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}

func isHeadingLine(line string) bool {
	if line == "" || utf8.RuneCountInString(line) > maxSectionTitleLen {
		return false
	}
	if namedHeading.MatchString(line) || mdHeading.MatchString(line) || ruleLine.MatchString(line) {
		return true
	}
	return isAllCapsLine(line)
}

func isAllCapsLine(line string) bool {
	if utf8.RuneCountInString(line) < minCapsHeadingLen {
		return false
	}
	letters := 0
	for _, r := range line {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters > 0
}

func sectionTitle(body string, ordinal int) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if trimmed == "" || ruleLine.MatchString(trimmed) {
			continue
		}
		runes := []rune(trimmed)
		if len(runes) > maxSectionTitleLen {
			trimmed = string(runes[:maxSectionTitleLen])
		}
		return trimmed
	}
	return fmt.Sprintf("Section %d", ordinal)
}
