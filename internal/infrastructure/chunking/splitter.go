package chunking

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	DefaultChunkWords         = 300
	DefaultOverlapWords       = 50
	DefaultLargeDocumentBytes = 500 * 1024

	minParagraphs    = 5
	overlapSentences = 3
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
)

// Splitter packs paragraphs or sentences into word-budgeted chunks.
type Splitter struct {
	ChunkWords         int
	OverlapWords       int
	LargeDocumentBytes int
}

func NewSplitter(chunkWords, overlapWords, largeDocumentBytes int) *Splitter {
	if chunkWords <= 0 {
		chunkWords = DefaultChunkWords
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 4
	}
	if largeDocumentBytes <= 0 {
		largeDocumentBytes = DefaultLargeDocumentBytes
	}
	return &Splitter{
		ChunkWords:         chunkWords,
		OverlapWords:       overlapWords,
		LargeDocumentBytes: largeDocumentBytes,
	}
}

// Split returns chunks in document order. Empty input is an error, never an
// empty success.
func (s *Splitter) Split(text string) ([]domain.Chunk, error) {
	normalized := normalizeText(text)
	if strings.TrimSpace(normalized) == "" {
		return nil, domain.WrapError(domain.ErrEmptyDocument, "split text", errors.New("no text content"))
	}

	var out []domain.Chunk
	if len(normalized) <= s.LargeDocumentBytes {
		for _, piece := range s.splitSection(normalized) {
			out = append(out, newChunk(len(out), piece))
		}
	} else {
		for i, sec := range splitSections(normalized) {
			for _, piece := range s.splitSection(sec.text) {
				chunk := newChunk(len(out), piece)
				sectionIndex := i
				chunk.Section = &sectionIndex
				chunk.SectionTitle = sec.title
				out = append(out, chunk)
			}
		}
	}

	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyDocument, "split text", errors.New("chunking produced zero chunks"))
	}
	return out, nil
}

func newChunk(index int, text string) domain.Chunk {
	return domain.Chunk{
		Index:     index,
		Text:      text,
		WordCount: wordCount(text),
	}
}

func (s *Splitter) splitSection(text string) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) < minParagraphs {
		return s.packSentences(splitSentences(text))
	}
	return s.packParagraphs(paragraphs)
}

func (s *Splitter) packParagraphs(paragraphs []string) []string {
	var (
		out          []string
		current      []string
		currentWords int
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, "\n\n"))
		}
		current = nil
		currentWords = 0
	}

	for _, paragraph := range paragraphs {
		words := wordCount(paragraph)
		if words > s.ChunkWords {
			flush()
			out = append(out, s.packSentences(splitSentences(paragraph))...)
			continue
		}
		if currentWords+words > s.ChunkWords {
			flush()
		}
		current = append(current, paragraph)
		currentWords += words
	}
	flush()
	return out
}

// packSentences seeds every new chunk with the tail of the previous one.
// fresh counts sentences not carried over, so a chunk made only of overlap is
// never emitted.
func (s *Splitter) packSentences(sentences []string) []string {
	var (
		out          []string
		current      []string
		currentWords int
		fresh        int
	)
	emit := func() {
		if fresh > 0 {
			out = append(out, strings.Join(current, " "))
		}
	}

	for _, sentence := range sentences {
		words := wordCount(sentence)
		if words == 0 {
			continue
		}
		if words > s.ChunkWords {
			emit()
			out = append(out, splitWords(sentence, s.ChunkWords)...)
			current, currentWords, fresh = nil, 0, 0
			continue
		}
		if fresh > 0 && currentWords+words > s.ChunkWords {
			emit()
			current = s.overlapTail(current)
			currentWords = wordCount(strings.Join(current, " "))
			fresh = 0
			if currentWords+words > s.ChunkWords {
				current, currentWords = nil, 0
			}
		}
		current = append(current, sentence)
		currentWords += words
		fresh++
	}
	emit()
	return out
}

func (s *Splitter) overlapTail(sentences []string) []string {
	if s.OverlapWords <= 0 {
		return nil
	}
	var (
		tail  []string
		words int
	)
	for i := len(sentences) - 1; i >= 0 && len(tail) < overlapSentences; i-- {
		w := wordCount(sentences[i])
		if words+w > s.OverlapWords {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		words += w
	}
	return tail
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return excessNewlines.ReplaceAllString(text, "\n\n")
}

func splitParagraphs(text string) []string {
	parts := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace or
// the end of text.
func splitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/80+1)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if start < len(runes) {
		if sentence := strings.TrimSpace(string(runes[start:])); sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

func splitWords(text string, size int) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words)/size+1)
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
