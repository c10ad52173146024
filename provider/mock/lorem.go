package mock

import (
	"strings"
	"sync"

	loremgen "github.com/bozaro/golorem"
	"github.com/casualjim/weft/provider"
)

// Lorem generates placeholder text for demo streams.
type Lorem struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
}

func NewLorem() *Lorem {
	return &Lorem{generator: loremgen.New()}
}

// Paragraphs returns n paragraphs separated by blank lines.
func (l *Lorem) Paragraphs(n int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	paragraphs := make([]string, n)
	for i := range paragraphs {
		paragraphs[i] = l.generator.Paragraph(3, 5)
	}
	return strings.Join(paragraphs, "\n\n")
}

// Sentence returns one sentence.
func (l *Lorem) Sentence() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generator.Sentence(5, 15)
}

// Stream scripts a step that streams n paragraphs word by word.
func (l *Lorem) Stream(n int) []provider.StreamEvent {
	return TextChunks(strings.SplitAfter(l.Paragraphs(n), " ")...)
}
