package analysis

import (
	"strings"
	"unicode/utf8"
)

// Chunker packs whole files into batches bounded by an estimated token budget.
type Chunker struct {
	budget        int
	charsPerToken int
}

func NewChunker(budget, charsPerToken int) *Chunker {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &Chunker{budget: budget, charsPerToken: charsPerToken}
}

// EstimateTokens is ceil(runes / charsPerToken).
func (c *Chunker) EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + c.charsPerToken - 1) / c.charsPerToken
}

func renderFile(f SourceFile) string {
	return "\nFILE: " + f.Path + "\n" + f.Content + "\n"
}

// Chunk splits files into ordered batches. Files are never split: a file that
// alone exceeds the budget becomes a batch of its own.
func (c *Chunker) Chunk(files []SourceFile) []Batch {
	var (
		batches []Batch
		buf     strings.Builder
		paths   []string
		tokens  int
	)
	flush := func() {
		if len(paths) == 0 {
			return
		}
		batches = append(batches, Batch{
			Index:   len(batches),
			Paths:   paths,
			Content: buf.String(),
			Tokens:  tokens,
		})
		buf.Reset()
		paths = nil
		tokens = 0
	}

	for _, f := range files {
		seg := renderFile(f)
		t := c.EstimateTokens(seg)
		if t > c.budget {
			flush()
			batches = append(batches, Batch{
				Index:   len(batches),
				Paths:   []string{f.Path},
				Content: seg,
				Tokens:  t,
			})
			continue
		}
		if tokens+t > c.budget {
			flush()
		}
		buf.WriteString(seg)
		paths = append(paths, f.Path)
		tokens += t
	}
	flush()
	return batches
}
