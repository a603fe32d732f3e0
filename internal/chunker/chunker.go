// Package chunker splits documents into overlapping text segments sized for
// embedding. Three strategies are supported: "semantic" splits on markdown
// heading boundaries first and falls back to window splitting inside oversized
// sections; "simple" and "paragraph" slide a fixed-size window, nudging each
// window edge forward to the nearest paragraph break or sentence ending so
// chunks do not cut mid-sentence when a nearby boundary exists.
package chunker

import (
	"regexp"
	"strings"
)

// Strategy selects the splitting algorithm.
type Strategy string

const (
	// StrategySemantic splits on markdown headings, then by window inside
	// oversized sections.
	StrategySemantic Strategy = "semantic"
	// StrategyParagraph slides a window preferring paragraph-break edges.
	StrategyParagraph Strategy = "paragraph"
	// StrategySimple slides a window preferring sentence edges.
	StrategySimple Strategy = "simple"
)

const (
	// defaultChunkSize is the window size in bytes when Options.ChunkSize
	// is zero.
	defaultChunkSize = 1000
	// defaultOverlap is the overlap between consecutive windows when
	// Options.Overlap is zero. Disjoint windows require an explicit
	// negative Overlap.
	defaultOverlap = 100

	// paragraphSlack is how far past the nominal window edge the splitter
	// searches for a paragraph break ("\n\n").
	paragraphSlack = 100
	// sentenceSlack is how far past the nominal window edge the splitter
	// searches for sentence-ending punctuation when no paragraph break was
	// found. Beyond this the split happens mid-word.
	sentenceSlack = 150
)

// Document is the input to Split: a unit of raw text with identity metadata.
type Document struct {
	// ID uniquely identifies the document across the corpus.
	ID string
	// Title is the human-readable document title, if known.
	Title string
	// Content is the full raw text.
	Content string
	// Source is the origin URI or file path.
	Source string
}

// Metadata describes a chunk's position within its source document.
type Metadata struct {
	// Source is the origin URI or file path of the parent document.
	Source string
	// DocumentID is the parent document's ID.
	DocumentID string
	// Title is the parent document's title.
	Title string
	// Section is the heading text of the section this chunk belongs to
	// (semantic strategy only; empty otherwise).
	Section string
	// ChunkIndex is this chunk's zero-based position among the document's
	// chunks. Always less than TotalChunks.
	ChunkIndex int
	// TotalChunks is the number of chunks the document produced.
	TotalChunks int
}

// Chunk is a bounded contiguous slice of a document's text, independently
// embeddable. Embedding is nil until attached by the embedding generator;
// once attached the chunk is treated as immutable.
type Chunk struct {
	// Content is the chunk text. Never empty.
	Content string
	// Metadata locates the chunk within its document.
	Metadata Metadata
	// Embedding is the dense vector for Content, attached after generation.
	Embedding []float32
}

// Options controls how Split segments a document.
type Options struct {
	// Strategy selects the splitting algorithm. Defaults to StrategySimple.
	Strategy Strategy
	// ChunkSize is the target chunk length in bytes. Defaults to 1000.
	ChunkSize int
	// Overlap is the number of bytes consecutive chunks share. Zero uses
	// the 100-byte default; a negative value requests disjoint windows.
	// Forward progress is guaranteed even when Overlap >= ChunkSize.
	Overlap int
	// MaxChunksPerDocument, when > 0, truncates the chunk list after
	// generation; indices and totals are renumbered against the truncated
	// length.
	MaxChunksPerDocument int
}

// headingRe matches markdown ATX headings at the start of a line.
var headingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

// Split segments doc according to opts. Documents no larger than the chunk
// size come back as a single chunk. An empty document yields no chunks.
func Split(doc Document, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	switch {
	case opts.Overlap == 0:
		opts.Overlap = defaultOverlap
	case opts.Overlap < 0:
		opts.Overlap = 0
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySimple
	}

	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil
	}

	type piece struct {
		text    string
		section string
	}
	var pieces []piece

	if len(content) <= opts.ChunkSize {
		pieces = []piece{{text: content}}
	} else if opts.Strategy == StrategySemantic {
		for _, sec := range splitSections(content) {
			if len(sec.body) <= opts.ChunkSize {
				pieces = append(pieces, piece{text: sec.body, section: sec.title})
				continue
			}
			for _, w := range slideWindow(sec.body, opts.ChunkSize, opts.Overlap) {
				pieces = append(pieces, piece{text: w, section: sec.title})
			}
		}
	} else {
		for _, w := range slideWindow(content, opts.ChunkSize, opts.Overlap) {
			pieces = append(pieces, piece{text: w})
		}
	}

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content: text,
			Metadata: Metadata{
				Source:     doc.Source,
				DocumentID: doc.ID,
				Title:      doc.Title,
				Section:    p.section,
			},
		})
	}

	if opts.MaxChunksPerDocument > 0 && len(chunks) > opts.MaxChunksPerDocument {
		chunks = chunks[:opts.MaxChunksPerDocument]
	}
	for i := range chunks {
		chunks[i].Metadata.ChunkIndex = i
		chunks[i].Metadata.TotalChunks = len(chunks)
	}

	return chunks
}

// section is a heading-delimited region of a document.
type section struct {
	// title is the heading text, empty for the preamble before the first
	// heading.
	title string
	// body is the section text including its heading line.
	body string
}

// splitSections splits content on markdown headings. Each section runs from
// one heading to the next; text before the first heading forms an untitled
// preamble section. Content without headings comes back as one section.
func splitSections(content string) []section {
	matches := headingRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []section{{body: content}}
	}

	var sections []section
	if pre := strings.TrimSpace(content[:matches[0][0]]); pre != "" {
		sections = append(sections, section{body: pre})
	}
	for i, m := range matches {
		start := m[0]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, section{
			title: strings.TrimSpace(content[m[2]:m[3]]),
			body:  strings.TrimSpace(content[start:end]),
		})
	}
	return sections
}

// slideWindow splits text into overlapping windows of roughly size bytes.
// Each window edge is nudged forward to the nearest paragraph break within
// paragraphSlack bytes, else the nearest sentence ending within sentenceSlack
// bytes, else the split lands mid-word. The next window starts size-overlap
// bytes after the previous one, clamped to guarantee forward progress.
func slideWindow(text string, size, overlap int) []string {
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var windows []string
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			windows = append(windows, text[start:])
			break
		}
		end = nudgeBoundary(text, end)
		windows = append(windows, text[start:end])
		if end == len(text) {
			break
		}
	}
	return windows
}

// nudgeBoundary moves the window edge at end forward to the nearest natural
// boundary, or returns end unchanged when none exists within slack.
func nudgeBoundary(text string, end int) int {
	// Paragraph break first.
	stop := end + paragraphSlack
	if stop > len(text) {
		stop = len(text)
	}
	if idx := strings.Index(text[end:stop], "\n\n"); idx >= 0 {
		return end + idx
	}

	// Sentence-ending punctuation next.
	stop = end + sentenceSlack
	if stop > len(text) {
		stop = len(text)
	}
	for i := end; i < stop; i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
			return i + 1
		}
	}

	// Mid-word it is.
	return end
}
