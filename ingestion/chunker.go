// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"strings"

	"github.com/poiesic/filesense/core"
)

// Span is one chunk of a document: its text plus the byte range it covers
// in the original content.
type Span struct {
	Text  string
	Range core.ByteRange
}

// segment is a half-open byte range [start, end) into the source content.
type segment struct {
	start int
	end   int
}

// SplitChunks cuts document content into chunks of at most size bytes.
// Paragraphs (blank-line separated) are packed greedily; a paragraph larger
// than size is split at sentence boundaries, and a single oversized sentence
// is split at word boundaries with overlap bytes shared between adjacent
// pieces. Whitespace-only chunks are dropped.
func SplitChunks(content string, size, overlap int) []Span {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var spans []Span
	cur := segment{start: -1}
	flush := func() {
		if cur.start >= 0 {
			spans = appendSpan(spans, content, cur)
			cur = segment{start: -1}
		}
	}

	for _, p := range paragraphs(content) {
		if p.end-p.start > size {
			flush()
			spans = append(spans, splitOversize(content, p, size, overlap)...)
			continue
		}
		if cur.start < 0 {
			cur = p
			continue
		}
		if p.end-cur.start <= size {
			cur.end = p.end
		} else {
			flush()
			cur = p
		}
	}
	flush()

	return spans
}

// paragraphs splits content at blank lines, returning byte ranges of the
// non-empty blocks.
func paragraphs(content string) []segment {
	var segs []segment
	start := -1
	lineStart := 0
	blank := true

	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == '\n' {
			if !blank && start < 0 {
				start = lineStart
			}
			if blank && start >= 0 {
				segs = append(segs, segment{start: start, end: lineStart - 1})
				start = -1
			}
			lineStart = i + 1
			blank = true
			continue
		}
		if content[i] != ' ' && content[i] != '\t' && content[i] != '\r' {
			blank = false
		}
	}
	if start >= 0 {
		segs = append(segs, segment{start: start, end: len(content)})
	}
	return segs
}

// splitOversize cuts a paragraph larger than size at sentence boundaries,
// packing sentences greedily and falling back to word splitting for a
// sentence that is itself oversized.
func splitOversize(content string, seg segment, size, overlap int) []Span {
	var spans []Span
	cur := segment{start: -1}
	flush := func() {
		if cur.start >= 0 {
			spans = appendSpan(spans, content, cur)
			cur = segment{start: -1}
		}
	}

	for _, s := range sentences(content, seg) {
		if s.end-s.start > size {
			flush()
			spans = append(spans, splitWords(content, s, size, overlap)...)
			continue
		}
		if cur.start < 0 {
			cur = s
			continue
		}
		if s.end-cur.start <= size {
			cur.end = s.end
		} else {
			flush()
			cur = s
		}
	}
	flush()

	return spans
}

// sentences splits a segment after '.', '!', or '?' followed by whitespace.
func sentences(content string, seg segment) []segment {
	var segs []segment
	start := seg.start
	for i := seg.start; i < seg.end-1; i++ {
		c := content[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(content[i+1]) {
			segs = append(segs, segment{start: start, end: i + 1})
			start = i + 1
			for start < seg.end && isSpace(content[start]) {
				start++
			}
			i = start - 1
		}
	}
	if start < seg.end {
		segs = append(segs, segment{start: start, end: seg.end})
	}
	return segs
}

// splitWords hard-splits a segment into size-bounded pieces, preferring to
// break at whitespace and carrying overlap bytes into the next piece.
func splitWords(content string, seg segment, size, overlap int) []Span {
	var spans []Span
	start := seg.start
	for start < seg.end {
		end := start + size
		if end >= seg.end {
			end = seg.end
		} else {
			cut := end
			for cut > start && !isSpace(content[cut]) {
				cut--
			}
			if cut > start {
				end = cut
			}
		}

		spans = appendSpan(spans, content, segment{start: start, end: end})
		if end >= seg.end {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

func appendSpan(spans []Span, content string, seg segment) []Span {
	text := content[seg.start:seg.end]
	if strings.TrimSpace(text) == "" {
		return spans
	}
	return append(spans, Span{
		Text:  text,
		Range: core.ByteRange{Start: uint64(seg.start), End: uint64(seg.end)},
	})
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
