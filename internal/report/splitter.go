package report

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eduardocaminha/reporter-sub000/internal/prompt"
)

// Splitter separates streamed report prose from the metadata block that
// follows [prompt.MetadataDelimiter]. It holds back just enough text to never
// miss a delimiter split across fragments, and never emits any text once the
// delimiter has been seen.
//
// The concatenation of everything Feed and Flush return does not depend on
// how the input was fragmented. A Splitter is not safe for concurrent use.
type Splitter struct {
	delim    string
	raw      strings.Builder
	carry    string
	metadata bool
}

// NewSplitter returns a Splitter for the standard delimiter.
func NewSplitter() *Splitter {
	return &Splitter{delim: prompt.MetadataDelimiter}
}

// Feed consumes one fragment and returns the text that is now safe to emit,
// or "" when nothing is.
func (s *Splitter) Feed(fragment string) string {
	s.raw.WriteString(fragment)
	if s.metadata {
		return ""
	}
	s.carry += fragment

	if i := strings.Index(s.carry, s.delim); i >= 0 {
		before := strings.TrimRightFunc(s.carry[:i], unicode.IsSpace)
		s.carry = ""
		s.metadata = true
		return before
	}

	if len(s.carry) <= len(s.delim) {
		return ""
	}
	cut := len(s.carry) - len(s.delim)
	for cut > 0 && !utf8.RuneStart(s.carry[cut]) {
		cut--
	}
	// Whitespace is only emitted once text other than the delimiter follows
	// it, so every emitted piece ends on a non-space rune.
	cut = len(strings.TrimRightFunc(s.carry[:cut], unicode.IsSpace))
	out := s.carry[:cut]
	s.carry = s.carry[cut:]
	return out
}

// Flush returns the held-back tail when the stream ended without a
// delimiter. It returns "" once the metadata region was entered.
func (s *Splitter) Flush() string {
	if s.metadata {
		return ""
	}
	out := s.carry
	s.carry = ""
	return out
}

// InMetadata reports whether the delimiter has been seen.
func (s *Splitter) InMetadata() bool { return s.metadata }

// Raw returns everything fed so far.
func (s *Splitter) Raw() string { return s.raw.String() }
