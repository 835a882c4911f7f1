package chunking

import "strings"

// defaultSeparators are tried in order: paragraphs, lines, sentences, words, characters.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// splitter recursively splits text into spans of at most size runes,
// repeating up to overlap runes between consecutive spans.
type splitter struct {
	size       int
	overlap    int
	separators []string
}

func runeLen(s string) int { return len([]rune(s)) }

// split returns the non-blank spans of text.
func (s *splitter) split(text string) []string {
	return s.splitWith(text, s.separators)
}

func (s *splitter) splitWith(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) <= s.size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, s.splitWith(p, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep)...)
	}
	return out
}

// merge packs pieces into spans joined by sep, carrying trailing pieces
// of up to overlap runes into the next span.
func (s *splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var out, current []string
	total := 0

	joinedLen := func() int {
		if len(current) == 0 {
			return 0
		}
		return total + sepLen*(len(current)-1)
	}

	for _, p := range pieces {
		pLen := runeLen(p)
		extra := pLen
		if len(current) > 0 {
			extra += sepLen
		}

		if len(current) > 0 && joinedLen()+extra > s.size {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for len(current) > 0 && (joinedLen() > s.overlap || joinedLen()+pLen+sepLen > s.size) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}

		current = append(current, p)
		total += pLen
	}

	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}
