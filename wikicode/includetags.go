package wikicode

import (
	"fmt"
	"strings"
)

// IncludeTagErrorKind classifies an inclusion-control markup problem.
type IncludeTagErrorKind int

const (
	// IncludeTagNested is a tag opened inside an identical open tag.
	IncludeTagNested IncludeTagErrorKind = iota
	// IncludeTagMismatch is a closing tag without its opening, or an
	// opening left unclosed at the end of the input.
	IncludeTagMismatch
	// IncludeTagConflict is <includeonly> and <noinclude> covering the
	// same span.
	IncludeTagConflict
)

// IncludeTagError reports one inclusion-control markup problem.
type IncludeTagError struct {
	Kind   IncludeTagErrorKind
	Tag    string
	Offset int
}

func (e *IncludeTagError) Error() string {
	switch e.Kind {
	case IncludeTagNested:
		return fmt.Sprintf("nested <%s> at offset %d", e.Tag, e.Offset)
	case IncludeTagConflict:
		return fmt.Sprintf("<includeonly> and <noinclude> overlap at offset %d", e.Offset)
	default:
		return fmt.Sprintf("mismatched <%s> at offset %d", e.Tag, e.Offset)
	}
}

// IncludeParts is the result of splitting a page by inclusion-control
// tags: the text seen when viewing the page itself, and the text seen
// when the page is transcluded.
type IncludeParts struct {
	NonTranscluded string
	Transcluded    string
}

// ParseIncludeTags splits code on <includeonly>, <noinclude> and
// <onlyinclude>, in a single linear scan that also honors raw-text
// spans (<nowiki>, <pre> and comments). When any <onlyinclude> is
// present, the transcluded output is formed from those sections only.
// All markup problems are collected and returned alongside the result.
func ParseIncludeTags(code string) (IncludeParts, []error) {
	var errs []error
	var nonTranscluded, transcluded strings.Builder

	hasOnlyInclude := findIncludeTag(code, 0, "onlyinclude", false) >= 0

	inIncludeOnly := false
	inNoInclude := false
	inOnlyInclude := false

	emit := func(s string) {
		if !inIncludeOnly {
			nonTranscluded.WriteString(s)
		}
		if !inNoInclude && (!hasOnlyInclude || inOnlyInclude) {
			transcluded.WriteString(s)
		}
	}

	i := 0
	for i < len(code) {
		lt := strings.IndexByte(code[i:], '<')
		if lt < 0 {
			emit(code[i:])
			break
		}
		emit(code[i : i+lt])
		i += lt

		if raw, next := rawSpan(code, i); next > i {
			emit(raw)
			i = next
			continue
		}

		name, closing, next := includeTagAt(code, i)
		if next == i {
			emit(code[i : i+1])
			i++
			continue
		}

		switch {
		case !closing && name == "includeonly":
			if inIncludeOnly {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagNested, Tag: name, Offset: i})
			}
			if inNoInclude {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagConflict, Tag: name, Offset: i})
			}
			inIncludeOnly = true
		case closing && name == "includeonly":
			if !inIncludeOnly {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagMismatch, Tag: name, Offset: i})
			}
			inIncludeOnly = false
		case !closing && name == "noinclude":
			if inNoInclude {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagNested, Tag: name, Offset: i})
			}
			if inIncludeOnly {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagConflict, Tag: name, Offset: i})
			}
			inNoInclude = true
		case closing && name == "noinclude":
			if !inNoInclude {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagMismatch, Tag: name, Offset: i})
			}
			inNoInclude = false
		case !closing && name == "onlyinclude":
			if inOnlyInclude {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagNested, Tag: name, Offset: i})
			}
			inOnlyInclude = true
		case closing && name == "onlyinclude":
			if !inOnlyInclude {
				errs = append(errs, &IncludeTagError{Kind: IncludeTagMismatch, Tag: name, Offset: i})
			}
			inOnlyInclude = false
		}
		i = next
	}

	for tag, open := range map[string]bool{
		"includeonly": inIncludeOnly,
		"noinclude":   inNoInclude,
		"onlyinclude": inOnlyInclude,
	} {
		if open {
			errs = append(errs, &IncludeTagError{Kind: IncludeTagMismatch, Tag: tag, Offset: len(code)})
		}
	}

	return IncludeParts{
		NonTranscluded: nonTranscluded.String(),
		Transcluded:    transcluded.String(),
	}, errs
}

// rawSpan recognizes a comment, <nowiki> or <pre> span starting at i
// and returns it verbatim with the offset past it; next == i when no
// raw span starts here. Unclosed spans extend to the end of the input.
func rawSpan(code string, i int) (raw string, next int) {
	if strings.HasPrefix(code[i:], "<!--") {
		end := strings.Index(code[i+4:], "-->")
		if end < 0 {
			return code[i:], len(code)
		}
		next = i + 4 + end + 3
		return code[i:next], next
	}
	for _, tag := range []string{"nowiki", "pre"} {
		open := "<" + tag + ">"
		if !strings.HasPrefix(code[i:], open) {
			continue
		}
		closeTag := "</" + tag + ">"
		end := strings.Index(code[i+len(open):], closeTag)
		if end < 0 {
			return code[i:], len(code)
		}
		next = i + len(open) + end + len(closeTag)
		return code[i:next], next
	}
	return "", i
}

// includeTagAt matches one of the three inclusion-control tags at i;
// next == i when none matches.
func includeTagAt(code string, i int) (name string, closing bool, next int) {
	j := i + 1
	if j < len(code) && code[j] == '/' {
		closing = true
		j++
	}
	for _, candidate := range []string{"includeonly", "noinclude", "onlyinclude"} {
		if !hasFoldPrefix(code[j:], candidate) {
			continue
		}
		k := j + len(candidate)
		for k < len(code) && (code[k] == ' ' || code[k] == '\t') {
			k++
		}
		if k < len(code) && code[k] == '>' {
			return candidate, closing, k + 1
		}
	}
	return "", false, i
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// findIncludeTag locates the next opening (or closing) occurrence of
// the given inclusion-control tag, skipping raw spans; -1 when absent.
func findIncludeTag(code string, from int, tag string, closing bool) int {
	i := from
	for i < len(code) {
		lt := strings.IndexByte(code[i:], '<')
		if lt < 0 {
			return -1
		}
		i += lt
		if _, next := rawSpan(code, i); next > i {
			i = next
			continue
		}
		name, isClosing, next := includeTagAt(code, i)
		if next > i && name == tag && isClosing == closing {
			return i
		}
		if next > i {
			i = next
		} else {
			i++
		}
	}
	return -1
}
