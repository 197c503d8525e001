package wikicode

import (
	"strings"
)

// Recognized parser-extension tags and how their content is handled.
// RAW content stays a single Text node; WIKICODE content is parsed
// recursively.
var extensionTags = map[string]bool{ // name -> content is wikicode
	"ref":             true,
	"references":      true,
	"gallery":         true,
	"poem":            true,
	"indicator":       true,
	"section":         true,
	"nowiki":          false,
	"math":            false,
	"pre":             false,
	"score":           false,
	"source":          false,
	"syntaxhighlight": false,
	"timeline":        false,
	"templatedata":    false,
	"templatestyles":  false,
	"ce":              false,
	"chem":            false,
	"hiero":           false,
	"graph":           false,
	"imagemap":        false,
	"inputbox":        false,
	"mapframe":        false,
	"maplink":         false,
	"categorytree":    false,
}

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkText
	tkLinkBegin       // [[
	tkLinkBrokenBegin // [[[ or more
	tkLinkEnd         // ]]
	tkTemplateBegin   // {{, {{{, ...
	tkTemplateEnd     // }}, }}}, ...
	tkPipe            // |
	tkComment         // <!-- ... -->
	tkTag             // full extension tag
)

type token struct {
	kind  tokenKind
	pos   int    // byte offset in the lexer's buffer
	text  string // payload for tkText
	count int    // bracket/brace run length
	node  Node   // constructed node for tkComment / tkTag
	// unclosed marks a comment without its terminating "-->".
	unclosed bool
}

// closingFinder locates the closing tag for a given name, memoizing
// failed scans so the buffer is rescanned at most once per tag name.
type closingFinder struct {
	src string
	// lower is computed once; tag names match case-insensitively.
	lower      string
	failedFrom map[string]int
}

func newClosingFinder(src string) *closingFinder {
	return &closingFinder{src: src, lower: strings.ToLower(src), failedFrom: make(map[string]int)}
}

// find returns the start and end offsets of the first well-formed
// closing tag </name> at or after from, or ok=false.
func (f *closingFinder) find(name string, from int) (start, end int, ok bool) {
	if failed, seen := f.failedFrom[name]; seen && from >= failed {
		return 0, 0, false
	}
	needle := "</" + name
	lower := f.lower
	for i := from; i < len(lower); {
		j := strings.Index(lower[i:], needle)
		if j < 0 {
			break
		}
		p := i + j
		q := p + len(needle)
		// The name must not continue (e.g. </reference for </ref).
		if q < len(lower) && isTagNameByte(lower[q]) {
			i = p + 1
			continue
		}
		for q < len(f.src) && (f.src[q] == ' ' || f.src[q] == '\t' || f.src[q] == '\n') {
			q++
		}
		if q < len(f.src) && f.src[q] == '>' {
			return p, q + 1, true
		}
		i = p + 1
	}
	f.failedFrom[name] = from
	return 0, 0, false
}

func isTagNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

type lexer struct {
	src    string
	pos    int
	finder *closingFinder
	// parseContent parses the content of a WIKICODE tag; wired by the
	// parser so recursion shares its options and issue sink.
	parseContent func(content string, baseOffset int) *List
}

func newLexer(src string, parseContent func(string, int) *List) *lexer {
	return &lexer{src: src, finder: newClosingFinder(src), parseContent: parseContent}
}

// significant characters start a token; everything else is plain text.
func isSignificant(b byte) bool {
	switch b {
	case '[', ']', '{', '}', '|', '<':
		return true
	}
	return false
}

func (lx *lexer) runLength(b byte) int {
	n := 0
	for lx.pos+n < len(lx.src) && lx.src[lx.pos+n] == b {
		n++
	}
	return n
}

func (lx *lexer) next() token {
	if lx.pos >= len(lx.src) {
		return token{kind: tkEOF, pos: lx.pos}
	}
	start := lx.pos
	switch b := lx.src[lx.pos]; b {
	case '<':
		if tok, ok := lx.lexComment(); ok {
			return tok
		}
		if tok, ok := lx.lexTag(); ok {
			return tok
		}
		return lx.lexText()
	case '[':
		n := lx.runLength('[')
		if n >= 3 {
			lx.pos += n
			return token{kind: tkLinkBrokenBegin, pos: start, count: n}
		}
		if n == 2 {
			lx.pos += 2
			return token{kind: tkLinkBegin, pos: start}
		}
		return lx.lexText()
	case ']':
		n := lx.runLength(']')
		if n > 2 {
			// The closing pair binds at the end of the run; the extra
			// closers stay inside the link as text.
			lx.pos += n - 2
			return token{kind: tkText, pos: start, text: lx.src[start:lx.pos]}
		}
		if n == 2 {
			lx.pos += 2
			return token{kind: tkLinkEnd, pos: start}
		}
		return lx.lexText()
	case '{':
		n := lx.runLength('{')
		if n >= 2 {
			lx.pos += n
			return token{kind: tkTemplateBegin, pos: start, count: n}
		}
		return lx.lexText()
	case '}':
		n := lx.runLength('}')
		if n >= 2 {
			lx.pos += n
			return token{kind: tkTemplateEnd, pos: start, count: n}
		}
		return lx.lexText()
	case '|':
		lx.pos++
		return token{kind: tkPipe, pos: start}
	default:
		return lx.lexText()
	}
}

// lexText consumes one character (which may be a significant character
// that failed to start a token) plus the following run of ordinary
// characters.
func (lx *lexer) lexText() token {
	start := lx.pos
	lx.pos++
	for lx.pos < len(lx.src) && !isSignificant(lx.src[lx.pos]) {
		lx.pos++
	}
	return token{kind: tkText, pos: start, text: lx.src[start:lx.pos]}
}

func (lx *lexer) lexComment() (token, bool) {
	if !strings.HasPrefix(lx.src[lx.pos:], "<!--") {
		return token{}, false
	}
	start := lx.pos
	end := strings.Index(lx.src[lx.pos+4:], "-->")
	unclosed := false
	if end < 0 {
		lx.pos = len(lx.src)
		unclosed = true
	} else {
		lx.pos = lx.pos + 4 + end + 3
	}
	return token{
		kind:     tkComment,
		pos:      start,
		node:     &Comment{Value: lx.src[start:lx.pos]},
		unclosed: unclosed,
	}, true
}

// lexTag recognizes an opening extension tag and, through the closing
// finder, its whole extent. A "<" that does not open a recognized tag
// is left for lexText.
func (lx *lexer) lexTag() (token, bool) {
	start := lx.pos
	i := lx.pos + 1
	if i < len(lx.src) && lx.src[i] == '/' {
		// A closing tag with no matching opening is plain text.
		return token{}, false
	}
	nameStart := i
	for i < len(lx.src) && isTagNameByte(lx.src[i]) {
		i++
	}
	if i == nameStart {
		return token{}, false
	}
	name := strings.ToLower(lx.src[nameStart:i])
	wikicodeContent, recognized := extensionTags[name]
	if !recognized {
		return token{}, false
	}
	// The attribute section may contain anything but "<" up to ">".
	gt := -1
	for j := i; j < len(lx.src); j++ {
		if lx.src[j] == '>' {
			gt = j
			break
		}
		if lx.src[j] == '<' {
			break
		}
	}
	if gt < 0 {
		return token{}, false
	}
	openingTag := lx.src[start : gt+1]

	if strings.HasSuffix(openingTag, "/>") {
		lx.pos = gt + 1
		return token{kind: tkTag, pos: start, node: &Tag{Name: name, OpeningTag: openingTag}}, true
	}

	cstart, cend, found := lx.finder.find(name, gt+1)
	if !found {
		if name != "pre" {
			// Without a closing tag the opening is plain text.
			return token{}, false
		}
		// <pre> is allowed to extend to the end of the input.
		cstart, cend = len(lx.src), len(lx.src)
	}
	content := lx.src[gt+1 : cstart]
	tag := &Tag{Name: name, OpeningTag: openingTag, ClosingTag: lx.src[cstart:cend]}
	if wikicodeContent {
		tag.Content = lx.parseContent(content, gt+1)
	} else {
		tag.Content = &List{}
		tag.Content.AppendText(content)
	}
	lx.pos = cend
	return token{kind: tkTag, pos: start, node: tag}, true
}
