package wikicode

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Mode selects how parsing reacts to malformed input.
type Mode int

const (
	// Lenient parsing never fails; malformed constructs stay as text.
	Lenient Mode = iota
	// Strict parsing reports every unmatched opener or closer, invalid
	// link opening, line break in a link target, unclosed comment and
	// depth-limit hit as a ParseError.
	Strict
)

// DefaultMaxDepth bounds the depth of the constructed tree; deeper
// constructs degrade to plain text.
const DefaultMaxDepth = 1000

// Options configures the parser.
type Options struct {
	Mode     Mode
	MaxDepth int // 0 means DefaultMaxDepth
}

// Issue is one problem found in strict mode.
type Issue struct {
	Line    int // 1-based
	Col     int // 1-based, in runes
	Message string
	Preview string // at most 20 runes of the offending input
}

// ParseError reports every issue found in strict mode.
type ParseError struct {
	Issues []Issue
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("wikicode parse error")
	for _, issue := range e.Issues {
		fmt.Fprintf(&sb, "\n  %d:%d: %s near %q", issue.Line, issue.Col, issue.Message, issue.Preview)
	}
	return sb.String()
}

// Parse parses wikicode leniently. For any input,
// Parse(s).String() == s.
func Parse(code string) *List {
	root, _, _ := ParseWithOptions(code, Options{})
	return root
}

// ParseStrict parses wikicode and fails with a *ParseError when the
// input is malformed.
func ParseStrict(code string) (*List, error) {
	root, _, err := ParseWithOptions(code, Options{Mode: Strict})
	return root, err
}

// ParseWithOptions parses wikicode and also returns the depth of the
// constructed tree. In strict mode err is a *ParseError listing all
// issues; the tree is still returned and renders back to the input.
func ParseWithOptions(code string, opts Options) (*List, int, error) {
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	p := &parser{opts: opts}
	root, depth := p.parse(code, 0)
	if p.relinkCandidate {
		// Second pass: give pending links priority over template
		// closings, so links that lost their opening to a template
		// reduction are recovered. Issues keep coming from the first
		// pass; the fallback only reshapes the tree.
		p2 := &parser{opts: Options{Mode: Lenient, MaxDepth: opts.MaxDepth}, linkFirst: true}
		root, depth = p2.parse(code, 0)
	}
	if opts.Mode == Strict && len(p.issues) > 0 {
		return root, depth, p.buildError(code)
	}
	return root, depth, nil
}

type rawIssue struct {
	pos int
	msg string
}

type parser struct {
	opts          Options
	issues        []rawIssue
	depthReported bool
	// relinkCandidate is set when a template reduction swallowed a link
	// opening and a later link closing went unmatched; the second pass
	// with linkFirst then lets the link win over the template.
	linkBeginDegraded bool
	unmatchedLinkEnd  bool
	relinkCandidate   bool
	linkFirst         bool
}

func (p *parser) report(pos int, msg string) {
	p.issues = append(p.issues, rawIssue{pos: pos, msg: msg})
}

func (p *parser) reportDepth(pos int) {
	if p.depthReported {
		return
	}
	p.depthReported = true
	p.report(pos, "maximum depth reached")
}

func (p *parser) buildError(code string) error {
	sort.Slice(p.issues, func(i, j int) bool { return p.issues[i].pos < p.issues[j].pos })
	issues := make([]Issue, len(p.issues))
	for i, raw := range p.issues {
		line, col := lineCol(code, raw.pos)
		issues[i] = Issue{Line: line, Col: col, Message: raw.msg, Preview: preview(code, raw.pos)}
	}
	return &ParseError{Issues: issues}
}

func lineCol(code string, pos int) (int, int) {
	if pos > len(code) {
		pos = len(code)
	}
	line := 1 + strings.Count(code[:pos], "\n")
	lineStart := strings.LastIndexByte(code[:pos], '\n') + 1
	col := 1 + utf8.RuneCountInString(code[lineStart:pos])
	return line, col
}

func preview(code string, pos int) string {
	if pos > len(code) {
		pos = len(code)
	}
	rest := code[pos:]
	count := 0
	for i := range rest {
		if count == 20 {
			return rest[:i]
		}
		count++
	}
	return rest
}

type itemKind int

const (
	siNode itemKind = iota
	siLinkBegin
	siTemplateBegin
	siPipe
)

type stackItem struct {
	kind  itemKind
	node  Node
	depth int // for siNode
	count int // brace count for siTemplateBegin
	pos   int // source offset, for error reporting
}

type stack struct {
	items []stackItem
}

func (s *stack) pushNode(n Node, depth int) {
	if t, ok := n.(*Text); ok {
		if t.Value == "" {
			return
		}
		if len(s.items) > 0 {
			last := &s.items[len(s.items)-1]
			if last.kind == siNode {
				if lt, ok := last.node.(*Text); ok {
					lt.Value += t.Value
					return
				}
			}
		}
	}
	s.items = append(s.items, stackItem{kind: siNode, node: n, depth: depth})
}

func (s *stack) pushText(text string) {
	s.pushNode(&Text{Value: text}, 1)
}

func (s *stack) pushMarker(kind itemKind, pos, count int) {
	s.items = append(s.items, stackItem{kind: kind, pos: pos, count: count})
}

// lastMarker returns the index of the topmost marker of the given
// kind, or -1.
func (s *stack) lastMarker(kind itemKind) int {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].kind == kind {
			return i
		}
	}
	return -1
}

func (p *parser) parse(src string, baseOffset int) (*List, int) {
	st := &stack{}
	lx := newLexer(src, func(content string, off int) *List {
		sub, _ := p.parse(content, baseOffset+off)
		return sub
	})

	for {
		tok := lx.next()
		if tok.kind == tkEOF {
			break
		}
		switch tok.kind {
		case tkText:
			st.pushText(tok.text)
		case tkComment:
			if tok.unclosed && p.opts.Mode == Strict {
				p.report(baseOffset+tok.pos, "unclosed comment")
			}
			st.pushNode(tok.node, 1)
		case tkTag:
			depth := Depth(tok.node)
			if depth > p.opts.MaxDepth {
				p.reportDepth(baseOffset + tok.pos)
				st.pushText(render(tok.node))
			} else {
				st.pushNode(tok.node, depth)
			}
		case tkPipe:
			st.pushMarker(siPipe, baseOffset+tok.pos, 0)
		case tkLinkBegin:
			st.pushMarker(siLinkBegin, baseOffset+tok.pos, 0)
		case tkLinkBrokenBegin:
			if p.opts.Mode == Strict {
				p.report(baseOffset+tok.pos, "invalid link opening")
			}
			st.pushText(strings.Repeat("[", tok.count-2))
			st.pushMarker(siLinkBegin, baseOffset+tok.pos+tok.count-2, 0)
		case tkLinkEnd:
			p.reduceLink(st, baseOffset+tok.pos)
		case tkTemplateBegin:
			st.pushMarker(siTemplateBegin, baseOffset+tok.pos, tok.count)
		case tkTemplateEnd:
			p.reduceTemplate(st, baseOffset+tok.pos, tok.count)
		}
	}

	// Unreduced markers become plain text.
	root := &List{}
	depth := 1
	for _, item := range st.items {
		switch item.kind {
		case siNode:
			root.Append(item.node)
			if item.depth+1 > depth {
				depth = item.depth + 1
			}
		case siLinkBegin:
			p.reportStrict(item.pos, "unmatched link opening")
			p.linkBeginDegraded = true
			root.AppendText("[[")
		case siTemplateBegin:
			p.reportStrict(item.pos, "unmatched template opening")
			root.AppendText(strings.Repeat("{", item.count))
		case siPipe:
			root.AppendText("|")
		}
	}
	if p.linkBeginDegraded && p.unmatchedLinkEnd {
		p.relinkCandidate = true
	}
	return root, depth
}

func (p *parser) reportStrict(pos int, msg string) {
	if p.opts.Mode == Strict {
		p.report(pos, msg)
	}
}

// splitFields turns the stack items above marker index i into "|"
// separated field lists. Markers of the other construct kind degrade
// to their literal text.
func (p *parser) splitFields(st *stack, from int) (fields []*List, maxDepth int) {
	current := &List{}
	fields = []*List{current}
	appendNode := func(n Node, depth int) {
		current.Append(n)
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	for _, item := range st.items[from:] {
		switch item.kind {
		case siNode:
			appendNode(item.node, item.depth)
		case siLinkBegin:
			p.reportStrict(item.pos, "unmatched link opening")
			p.linkBeginDegraded = true
			appendNode(&Text{Value: "[["}, 1)
		case siTemplateBegin:
			p.reportStrict(item.pos, "unmatched template opening")
			appendNode(&Text{Value: strings.Repeat("{", item.count)}, 1)
		case siPipe:
			current = &List{}
			fields = append(fields, current)
		}
	}
	st.items = st.items[:from]
	return fields, maxDepth
}

func (p *parser) reduceLink(st *stack, pos int) {
	begin := st.lastMarker(siLinkBegin)
	if begin < 0 {
		p.reportStrict(pos, "unmatched link closing")
		p.unmatchedLinkEnd = true
		st.pushText("]]")
		return
	}
	beginPos := st.items[begin].pos
	fields, maxItemDepth := p.splitFields(st, begin+1)
	st.items = st.items[:begin]

	if p.opts.Mode == Strict {
		if target, ok := textOnlyContent(fields[0]); ok && strings.ContainsRune(target, '\n') {
			p.report(beginPos, "line break in link target")
		}
	}

	link := &Link{NodeWithFields{Fields: fields}}
	depth := maxItemDepth + 2
	if depth > p.opts.MaxDepth {
		p.reportDepth(beginPos)
		st.pushText(render(link))
		return
	}
	st.pushNode(link, depth)
}

func (p *parser) reduceTemplate(st *stack, pos, closeCount int) {
	begin := st.lastMarker(siTemplateBegin)
	if begin < 0 {
		p.reportStrict(pos, "unmatched template closing")
		st.pushText(strings.Repeat("}", closeCount))
		return
	}
	if p.linkFirst && st.lastMarker(siLinkBegin) > begin {
		// A link opened after this template did; let the link reduce
		// first and keep the closing braces as text.
		st.pushText(strings.Repeat("}", closeCount))
		return
	}
	openCount := st.items[begin].count
	beginPos := st.items[begin].pos
	fields, maxItemDepth := p.splitFields(st, begin+1)

	used := 2
	isVariable := openCount >= 3 && closeCount >= 3
	if isVariable {
		used = 3
	}

	// The innermost braces of the opening run match; surplus opening
	// braces stay on the stack, as a shorter opener when two or more
	// remain, as plain text otherwise.
	switch left := openCount - used; {
	case left >= 2:
		st.items[begin].count = left
	case left == 1:
		st.items = st.items[:begin]
		st.pushText("{")
	default:
		st.items = st.items[:begin]
	}

	var node Node
	if isVariable {
		v := &Variable{NameNode: fields[0]}
		if len(fields) > 1 {
			v.DefaultValue = joinFields(fields[1:])
		}
		node = v
	} else {
		node = &Template{NodeWithFields{Fields: fields}}
	}
	depth := maxItemDepth + 2
	if depth > p.opts.MaxDepth {
		p.reportDepth(beginPos)
		st.pushText(render(node))
	} else {
		st.pushNode(node, depth)
	}

	// Surplus closing braces try to close an enclosing construct; a
	// single leftover brace is plain text.
	switch right := closeCount - used; {
	case right >= 2:
		p.reduceTemplate(st, pos+used, right)
	case right == 1:
		st.pushText("}")
	}
}

// joinFields merges fields back into one list with literal "|"
// separators; a variable's default value keeps its pipes as text.
func joinFields(fields []*List) *List {
	out := &List{}
	for i, f := range fields {
		if i > 0 {
			out.AppendText("|")
		}
		for _, item := range f.Items {
			out.Append(item)
		}
	}
	return out
}

