// Package wikicode parses MediaWiki markup into a mutable tree and
// renders it back to the exact source text. The parser is a single-pass
// lexer feeding a shift-reduce loop; for any input, parsing and
// re-rendering returns the original bytes.
package wikicode

import "strings"

// NodeType identifies the concrete type of a Node.
type NodeType int

const (
	ListType NodeType = 1 << iota
	TextType
	CommentType
	TagType
	LinkType
	TemplateType
	VariableType

	// AnyType matches every node type in traversal filters.
	AnyType NodeType = 0
)

// Node is one element of a wikicode tree. Nodes own their children
// exclusively; moving a subtree between trees requires detaching it
// from its previous parent first.
type Node interface {
	Type() NodeType
	// Copy returns a deep copy of the node.
	Copy() Node
	writeTo(sb *strings.Builder)
}

// List is an ordered sequence of child nodes. The parser guarantees
// that a List never contains adjacent Text children and never contains
// an empty Text.
type List struct {
	Items []Node
}

func (l *List) Type() NodeType { return ListType }

// Append adds a node at the end of the list, merging it with a
// trailing Text child when both are text and dropping empty text.
func (l *List) Append(n Node) {
	if t, ok := n.(*Text); ok {
		if t.Value == "" {
			return
		}
		if len(l.Items) > 0 {
			if last, ok := l.Items[len(l.Items)-1].(*Text); ok {
				last.Value += t.Value
				return
			}
		}
	}
	l.Items = append(l.Items, n)
}

// AppendText is Append for raw text.
func (l *List) AppendText(s string) { l.Append(&Text{Value: s}) }

// Copy implements Node.
func (l *List) Copy() Node {
	c := &List{Items: make([]Node, len(l.Items))}
	for i, n := range l.Items {
		c.Items[i] = n.Copy()
	}
	return c
}

func (l *List) writeTo(sb *strings.Builder) {
	for _, n := range l.Items {
		n.writeTo(sb)
	}
}

// String renders the subtree back to wikicode.
func (l *List) String() string { return render(l) }

// Text is a run of plain characters. It may carry unparsed wiki tokens
// when the parser degraded a too-deep construct to text.
type Text struct {
	Value string
}

func (t *Text) Type() NodeType              { return TextType }
func (t *Text) Copy() Node                  { return &Text{Value: t.Value} }
func (t *Text) writeTo(sb *strings.Builder) { sb.WriteString(t.Value) }
func (t *Text) String() string              { return t.Value }

// Comment is an HTML comment, starting with "<!--" and usually ending
// with "-->". An unclosed comment extends to the end of the input.
type Comment struct {
	Value string
}

func (c *Comment) Type() NodeType              { return CommentType }
func (c *Comment) Copy() Node                  { return &Comment{Value: c.Value} }
func (c *Comment) writeTo(sb *strings.Builder) { sb.WriteString(c.Value) }
func (c *Comment) String() string              { return c.Value }

// Closed reports whether the comment has its terminating "-->".
func (c *Comment) Closed() bool { return strings.HasSuffix(c.Value, "-->") && len(c.Value) >= 7 }

// Tag is a parser-extension tag such as <ref>...</ref>. The opening
// and closing tags are kept verbatim so rendering is exact.
type Tag struct {
	Name       string // lowercased tag name
	OpeningTag string // verbatim, including attributes
	ClosingTag string // verbatim, or "" when absent
	Content    *List  // nil for self-closing tags
}

func (t *Tag) Type() NodeType { return TagType }

func (t *Tag) Copy() Node {
	c := &Tag{Name: t.Name, OpeningTag: t.OpeningTag, ClosingTag: t.ClosingTag}
	if t.Content != nil {
		c.Content = t.Content.Copy().(*List)
	}
	return c
}

func (t *Tag) writeTo(sb *strings.Builder) {
	sb.WriteString(t.OpeningTag)
	if t.Content != nil {
		t.Content.writeTo(sb)
	}
	sb.WriteString(t.ClosingTag)
}

func (t *Tag) String() string { return render(t) }

// NodeWithFields is the common part of Link and Template: one or more
// Lists separated by "|" in the source.
type NodeWithFields struct {
	Fields []*List
}

// FieldCount returns the number of fields.
func (n *NodeWithFields) FieldCount() int { return len(n.Fields) }

// Field returns field i, or nil when out of range.
func (n *NodeWithFields) Field(i int) *List {
	if i < 0 || i >= len(n.Fields) {
		return nil
	}
	return n.Fields[i]
}

func (n *NodeWithFields) copyFields() []*List {
	fields := make([]*List, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = f.Copy().(*List)
	}
	return fields
}

func (n *NodeWithFields) writeFields(sb *strings.Builder) {
	for i, f := range n.Fields {
		if i > 0 {
			sb.WriteByte('|')
		}
		f.writeTo(sb)
	}
}

// Link is a [[target|label]] construct.
type Link struct {
	NodeWithFields
}

func (l *Link) Type() NodeType { return LinkType }

func (l *Link) Copy() Node {
	return &Link{NodeWithFields{Fields: l.copyFields()}}
}

func (l *Link) writeTo(sb *strings.Builder) {
	sb.WriteString("[[")
	l.writeFields(sb)
	sb.WriteString("]]")
}

func (l *Link) String() string { return render(l) }

// TargetAndAnchor computes the link target and anchor from the first
// field. It succeeds only when the field contains nothing but text and
// comments; ok is false otherwise.
func (l *Link) TargetAndAnchor() (target, anchor string, ok bool) {
	full, ok := textOnlyContent(l.Field(0))
	if !ok {
		return "", "", false
	}
	if i := strings.IndexByte(full, '#'); i >= 0 {
		return strings.TrimSpace(full[:i]), full[i:], true
	}
	return strings.TrimSpace(full), "", true
}

// Target returns the link target, or "" when it cannot be computed.
func (l *Link) Target() string {
	target, _, _ := l.TargetAndAnchor()
	return target
}

// Template is a {{name|param|...}} transclusion.
type Template struct {
	NodeWithFields
}

func (t *Template) Type() NodeType { return TemplateType }

func (t *Template) Copy() Node {
	return &Template{NodeWithFields{Fields: t.copyFields()}}
}

func (t *Template) writeTo(sb *strings.Builder) {
	sb.WriteString("{{")
	t.writeFields(sb)
	sb.WriteString("}}")
}

func (t *Template) String() string { return render(t) }

// Name returns the template name derived from the first field: one
// subst:/safesubst: wrapper is stripped, and a "#fragment" suffix is
// dropped unless the part before "#" is empty (parser functions keep
// their full "#name:..." text). Returns "" when the first field
// contains anything besides text and comments.
func (t *Template) Name() string {
	name, ok := textOnlyContent(t.Field(0))
	if !ok {
		return ""
	}
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	for _, prefix := range []string{"subst:", "safesubst:"} {
		if strings.HasPrefix(lower, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	if i := strings.IndexByte(name, '#'); i > 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

// Variable is a {{{name|default}}} placeholder.
type Variable struct {
	NameNode     *List
	DefaultValue *List // nil when no default is given
}

func (v *Variable) Type() NodeType { return VariableType }

func (v *Variable) Copy() Node {
	c := &Variable{NameNode: v.NameNode.Copy().(*List)}
	if v.DefaultValue != nil {
		c.DefaultValue = v.DefaultValue.Copy().(*List)
	}
	return c
}

func (v *Variable) writeTo(sb *strings.Builder) {
	sb.WriteString("{{{")
	v.NameNode.writeTo(sb)
	if v.DefaultValue != nil {
		sb.WriteByte('|')
		v.DefaultValue.writeTo(sb)
	}
	sb.WriteString("}}}")
}

func (v *Variable) String() string { return render(v) }

func render(n Node) string {
	var sb strings.Builder
	n.writeTo(&sb)
	return sb.String()
}

// textOnlyContent concatenates the text of a list that contains only
// Text and Comment children, skipping the comments.
func textOnlyContent(l *List) (string, bool) {
	if l == nil {
		return "", false
	}
	var sb strings.Builder
	for _, n := range l.Items {
		switch n := n.(type) {
		case *Text:
			sb.WriteString(n.Value)
		case *Comment:
			// skipped
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// Depth returns the recursive depth of the tree rooted at n: 1 for a
// leaf, 1 + max over children otherwise. It iterates with an explicit
// stack so degenerate trees cannot overflow the call stack.
func Depth(root Node) int {
	type frame struct {
		node  Node
		depth int
	}
	max := 0
	stack := []frame{{root, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > max {
			max = f.depth
		}
		for _, child := range childLists(f.node) {
			if child != nil {
				stack = append(stack, frame{child, f.depth + 1})
			}
		}
		if l, ok := f.node.(*List); ok {
			for _, item := range l.Items {
				stack = append(stack, frame{item, f.depth + 1})
			}
		}
	}
	return max
}

// childLists returns the sub-lists of a non-List node.
func childLists(n Node) []*List {
	switch n := n.(type) {
	case *Tag:
		if n.Content != nil {
			return []*List{n.Content}
		}
	case *Link:
		return n.Fields
	case *Template:
		return n.Fields
	case *Variable:
		if n.DefaultValue != nil {
			return []*List{n.NameNode, n.DefaultValue}
		}
		return []*List{n.NameNode}
	}
	return nil
}
