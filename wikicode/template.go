package wikicode

import (
	"strconv"
	"strings"
)

// NormalizeFlags adjust how template parameter values are rendered by
// ParsedFields.
type NormalizeFlags int

const (
	// Trim removes leading and trailing ASCII whitespace.
	Trim NormalizeFlags = 1 << iota
	// CollapseSpace additionally folds internal whitespace runs into a
	// single space. Implies Trim.
	CollapseSpace
	// StripComments drops HTML comments from the value.
	StripComments
)

// TemplateField is one parsed template parameter.
type TemplateField struct {
	Name  string
	Value string
	// Named is false for positional parameters, whose Name is the
	// sequential "1", "2", ...
	Named bool
}

// ParsedFields is the parameter view of a template: the ordered list
// preserves duplicates and blank parameters; the name lookup keeps the
// last occurrence of each name.
type ParsedFields struct {
	Ordered []TemplateField
	byName  map[string]int
}

// Has reports whether a parameter with this name is present.
func (p ParsedFields) Has(name string) bool {
	_, ok := p.byName[name]
	return ok
}

// Value returns the value of the last parameter with this name, or "".
func (p ParsedFields) Value(name string) string {
	if i, ok := p.byName[name]; ok {
		return p.Ordered[i].Value
	}
	return ""
}

// ParsedFields parses the template's parameters. Each field is split
// at its first top-level "=" unless that "=" starts a title line;
// fields without one are positional and receive sequential integer
// names, counted separately from named parameters.
func (t *Template) ParsedFields(flags NormalizeFlags) ParsedFields {
	p := ParsedFields{byName: make(map[string]int)}
	positional := 0
	for _, field := range t.Fields[1:] {
		name, value, named := splitParameter(field)
		if !named {
			positional++
			name = strconv.Itoa(positional)
		}
		value = normalizeValue(value, flags)
		if named {
			name = normalizeValue(name, Trim|StripComments)
		}
		p.byName[name] = len(p.Ordered)
		p.Ordered = append(p.Ordered, TemplateField{Name: name, Value: value, Named: named})
	}
	return p
}

// splitParameter renders a field and splits it at the first "=" of a
// top-level Text node. An "=" at the start of a line is heading
// syntax, not a parameter separator.
func splitParameter(field *List) (name, value string, named bool) {
	var prefix strings.Builder
	for i, item := range field.Items {
		t, ok := item.(*Text)
		if !ok {
			prefix.WriteString(render(item))
			continue
		}
		if eq := findParameterEquals(t.Value); eq >= 0 {
			prefix.WriteString(t.Value[:eq])
			var rest strings.Builder
			rest.WriteString(t.Value[eq+1:])
			for _, after := range field.Items[i+1:] {
				rest.WriteString(render(after))
			}
			return prefix.String(), rest.String(), true
		}
		prefix.WriteString(t.Value)
	}
	return "", render(field), false
}

func findParameterEquals(text string) int {
	offset := 0
	for {
		line := text[offset:]
		nl := strings.IndexByte(line, '\n')
		if nl >= 0 {
			line = line[:nl]
		}
		// A line starting with "=" is heading syntax, not a separator.
		if !strings.HasPrefix(line, "=") {
			if eq := strings.IndexByte(line, '='); eq >= 0 {
				return offset + eq
			}
		}
		if nl < 0 {
			return -1
		}
		offset += nl + 1
	}
}

func normalizeValue(value string, flags NormalizeFlags) string {
	if flags&StripComments != 0 {
		for {
			start := strings.Index(value, "<!--")
			if start < 0 {
				break
			}
			end := strings.Index(value[start+4:], "-->")
			if end < 0 {
				value = value[:start]
				break
			}
			value = value[:start] + value[start+4+end+3:]
		}
	}
	if flags&CollapseSpace != 0 {
		value = strings.Join(strings.Fields(value), " ")
	} else if flags&Trim != 0 {
		value = strings.TrimSpace(value)
	}
	return value
}

// fieldIndexByName finds the field holding the named parameter.
func (t *Template) fieldIndexByName(name string) int {
	found := -1
	positional := 0
	for i, field := range t.Fields[1:] {
		fname, _, named := splitParameter(field)
		if !named {
			positional++
			fname = strconv.Itoa(positional)
		} else {
			fname = strings.TrimSpace(fname)
		}
		if fname == name {
			found = i + 1
		}
	}
	return found
}

// SetFieldValue replaces the value of the named parameter, preserving
// the whitespace that surrounded the previous value. A missing
// parameter is appended as a new "|name=value" field.
func (t *Template) SetFieldValue(name, value string) {
	i := t.fieldIndexByName(name)
	if i < 0 {
		field := &List{}
		field.AppendText(name + "=" + value)
		t.Fields = append(t.Fields, field)
		return
	}
	field := t.Fields[i]
	fname, old, named := splitParameter(field)
	replacement := &List{}
	if named {
		lead, trail := surroundingSpace(old)
		replacement.AppendText(fname + "=" + lead + value + trail)
	} else {
		lead, trail := surroundingSpace(old)
		replacement.AppendText(lead + value + trail)
	}
	t.Fields[i] = replacement
}

// SetFieldName renames the named parameter, keeping its value and the
// whitespace around the old name.
func (t *Template) SetFieldName(name, newName string) bool {
	i := t.fieldIndexByName(name)
	if i < 0 {
		return false
	}
	fname, value, named := splitParameter(t.Fields[i])
	if !named {
		return false
	}
	lead, trail := surroundingSpace(fname)
	replacement := &List{}
	replacement.AppendText(lead + newName + trail + "=" + value)
	t.Fields[i] = replacement
	return true
}

func surroundingSpace(s string) (lead, trail string) {
	trimmed := strings.TrimLeft(s, " \t\n")
	lead = s[:len(s)-len(trimmed)]
	trimmed = strings.TrimRight(trimmed, " \t\n")
	trail = s[len(lead)+len(trimmed):]
	return lead, trail
}
