package mwclient

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseTitleFlags adjust title parsing.
type ParseTitleFlags int

const (
	// PTFLinkTarget decodes URI percent-escapes, as found in link
	// targets copied from URLs.
	PTFLinkTarget ParseTitleFlags = 1 << iota
	// PTFKeepMainCase preserves the first letter of main-namespace
	// titles even on first-letter wikis.
	PTFKeepMainCase
)

// TitleParts is a parsed title: the normalized full string plus
// offsets carving it into namespace prefix, unprefixed title and
// anchor.
type TitleParts struct {
	// Title is the normalized title, anchor included.
	Title string
	// UnprefixedTitleBegin is the offset past "Namespace:".
	UnprefixedTitleBegin int
	// AnchorBegin is the offset of "#", or len(Title) when absent.
	AnchorBegin int
	// Namespace is the namespace number, NamespaceInterwiki for
	// interwiki titles, NamespaceInvalid when unparseable.
	Namespace int
}

// UnprefixedTitle returns the title without namespace and anchor.
func (tp *TitleParts) UnprefixedTitle() string {
	return tp.Title[tp.UnprefixedTitleBegin:tp.AnchorBegin]
}

// Anchor returns the "#..." anchor, or "".
func (tp *TitleParts) Anchor() string { return tp.Title[tp.AnchorBegin:] }

// WithoutAnchor returns the title with the anchor truncated.
func (tp *TitleParts) WithoutAnchor() string { return tp.Title[:tp.AnchorBegin] }

// ClearAnchor truncates the anchor in place.
func (tp *TitleParts) ClearAnchor() {
	tp.Title = tp.Title[:tp.AnchorBegin]
}

// normalizeTitleSpace trims ASCII whitespace and underscores and folds
// internal runs of them to a single space.
func normalizeTitleSpace(s string) string {
	var sb strings.Builder
	pendingSpace := false
	for _, r := range s {
		if r == '_' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			pendingSpace = sb.Len() > 0
			continue
		}
		if pendingSpace {
			sb.WriteByte(' ')
			pendingSpace = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	upper := unicode.ToUpper(r)
	if upper == r {
		return s
	}
	return string(upper) + s[size:]
}

// ParseTitle splits a raw title into namespace, unprefixed title and
// anchor, following the wiki's namespace aliases and interwiki map.
func (si *SiteInfo) ParseTitle(raw string, flags ParseTitleFlags) TitleParts {
	if flags&PTFLinkTarget != 0 {
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
	}

	anchor := ""
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		anchor = "#" + strings.TrimSpace(raw[i+1:])
		raw = raw[:i]
	}
	body := normalizeTitleSpace(raw)
	if body == "" && anchor == "" {
		return TitleParts{Namespace: NamespaceInvalid}
	}

	namespace := NamespaceMain
	prefix := ""
	rest := body
	if colon := strings.IndexByte(body, ':'); colon >= 0 {
		head := strings.TrimSpace(body[:colon])
		lower := strings.ToLower(head)
		if n, ok := si.Aliases[lower]; ok {
			namespace = n
			prefix = si.Namespaces[n].Canonical
			rest = strings.TrimLeft(body[colon+1:], " ")
		} else if iw, ok := si.Interwikis[lower]; ok {
			namespace = NamespaceInterwiki
			prefix = head
			if iw.Prefix != "" {
				prefix = iw.Prefix
			}
			rest = strings.TrimLeft(body[colon+1:], " ")
		}
	}

	if namespace != NamespaceInterwiki {
		caseMode := si.Namespaces[namespace].Case
		keepCase := namespace == NamespaceMain && flags&PTFKeepMainCase != 0
		if caseMode == CaseFirstLetter && !keepCase {
			rest = capitalizeFirst(rest)
		}
	}

	tp := TitleParts{Namespace: namespace}
	if prefix != "" {
		tp.Title = prefix + ":" + rest
		tp.UnprefixedTitleBegin = len(prefix) + 1
	} else {
		tp.Title = rest
	}
	tp.AnchorBegin = len(tp.Title)
	tp.Title += anchor
	return tp
}

var redirectLinkRegexp = regexp.MustCompile(`^[ :]*\[\[([^[\]|{}\n]+)(?:\|[^\n]*?)?\]\]`)

// ReadRedirect matches a leading "#REDIRECT [[Target]]" against the
// wiki's redirect aliases. It returns the normalized target and its
// anchor; ok is false when the code is not a redirect.
func (si *SiteInfo) ReadRedirect(code string) (target, anchor string, ok bool) {
	trimmed := strings.TrimLeft(code, " \t\r\n")
	lower := strings.ToLower(trimmed)
	// Longest alias wins: "#redirection" must not be cut at "#redirect".
	matched := ""
	for _, alias := range si.RedirectAliases {
		if strings.HasPrefix(lower, alias) && len(alias) > len(matched) {
			matched = alias
		}
	}
	if matched == "" {
		return "", "", false
	}
	m := redirectLinkRegexp.FindStringSubmatch(trimmed[len(matched):])
	if m == nil {
		return "", "", false
	}
	tp := si.ParseTitle(m[1], PTFLinkTarget)
	if tp.Namespace == NamespaceInvalid {
		return "", "", false
	}
	return tp.WithoutAnchor(), tp.Anchor(), true
}
