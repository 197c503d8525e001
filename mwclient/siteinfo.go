package mwclient

import (
	"context"
	"encoding/json"
	"strings"
)

// CaseMode is how a namespace treats the first letter of titles.
type CaseMode int

const (
	// CaseSensitive namespaces keep titles as written.
	CaseSensitive CaseMode = 0
	// CaseFirstLetter namespaces capitalize the first letter.
	CaseFirstLetter CaseMode = 1
)

// Namespace numbers with fixed meaning.
const (
	NamespaceMain     = 0
	NamespaceTalk     = 1
	NamespaceUser     = 2
	NamespaceCategory = 14
	// NamespaceInterwiki marks titles whose prefix is an interwiki,
	// not a namespace.
	NamespaceInterwiki = -99
	// NamespaceInvalid marks titles that could not be parsed.
	NamespaceInvalid = -100
)

// NamespaceInfo describes one namespace of the wiki.
type NamespaceInfo struct {
	Canonical string
	Case      CaseMode
}

// InterwikiInfo describes one interwiki prefix.
type InterwikiInfo struct {
	// Prefix is the unnormalized prefix as configured on the wiki.
	Prefix string `json:"prefix,omitempty"`
	// Language is set for language interwikis.
	Language string `json:"lang,omitempty"`
}

// SiteInfo is the site configuration a client needs to parse titles:
// namespaces with aliases, interwiki prefixes, and the magic words
// that start a redirect. It serializes to versioned JSON for the
// session file and reloads from either that JSON or the raw
// meta=siteinfo response.
type SiteInfo struct {
	Namespaces map[int]NamespaceInfo
	// Aliases maps lower-cased namespace names and aliases to numbers.
	Aliases map[string]int
	// Interwikis maps lower-cased prefixes to their info.
	Interwikis map[string]InterwikiInfo
	// RedirectAliases are the lower-cased magic words that start a
	// redirect, "#" included (e.g. "#redirect", "#redirection").
	RedirectAliases []string
}

const siteInfoVersion = 1

type namespaceJSON struct {
	Number int      `json:"number"`
	Case   CaseMode `json:"casemode"`
}

type siteInfoJSON struct {
	Namespaces      map[string]namespaceJSON `json:"namespaces"`
	Aliases         map[string]int           `json:"aliases"`
	Interwikis      map[string]InterwikiInfo `json:"interwikis"`
	RedirectAliases []string                 `json:"redirect-aliases"`
	Version         int                      `json:"siteinfo_version"`
}

// MarshalJSON implements the versioned session-file format:
// namespaces keyed by canonical name, with their number and case mode.
func (si *SiteInfo) MarshalJSON() ([]byte, error) {
	out := siteInfoJSON{
		Namespaces:      make(map[string]namespaceJSON, len(si.Namespaces)),
		Aliases:         si.Aliases,
		Interwikis:      si.Interwikis,
		RedirectAliases: si.RedirectAliases,
		Version:         siteInfoVersion,
	}
	for number, info := range si.Namespaces {
		out.Namespaces[info.Canonical] = namespaceJSON{Number: number, Case: info.Case}
	}
	return json.Marshal(out)
}

// UnmarshalJSON loads the versioned session-file format.
func (si *SiteInfo) UnmarshalJSON(data []byte) error {
	var in siteInfoJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return &ParseError{Message: "siteinfo: " + err.Error()}
	}
	if in.Version != siteInfoVersion {
		return &ParseError{Message: "unsupported siteinfo version"}
	}
	si.Namespaces = make(map[int]NamespaceInfo, len(in.Namespaces))
	for name, ns := range in.Namespaces {
		si.Namespaces[ns.Number] = NamespaceInfo{Canonical: name, Case: ns.Case}
	}
	si.Aliases = in.Aliases
	si.Interwikis = in.Interwikis
	si.RedirectAliases = in.RedirectAliases
	return nil
}

// NamespaceByName resolves a namespace name or alias, case-insensitive.
func (si *SiteInfo) NamespaceByName(name string) (int, bool) {
	n, ok := si.Aliases[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

// NamespaceName returns the canonical name of a namespace, or "".
func (si *SiteInfo) NamespaceName(number int) string {
	return si.Namespaces[number].Canonical
}

// LoadSiteInfo fetches meta=siteinfo and caches the parsed result on
// the client.
func (c *Client) LoadSiteInfo(ctx context.Context) error {
	req := NewRequest("query")
	req.Set("meta", "siteinfo")
	req.Set("siprop", "namespaces|namespacealiases|interwikimap|magicwords")
	result, err := c.Do(ctx, req)
	if err != nil {
		return annotate("loading siteinfo", err)
	}
	query, err := queryResult(result)
	if err != nil {
		return err
	}
	si := &SiteInfo{
		Namespaces: make(map[int]NamespaceInfo),
		Aliases:    make(map[string]int),
		Interwikis: make(map[string]InterwikiInfo),
	}

	namespaces := query.Get("namespaces")
	for _, key := range namespaces.Keys() {
		ns := namespaces.Get(key)
		number := int(ns.Get("id").Int(0))
		info := NamespaceInfo{Canonical: ns.Get("name").Str()}
		if ns.Get("case").Str() == "first-letter" {
			info.Case = CaseFirstLetter
		}
		si.Namespaces[number] = info
		if info.Canonical != "" {
			si.Aliases[strings.ToLower(info.Canonical)] = number
		}
		if canonical := ns.Get("canonical").Str(); canonical != "" {
			si.Aliases[strings.ToLower(canonical)] = number
		}
	}
	aliases := query.Get("namespacealiases")
	for i := 0; i < aliases.Len(); i++ {
		alias := aliases.Index(i)
		si.Aliases[strings.ToLower(alias.Get("alias").Str())] = int(alias.Get("id").Int(0))
	}
	interwikis := query.Get("interwikimap")
	for i := 0; i < interwikis.Len(); i++ {
		iw := interwikis.Index(i)
		prefix := iw.Get("prefix").Str()
		info := InterwikiInfo{Language: iw.Get("language").Str()}
		if lower := strings.ToLower(prefix); lower != prefix {
			info.Prefix = prefix
			si.Interwikis[lower] = info
		} else {
			si.Interwikis[prefix] = info
		}
	}
	magicWords := query.Get("magicwords")
	for i := 0; i < magicWords.Len(); i++ {
		word := magicWords.Index(i)
		if word.Get("name").Str() != "redirect" {
			continue
		}
		aliasList := word.Get("aliases")
		for j := 0; j < aliasList.Len(); j++ {
			si.RedirectAliases = append(si.RedirectAliases, strings.ToLower(aliasList.Index(j).Str()))
		}
	}
	if len(si.RedirectAliases) == 0 {
		si.RedirectAliases = []string{"#redirect"}
	}

	c.siteInfo = si
	return nil
}
