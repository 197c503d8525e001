package wikicode

import "strings"

// AllowBots reports whether a bot may edit a page, following the
// fr-wiki {{nobots}} / {{bots|allow=...|deny=...}} convention. A list
// entry matches the bot when it equals botName or botName:taskID
// (case-insensitive). Malformed exclusion templates fail safe: the bot
// is excluded.
func AllowBots(wikitext, botName, taskID string) bool {
	root := Parse(wikitext)
	it := NewIterator(root, PrefixDFS, TemplateType)
	for n := it.Next(); n != nil; n = it.Next() {
		tmpl := n.(*Template)
		switch strings.ToLower(tmpl.Name()) {
		case "nobots":
			return false
		case "bots":
			if !botsTemplateAllows(tmpl, botName, taskID) {
				return false
			}
		}
	}
	return true
}

func botsTemplateAllows(tmpl *Template, botName, taskID string) bool {
	fields := tmpl.ParsedFields(Trim | StripComments)
	hasAllow := fields.Has("allow")
	hasDeny := fields.Has("deny")
	for _, f := range fields.Ordered {
		if f.Name != "allow" && f.Name != "deny" {
			// Unknown parameter: fail safe.
			return false
		}
	}
	if hasAllow && hasDeny {
		// Ambiguous combination: fail safe.
		return false
	}
	switch {
	case hasAllow:
		list := fields.Value("allow")
		if strings.EqualFold(list, "all") {
			return true
		}
		if strings.EqualFold(list, "none") {
			return false
		}
		return listMatchesBot(list, botName, taskID)
	case hasDeny:
		list := fields.Value("deny")
		if strings.EqualFold(list, "all") {
			return false
		}
		if strings.EqualFold(list, "none") {
			return true
		}
		return !listMatchesBot(list, botName, taskID)
	}
	// Bare {{bots}} allows everyone.
	return true
}

func listMatchesBot(list, botName, taskID string) bool {
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.EqualFold(entry, botName) {
			return true
		}
		if taskID != "" && strings.EqualFold(entry, botName+":"+taskID) {
			return true
		}
	}
	return false
}
