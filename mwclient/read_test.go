package mwclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestReadPagesBatchingAndNormalization(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = func(params url.Values) (int, string) {
		titles := params.Get("titles")
		switch titles {
		case "a_b|C":
			return http.StatusOK, `{"query":{
				"normalized":[{"from":"a_b","to":"A b"}],
				"pages":[
					{"title":"A b","revisions":[{"revid":11,"timestamp":"2026-01-02T03:04:05Z"}]},
					{"title":"C","missing":true}]}}`
		case "D":
			return http.StatusOK, `{"query":{"pages":[
				{"title":"D","revisions":[{"revid":12}]}]}}`
		}
		t.Errorf("unexpected titles batch %q", titles)
		return http.StatusOK, `{}`
	}
	c, _ := fw.client()
	c.titlesLimit = 2

	revisions, err := c.ReadPages(context.Background(), []string{"a_b", "C", "D"}, RPTimestamp)
	if err != nil {
		t.Fatalf("ReadPages: %v", err)
	}
	if len(fw.requests) != 2 {
		t.Errorf("made %d requests, want 2 batches", len(fw.requests))
	}
	if revisions[0].Title != "A b" || revisions[0].RevID != 11 {
		t.Errorf("revision for a_b = %+v", revisions[0])
	}
	if revisions[1].Exists() {
		t.Errorf("missing page C reported as existing: %+v", revisions[1])
	}
	if revisions[2].RevID != 12 {
		t.Errorf("revision for D = %+v", revisions[2])
	}
}

func TestReadPagesFollowsRedirects(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{
		"normalized":[{"from":"old_name","to":"Old name"}],
		"redirects":[{"from":"Old name","to":"New name"}],
		"pages":[{"title":"New name","revisions":[{"revid":7}]}]}}`)
	c, _ := fw.client()

	revisions, err := c.ReadPages(context.Background(), []string{"old_name"}, 0)
	if err != nil {
		t.Fatalf("ReadPages: %v", err)
	}
	if revisions[0].Title != "New name" || revisions[0].RevID != 7 {
		t.Errorf("redirect not followed: %+v", revisions[0])
	}
}

func TestReadPageMissing(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"pages":[{"title":"Nope","missing":true}]}}`)
	c, _ := fw.client()

	_, err := c.ReadPage(context.Background(), "Nope", RPContent)
	var notFound *PageNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("ReadPage returned %v, want PageNotFoundError", err)
	}
}

func TestReadPageContent(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = func(params url.Values) (int, string) {
		if !strings.Contains(params.Get("rvprop"), "content") {
			t.Errorf("rvprop %q misses content", params.Get("rvprop"))
		}
		if params.Get("rvslots") != "main" {
			t.Errorf("rvslots = %q", params.Get("rvslots"))
		}
		return http.StatusOK, `{"query":{"pages":[{"title":"P","revisions":[
			{"revid":3,"slots":{"main":{"content":"Hello"}},"minor":true}]}]}}`
	}
	c, _ := fw.client()

	rev, err := c.ReadPage(context.Background(), "P", RPContent|RPFlags)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if rev.Content != "Hello" || !rev.Minor {
		t.Errorf("revision = %+v", rev)
	}
}

func TestReadPageForEdit(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"pages":[{"title":"Talk","revisions":[
		{"revid":5,"timestamp":"2026-02-03T04:05:06Z","slots":{"main":{"content":"{{nobots}}\nBody"}}}]}]}}`)
	c, _ := fw.client()
	c.externalUser = "OrlodrimBot"

	rev, token, err := c.ReadPageForEdit(context.Background(), "Talk", 0)
	if err != nil {
		t.Fatalf("ReadPageForEdit: %v", err)
	}
	if rev.RevID != 5 {
		t.Errorf("revision = %+v", rev)
	}
	if token.Creates() {
		t.Error("existing page yielded a creation token")
	}
	if !token.needsNoBotsBypass {
		t.Error("{{nobots}} page did not flag the token")
	}

	// The write side refuses the token without the bypass flag.
	err = c.WritePage(context.Background(), "Talk", token, "new", "summary", 0)
	var excluded *BotExclusionError
	if !errors.As(err, &excluded) {
		t.Errorf("WritePage returned %v, want BotExclusionError", err)
	}
}

func TestReadPageForEditMissingPage(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"pages":[{"title":"New page","missing":true}]}}`)
	c, _ := fw.client()

	rev, token, err := c.ReadPageForEdit(context.Background(), "New page", 0)
	if err != nil {
		t.Fatalf("ReadPageForEdit: %v", err)
	}
	if rev.Exists() {
		t.Errorf("revision = %+v, want missing", rev)
	}
	if !token.Creates() {
		t.Error("missing page did not yield a creation token")
	}
}

func TestReadRevisions(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = func(params url.Values) (int, string) {
		if params.Get("revids") != "5|9" {
			t.Errorf("revids = %q", params.Get("revids"))
		}
		return http.StatusOK, `{"query":{"pages":[
			{"title":"A","revisions":[{"revid":9},{"revid":5}]}]}}`
	}
	c, _ := fw.client()

	revisions, err := c.ReadRevisions(context.Background(), []int64{5, 9}, 0)
	if err != nil {
		t.Fatalf("ReadRevisions: %v", err)
	}
	if revisions[0].RevID != 5 || revisions[1].RevID != 9 {
		t.Errorf("revisions out of input order: %d, %d", revisions[0].RevID, revisions[1].RevID)
	}
}

func TestGetHistory(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"pages":[{"title":"P","revisions":[
		{"revid":30,"timestamp":"2026-03-01T00:00:00Z"},
		{"revid":20,"timestamp":"2026-02-01T00:00:00Z"}]}]}}`)
	c, _ := fw.client()

	revisions, err := c.GetHistory(context.Background(), "P", RPTimestamp, HistoryOptions{Limit: 2})
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(revisions) != 2 || revisions[0].RevID != 30 || revisions[1].RevID != 20 {
		t.Errorf("history = %+v", revisions)
	}
}

func TestGetCategoryMembers(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = func(params url.Values) (int, string) {
		if params.Get("cmtitle") != "Catégorie:Maintenance" {
			t.Errorf("cmtitle = %q", params.Get("cmtitle"))
		}
		if params.Get("cmnamespace") != "0|1" {
			t.Errorf("cmnamespace = %q", params.Get("cmnamespace"))
		}
		return http.StatusOK, `{"query":{"categorymembers":[{"title":"A"},{"title":"B"}]}}`
	}
	c, _ := fw.client()

	members, err := c.GetCategoryMembers(context.Background(), "Catégorie:Maintenance", []int{0, 1}, 0)
	if err != nil {
		t.Fatalf("GetCategoryMembers: %v", err)
	}
	if len(members) != 2 || members[0] != "A" || members[1] != "B" {
		t.Errorf("members = %v", members)
	}
}

func TestGetPagesDisambigStatus(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"pages":[
		{"title":"Homonym","pageprops":{"disambiguation":""}},
		{"title":"Article","pageprops":{}}]}}`)
	c, _ := fw.client()

	status, err := c.GetPagesDisambigStatus(context.Background(), []string{"Homonym", "Article"})
	if err != nil {
		t.Fatalf("GetPagesDisambigStatus: %v", err)
	}
	if !status["Homonym"] || status["Article"] {
		t.Errorf("status = %v", status)
	}
}

func TestGetUsersInfo(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"users":[
		{"name":"Alice","userid":1,"editcount":42,"groups":["bot","sysop"],"registration":"2020-01-01T00:00:00Z"},
		{"name":"Ghost","missing":true}]}}`)
	c, _ := fw.client()

	infos, err := c.GetUsersInfo(context.Background(), []string{"Alice", "Ghost"})
	if err != nil {
		t.Fatalf("GetUsersInfo: %v", err)
	}
	alice := infos[0]
	if alice.EditCount != 42 || len(alice.Groups) != 2 || alice.Registration.IsNull() {
		t.Errorf("alice = %+v", alice)
	}
	if !infos[1].Missing {
		t.Errorf("ghost = %+v", infos[1])
	}
}

func TestExpandTemplates(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"expandtemplates":{"wikitext":"expanded"}}`)
	c, _ := fw.client()

	out, err := c.ExpandTemplates(context.Background(), "Sandbox", "{{x}}")
	if err != nil {
		t.Fatalf("ExpandTemplates: %v", err)
	}
	if out != "expanded" {
		t.Errorf("out = %q", out)
	}
}

func TestGetRecentChanges(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{"query":{"recentchanges":[
		{"type":"edit","rcid":100,"revid":900,"old_revid":890,"title":"A",
		 "user":"Alice","timestamp":"2026-08-01T00:00:00Z","newlen":10,"oldlen":5},
		{"type":"log","rcid":101,"logid":55,"logtype":"move","logaction":"move","title":"B",
		 "user":"Bob","timestamp":"2026-08-02T00:00:00Z",
		 "params":{"target_title":"C","suppressredirect":true}}]}}`)
	c, _ := fw.client()

	changes, err := c.GetRecentChanges(context.Background(), RecentChangesOptions{Limit: 10})
	if err != nil {
		t.Fatalf("GetRecentChanges: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes", len(changes))
	}
	edit := changes[0]
	if edit.Type != RCEdit || edit.RCID != 100 || edit.Revision.RevID != 900 || edit.OldRevID != 890 {
		t.Errorf("edit = %+v", edit)
	}
	if edit.Revision.Size != 10 || edit.OldSize != 5 {
		t.Errorf("edit sizes = %d/%d", edit.Revision.Size, edit.OldSize)
	}
	log := changes[1]
	if log.Type != RCLog || log.LogEvent.Type != "move" || log.LogEvent.MoveTarget != "C" || !log.LogEvent.SuppressRedirect {
		t.Errorf("log = %+v event %+v", log, log.LogEvent)
	}
	if log.Title() != "B" || log.User() != "Bob" {
		t.Errorf("log accessors = %q, %q", log.Title(), log.User())
	}
}
