package mwclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/orlodrim/wikibot/wikidate"
)

func TestWriteTokenStringRoundTrip(t *testing.T) {
	edit := EditToken("Discussion:Foo", wikidate.MustDate(2026, 8, 1, 12, 0, 0))
	edit.needsNoBotsBypass = true
	tokens := []WriteToken{
		CreateToken("New page"),
		EditToken("Discussion:Foo", wikidate.MustDate(2026, 8, 1, 12, 0, 0)),
		edit,
		NoConflictToken("Utilisateur:Bot/État"),
	}
	for _, token := range tokens {
		t.Run(token.String(), func(t *testing.T) {
			parsed, err := ParseWriteToken(token.String())
			if err != nil {
				t.Fatalf("ParseWriteToken: %v", err)
			}
			if parsed.kind != token.kind ||
				parsed.title != token.title ||
				parsed.needsNoBotsBypass != token.needsNoBotsBypass ||
				!parsed.baseTimestamp.Equal(token.baseTimestamp) {
				t.Errorf("round trip changed the token: %+v -> %+v", token, parsed)
			}
			if parsed.String() != token.String() {
				t.Errorf("second serialization differs: %q vs %q", parsed.String(), token.String())
			}
		})
	}
}

func TestParseWriteTokenErrors(t *testing.T) {
	for _, bad := range []string{"edit", "edit|x|y", "teleport|||Title", "edit|not-a-date|0|Title"} {
		if _, err := ParseWriteToken(bad); err == nil {
			t.Errorf("ParseWriteToken(%q) accepted", bad)
		}
	}
	empty, err := ParseWriteToken("")
	if err != nil || empty.kind != tokenUninitialized {
		t.Errorf("empty token = %+v, %v", empty, err)
	}
}

func TestWritePagePreconditions(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{}`)
	c, _ := fw.client()
	ctx := context.Background()

	check := func(name string, err error, want func(error) bool) {
		t.Helper()
		if err == nil || !want(err) {
			t.Errorf("%s: got %v", name, err)
		}
	}
	isInvalidState := func(err error) bool { var e *InvalidStateError; return errors.As(err, &e) }
	isInvalidParam := func(err error) bool { var e *InvalidParameterError; return errors.As(err, &e) }
	isExcluded := func(err error) bool { var e *BotExclusionError; return errors.As(err, &e) }

	check("uninitialized token",
		c.WritePage(ctx, "A", WriteToken{}, "text", "s", 0), isInvalidState)
	check("title mismatch",
		c.WritePage(ctx, "A", EditToken("B", wikidate.Date{}), "text", "s", 0), isInvalidParam)
	nobots := EditToken("A", wikidate.Date{})
	nobots.needsNoBotsBypass = true
	check("nobots without bypass",
		c.WritePage(ctx, "A", nobots, "text", "s", 0), isExcluded)
	check("blanking without flag",
		c.WritePage(ctx, "A", EditToken("A", wikidate.Date{}), "", "s", 0), isInvalidParam)

	if len(fw.requests) != 0 {
		t.Errorf("precondition failures reached the server: %d requests", len(fw.requests))
	}
}

func TestWritePageBadTokenRetry(t *testing.T) {
	fw := newFakeWiki(t)
	tokenSerial := 0
	var editTokens []string
	fw.handler = func(params url.Values) (int, string) {
		switch params.Get("action") {
		case "query":
			tokenSerial++
			token := "T" + string(rune('0'+tokenSerial))
			return http.StatusOK, `{"query":{"tokens":{"csrftoken":"` + token + `"}}}`
		case "edit":
			editTokens = append(editTokens, params.Get("token"))
			if len(editTokens) == 1 {
				return http.StatusOK, apiError("badtoken")
			}
			return http.StatusOK, `{"edit":{"result":"Success"}}`
		}
		t.Errorf("unexpected request %v", params)
		return http.StatusOK, `{}`
	}
	c, _ := fw.client()

	token := EditToken("Page", wikidate.MustDate(2026, 8, 1, 0, 0, 0))
	err := c.WritePage(context.Background(), "Page", token, "content", "summary", EditMinor)
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if len(editTokens) != 2 {
		t.Fatalf("made %d edit POSTs, want 2", len(editTokens))
	}
	if editTokens[0] != "T1" || editTokens[1] != "T2" {
		t.Errorf("edit tokens = %v, second POST must carry a fresh token", editTokens)
	}
}

func TestWritePageParams(t *testing.T) {
	fw := newFakeWiki(t)
	var edit url.Values
	fw.handler = func(params url.Values) (int, string) {
		if params.Get("action") == "query" {
			return http.StatusOK, `{"query":{"tokens":{"csrftoken":"CT"}}}`
		}
		edit = params
		return http.StatusOK, `{"edit":{"result":"Success"}}`
	}
	c, _ := fw.client()

	base := wikidate.MustDate(2026, 8, 1, 12, 0, 0)
	err := c.WritePage(context.Background(), "Page", EditToken("Page", base), "content", "summary", EditMinor)
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	for name, want := range map[string]string{
		"title":         "Page",
		"text":          "content",
		"summary":       "summary",
		"basetimestamp": "2026-08-01T12:00:00Z",
		"watchlist":     "nochange",
	} {
		if got := edit.Get(name); got != want {
			t.Errorf("edit param %s = %q, want %q", name, got, want)
		}
	}
	for _, name := range []string{"minor", "bot", "nocreate"} {
		if !edit.Has(name) {
			t.Errorf("edit misses %s", name)
		}
	}
	if edit.Has("createonly") {
		t.Error("edit token produced createonly")
	}
}

func TestWritePageCreate(t *testing.T) {
	fw := newFakeWiki(t)
	var edit url.Values
	fw.handler = func(params url.Values) (int, string) {
		if params.Get("action") == "query" {
			return http.StatusOK, `{"query":{"tokens":{"csrftoken":"CT"}}}`
		}
		edit = params
		return http.StatusOK, apiError("articleexists")
	}
	c, _ := fw.client()

	err := c.WritePage(context.Background(), "Page", CreateToken("Page"), "content", "s", 0)
	var exists *PageAlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("WritePage returned %v, want PageAlreadyExistsError", err)
	}
	if !edit.Has("createonly") {
		t.Error("creation token did not set createonly")
	}
}

func TestEditPageConflictRetry(t *testing.T) {
	fw := newFakeWiki(t)
	reads, edits := 0, 0
	fw.handler = func(params url.Values) (int, string) {
		switch {
		case params.Get("action") == "query" && params.Has("titles"):
			reads++
			return http.StatusOK, `{"query":{"pages":[{"title":"P","revisions":[
				{"revid":5,"timestamp":"2026-08-01T00:00:00Z","slots":{"main":{"content":"old"}}}]}]}}`
		case params.Get("action") == "query":
			return http.StatusOK, `{"query":{"tokens":{"csrftoken":"CT"}}}`
		case params.Get("action") == "edit":
			edits++
			if edits == 1 {
				return http.StatusOK, apiError("editconflict")
			}
			return http.StatusOK, `{"edit":{"result":"Success"}}`
		}
		return http.StatusOK, `{}`
	}
	c, _ := fw.client()

	err := c.EditPage(context.Background(), "P", func(content string) (string, error) {
		return content + " new", nil
	}, "summary", 0)
	if err != nil {
		t.Fatalf("EditPage: %v", err)
	}
	if reads != 2 {
		t.Errorf("made %d reads, want a re-read after the conflict", reads)
	}
	if edits != 2 {
		t.Errorf("made %d edits, want 2", edits)
	}
}

func TestEditPageNoChangeSkipsWrite(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = func(params url.Values) (int, string) {
		if params.Get("action") == "edit" {
			t.Error("unchanged content still produced an edit")
		}
		return http.StatusOK, `{"query":{"pages":[{"title":"P","revisions":[
			{"revid":5,"timestamp":"2026-08-01T00:00:00Z","slots":{"main":{"content":"same"}}}]}]}}`
	}
	c, _ := fw.client()

	err := c.EditPage(context.Background(), "P", func(content string) (string, error) {
		return content, nil
	}, "summary", 0)
	if err != nil {
		t.Fatalf("EditPage: %v", err)
	}
}

func TestWritePageEmergencyStop(t *testing.T) {
	fw := newFakeWiki(t)
	fw.handler = respondJSON(`{}`)
	c, _ := fw.client()
	c.emergencyStop = func(ctx context.Context) bool { return true }

	err := c.WritePage(context.Background(), "P", NoConflictToken("P"), "content", "s", 0)
	var stop *EmergencyStopError
	if !errors.As(err, &stop) {
		t.Fatalf("WritePage returned %v, want EmergencyStopError", err)
	}
	if len(fw.requests) != 0 {
		t.Error("emergency stop still hit the server")
	}
}

func TestMovePage(t *testing.T) {
	fw := newFakeWiki(t)
	var move url.Values
	fw.handler = func(params url.Values) (int, string) {
		if params.Get("action") == "query" {
			return http.StatusOK, `{"query":{"tokens":{"csrftoken":"CT"}}}`
		}
		move = params
		return http.StatusOK, `{"move":{"from":"A","to":"B"}}`
	}
	c, _ := fw.client()

	if err := c.MovePage(context.Background(), "A", "B", "rename", true, true); err != nil {
		t.Fatalf("MovePage: %v", err)
	}
	if move.Get("from") != "A" || move.Get("to") != "B" || !move.Has("movetalk") || !move.Has("noredirect") {
		t.Errorf("move params = %v", move)
	}
}
