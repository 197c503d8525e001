// Package archiver moves old threads of talk pages to archive
// subpages, following the per-page configuration carried by the
// {{Archivage par bot}} template.
package archiver

import (
	"strings"
)

// Tracking-template wrapper of pages maintained by the category
// tracker. Threads inside it are ordered newest first.
const (
	trackingOpenPrefix = "{{Utilisateur:OrlodrimBot/Suivi catégorie"
	trackingClose      = "{{Utilisateur:OrlodrimBot/Suivi catégorie/fin}}"
)

// Thread is one section of a talk page: the heading line plus
// everything up to the next level 1 or 2 heading.
type Thread struct {
	// Title is the text of the heading line without "=" markers and
	// surrounding space; empty for the page header.
	Title string
	// Text is the verbatim thread text, heading line included.
	Text string
	// Level is the heading level (1 or 2), 0 for the page header.
	Level int
}

// Decomposition is a talk page split into threads. Joining Header.Text,
// the thread texts and Trailer reproduces the page byte for byte.
type Decomposition struct {
	Header  *Thread
	Threads []*Thread
	// NewestFirst is set on pages with the tracking-template wrapper,
	// whose threads are ordered newest section first.
	NewestFirst bool
	// Trailer is the text after the last thread (the wrapper's closing
	// template and anything below it).
	Trailer string
}

// headingLevel returns 1 or 2 for lines starting with exactly one or
// two "=", and 0 for every other line.
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '=' {
		n++
	}
	if n == 1 || n == 2 {
		return n
	}
	return 0
}

// headingTitle strips the "=" markers and surrounding space of a
// heading line.
func headingTitle(line string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(line), "=")
	trimmed = strings.TrimLeft(trimmed, "=")
	return strings.TrimSpace(trimmed)
}

// splitThreads cuts text at every line that starts a level 1 or 2
// heading. The text before the first heading becomes the header
// thread.
func splitThreads(text string) (*Thread, []*Thread) {
	header := &Thread{}
	var threads []*Thread
	current := header

	pos := 0
	for pos < len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var line string
		if lineEnd < 0 {
			line = text[pos:]
			lineEnd = len(text)
		} else {
			lineEnd += pos + 1
			line = text[pos : lineEnd-1]
		}
		if level := headingLevel(line); level > 0 {
			current = &Thread{Title: headingTitle(line), Level: level}
			threads = append(threads, current)
		}
		current.Text += text[pos:lineEnd]
		pos = lineEnd
	}
	return header, threads
}

// Decompose splits a talk page into its threads, pulling the
// tracking-template wrapper out so the enclosed code is split the same
// way.
func Decompose(source string) *Decomposition {
	openIdx := findTrackingOpen(source)
	closeIdx := strings.Index(source, trackingClose)
	if openIdx >= 0 && closeIdx > openIdx {
		openEnd := openIdx
		if braces := strings.Index(source[openIdx:], "}}"); braces >= 0 {
			openEnd = openIdx + braces + 2
		}
		// Keep the heading split inside the wrapper; the wrapper's open
		// template stays attached to the header, its close starts the
		// trailer.
		header, threads := splitThreads(source[openEnd:closeIdx])
		header.Text = source[:openEnd] + header.Text
		return &Decomposition{
			Header:      header,
			Threads:     threads,
			NewestFirst: true,
			Trailer:     source[closeIdx:],
		}
	}
	header, threads := splitThreads(source)
	return &Decomposition{Header: header, Threads: threads}
}

// findTrackingOpen locates the wrapper's opening template, skipping
// the closing "/fin" template that shares the prefix.
func findTrackingOpen(source string) int {
	from := 0
	for {
		i := strings.Index(source[from:], trackingOpenPrefix)
		if i < 0 {
			return -1
		}
		i += from
		rest := source[i+len(trackingOpenPrefix):]
		if !strings.HasPrefix(rest, "/fin}}") {
			return i
		}
		from = i + len(trackingOpenPrefix)
	}
}

// Recompose rebuilds the page with only the kept threads.
func (d *Decomposition) Recompose(keep func(*Thread) bool) string {
	var sb strings.Builder
	sb.WriteString(d.Header.Text)
	for _, thread := range d.Threads {
		if keep(thread) {
			sb.WriteString(thread.Text)
		}
	}
	sb.WriteString(d.Trailer)
	return sb.String()
}

// String reassembles the page unchanged.
func (d *Decomposition) String() string {
	return d.Recompose(func(*Thread) bool { return true })
}
