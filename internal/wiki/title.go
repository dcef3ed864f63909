// ABOUTME: Page titles and the canonical namespace table
// ABOUTME: Parses prefixed titles and builds namespace probe titles for permission checks

package wiki

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Canonical namespace ids. Negative ids are virtual namespaces that never
// hold pages.
const (
	NSMedia         = -2
	NSSpecial       = -1
	NSMain          = 0
	NSTalk          = 1
	NSUser          = 2
	NSUserTalk      = 3
	NSProject       = 4
	NSProjectTalk   = 5
	NSFile          = 6
	NSFileTalk      = 7
	NSMediaWiki     = 8
	NSMediaWikiTalk = 9
	NSTemplate      = 10
	NSTemplateTalk  = 11
	NSHelp          = 12
	NSHelpTalk      = 13
	NSCategory      = 14
	NSCategoryTalk  = 15
)

// ProbePageName is the reserved page name used to ask whether a whole
// namespace is readable. NewTitle and ParseTitle reject it and the store
// refuses to write or protect it, so it never exists.
const ProbePageName = "Assistant_NamespaceProbe_Sentinel"

// MaxTitleLength is the longest page name accepted, in bytes.
const MaxTitleLength = 255

// ErrInvalidTitle is returned for empty or malformed titles.
var ErrInvalidTitle = errors.New("invalid title")

// NamespaceNames maps namespace ids to their canonical prefix ("" for main).
type NamespaceNames map[int]string

// DefaultNamespaces is the built-in namespace table.
var DefaultNamespaces = NamespaceNames{
	NSMedia:         "Media",
	NSSpecial:       "Special",
	NSMain:          "",
	NSTalk:          "Talk",
	NSUser:          "User",
	NSUserTalk:      "User talk",
	NSProject:       "Project",
	NSProjectTalk:   "Project talk",
	NSFile:          "File",
	NSFileTalk:      "File talk",
	NSMediaWiki:     "MediaWiki",
	NSMediaWikiTalk: "MediaWiki talk",
	NSTemplate:      "Template",
	NSTemplateTalk:  "Template talk",
	NSHelp:          "Help",
	NSHelpTalk:      "Help talk",
	NSCategory:      "Category",
	NSCategoryTalk:  "Category talk",
}

// IDs returns the namespace ids in ascending order.
func (n NamespaceNames) IDs() []int {
	ids := make([]int, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// lookup finds a namespace id by its prefix, ignoring case and treating
// underscores as spaces.
func (n NamespaceNames) lookup(prefix string) (int, bool) {
	prefix = normalizeSpaces(prefix)
	for id, name := range n {
		if name != "" && strings.EqualFold(name, prefix) {
			return id, true
		}
	}
	return 0, false
}

// Title identifies a page by namespace and page name. Text uses spaces, not
// underscores, and starts with an upper-case letter.
type Title struct {
	Namespace int
	Text      string
}

// NewTitle builds a title in ns, normalizing the page name.
func NewTitle(ns int, text string) (Title, error) {
	text, err := normalizeText(text)
	if err != nil {
		return Title{}, err
	}
	return Title{Namespace: ns, Text: text}, nil
}

var probeText = strings.ReplaceAll(ProbePageName, "_", " ")

// ProbeTitle returns the reserved non-existent title used to test
// namespace-wide read access.
func ProbeTitle(ns int) Title {
	return Title{Namespace: ns, Text: probeText}
}

// IsProbe reports whether t uses the reserved probe page name.
func (t Title) IsProbe() bool {
	return t.Text == probeText
}

// ParseTitle splits a prefixed title like "Help:Editing" using names to
// resolve the namespace. Unknown prefixes stay part of the page name.
func ParseTitle(s string, names NamespaceNames) (Title, error) {
	s = strings.TrimSpace(s)
	ns := NSMain
	if i := strings.IndexByte(s, ':'); i > 0 {
		if id, ok := names.lookup(s[:i]); ok {
			ns = id
			s = s[i+1:]
		}
	}
	return NewTitle(ns, s)
}

// IsTalk reports whether the title lives in a discussion namespace.
func (t Title) IsTalk() bool {
	return t.Namespace >= 0 && t.Namespace%2 == 1
}

// PrefixedText renders the title with its namespace prefix using names.
func (t Title) PrefixedText(names NamespaceNames) string {
	prefix, ok := names[t.Namespace]
	if !ok {
		prefix = fmt.Sprintf("Namespace%d", t.Namespace)
	}
	if prefix == "" {
		return t.Text
	}
	return prefix + ":" + t.Text
}

// DBKey renders the page name with underscores, as stored.
func (t Title) DBKey() string {
	return strings.ReplaceAll(t.Text, " ", "_")
}

func (t Title) String() string {
	return t.PrefixedText(DefaultNamespaces)
}

func normalizeText(text string) (string, error) {
	text = normalizeSpaces(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty page name", ErrInvalidTitle)
	}
	if len(text) > MaxTitleLength {
		return "", fmt.Errorf("%w: page name too long", ErrInvalidTitle)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidTitle)
	}
	if strings.ContainsAny(text, "#<>[]|{}") {
		return "", fmt.Errorf("%w: illegal character in %q", ErrInvalidTitle, text)
	}
	for _, r := range text {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidTitle)
		}
	}
	r, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(r)) + text[size:]
	if text == probeText {
		return "", fmt.Errorf("%w: reserved page name", ErrInvalidTitle)
	}
	return text, nil
}

func normalizeSpaces(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
