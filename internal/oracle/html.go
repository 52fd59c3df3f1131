package oracle

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"missiontracker/internal/fetch"
)

// HTMLOracle implements every oracle capability against HTML detail,
// listing and profile pages.
//
// Selector-level knowledge stays configurable: keyword lists and link
// patterns ship with generic defaults and can be overridden per deployment.
type HTMLOracle struct {
	completionKeywords []string
	acceptedLabels     []string
	profileLink        *regexp.Regexp
	itemLink           *regexp.Regexp
	reward             *regexp.Regexp
}

// HTMLOracleOptions overrides the default heuristics. Zero values keep the
// defaults.
type HTMLOracleOptions struct {
	CompletionKeywords []string
	AcceptedLabels     []string
	ProfileLinkPattern string
	ItemLinkPattern    string
	RewardPattern      string
}

func NewHTMLOracle(opts HTMLOracleOptions) (*HTMLOracle, error) {
	o := &HTMLOracle{
		completionKeywords: opts.CompletionKeywords,
		acceptedLabels:     opts.AcceptedLabels,
	}
	if len(o.completionKeywords) == 0 {
		o.completionKeywords = []string{"mission complete", "abgeschlossen"}
	}
	if len(o.acceptedLabels) == 0 {
		o.acceptedLabels = []string{"shared by", "geteilt von"}
	}
	for i, k := range o.completionKeywords {
		o.completionKeywords[i] = strings.ToLower(k)
	}
	for i, l := range o.acceptedLabels {
		o.acceptedLabels[i] = strings.ToLower(l)
	}

	var err error
	if o.profileLink, err = compileOr(opts.ProfileLinkPattern, `/profile/(\w+)`); err != nil {
		return nil, fmt.Errorf("profile link pattern: %w", err)
	}
	if o.itemLink, err = compileOr(opts.ItemLinkPattern, `/missions/(\d+)`); err != nil {
		return nil, fmt.Errorf("item link pattern: %w", err)
	}
	if o.reward, err = compileOr(opts.RewardPattern, `(\d+)\s*[Cc]redits`); err != nil {
		return nil, fmt.Errorf("reward pattern: %w", err)
	}
	return o, nil
}

func compileOr(pattern, def string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = def
	}
	return regexp.Compile(pattern)
}

func (o *HTMLOracle) Completed(doc *fetch.Document) bool {
	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return false
	}
	text := strings.ToLower(collectText(root))
	for _, kw := range o.completionKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (o *HTMLOracle) Extract(doc *fetch.Document) (Extraction, error) {
	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse detail document: %w", err)
	}

	var ext Extraction
	fullText := collectText(root)
	lower := strings.ToLower(fullText)

	for _, kw := range o.completionKeywords {
		if strings.Contains(lower, kw) {
			ext.Completed = true
			break
		}
	}
	if m := o.reward.FindStringSubmatch(fullText); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			ext.Reward = v
		}
	}

	seen := map[string]struct{}{}
	walk(root, func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && n.Data == "h1" && ext.Title == "":
			ext.Title = strings.TrimSpace(collectText(n))
		case n.Type == html.ElementNode && hasClass(n, "address") && ext.Address == "":
			ext.Address = strings.TrimSpace(collectText(n))
		case n.Type == html.ElementNode && n.Data == "a":
			href := attr(n, "href")
			m := o.profileLink.FindStringSubmatch(href)
			if m == nil {
				return
			}
			identity := m[1]
			if o.acceptedContext(n) {
				if ext.AcceptedBy == "" {
					ext.AcceptedBy = identity
				}
				return
			}
			if _, ok := seen[identity]; ok {
				return
			}
			seen[identity] = struct{}{}
			ext.Participants = append(ext.Participants, identity)
		}
	})
	return ext, nil
}

// acceptedContext reports whether a profile link sits next to an
// "accepted/shared by" label, judged by its parent element's text.
func (o *HTMLOracle) acceptedContext(n *html.Node) bool {
	if n.Parent == nil {
		return false
	}
	ctx := strings.ToLower(collectText(n.Parent))
	for _, label := range o.acceptedLabels {
		if strings.Contains(ctx, label) {
			return true
		}
	}
	return false
}

func (o *HTMLOracle) ScanIdentifiers(doc *fetch.Document) []string {
	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		m := o.itemLink.FindStringSubmatch(attr(n, "href"))
		if m == nil {
			return
		}
		if _, ok := seen[m[1]]; ok {
			return
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	})
	return out
}

func (o *HTMLOracle) ExtractReward(doc *fetch.Document) (int, bool) {
	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return 0, false
	}
	m := o.reward.FindStringSubmatch(collectText(root))
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

func (o *HTMLOracle) ExtractProfile(doc *fetch.Document) (ProfileFields, error) {
	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return ProfileFields{}, fmt.Errorf("parse profile document: %w", err)
	}
	var pf ProfileFields
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if n.Data == "h1" && pf.Name == "" {
			pf.Name = strings.TrimSpace(collectText(n))
		}
		if v := attr(n, "data-credits-earned"); v != "" && pf.TotalCredits == 0 {
			if c, err := strconv.ParseInt(v, 10, 64); err == nil {
				pf.TotalCredits = c
			}
		}
	})
	return pf, nil
}

// ───────── html helpers ─────────

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
