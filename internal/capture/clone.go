package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CloneStyle configures the capture-time fixes applied to the offscreen clone.
type CloneStyle struct {
	RootAttr    string `yaml:"root_attr" json:"root_attr"`
	RootValue   string `yaml:"root_value" json:"root_value"`
	BubbleClass string `yaml:"bubble_class" json:"bubble_class"`
	// Overrides is appended after the built-in rules.
	Overrides string `yaml:"overrides" json:"overrides"`
}

// DefaultCloneStyle targets the editor's phone preview.
func DefaultCloneStyle() CloneStyle {
	return CloneStyle{
		RootAttr:    "data-screenshot-target",
		RootValue:   "true",
		BubbleClass: "message-bubble",
	}
}

var (
	rootSelectorRe   = regexp.MustCompile(`^\[\s*([A-Za-z_][-A-Za-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([-A-Za-z0-9_]+))\s*\]$`)
	bubbleSelectorRe = regexp.MustCompile(`^\.([-A-Za-z0-9_]+)$`)
)

// ForTarget derives the clone root attribute and bubble class from the live
// selectors so the clone pins the same elements that were measured. Keys
// already set on s must agree with t. The root selector must have the form
// [attr="value"] and the bubble selector the form .class.
func (s CloneStyle) ForTarget(t Target) (CloneStyle, error) {
	m := rootSelectorRe.FindStringSubmatch(strings.TrimSpace(t.Root))
	if m == nil {
		return s, fmt.Errorf("root selector %q must look like [attr=\"value\"]", t.Root)
	}
	attrName, value := m[1], m[2]+m[3]+m[4]
	b := bubbleSelectorRe.FindStringSubmatch(strings.TrimSpace(t.Bubble))
	if b == nil {
		return s, fmt.Errorf("bubble selector %q must be a single class like .message-bubble", t.Bubble)
	}
	class := b[1]

	if s.RootAttr != "" && (s.RootAttr != attrName || s.RootValue != value) {
		return s, fmt.Errorf("clone root [%s=%q] does not match target root %q", s.RootAttr, s.RootValue, t.Root)
	}
	if s.BubbleClass != "" && s.BubbleClass != class {
		return s, fmt.Errorf("clone bubble class %q does not match target bubble %q", s.BubbleClass, t.Bubble)
	}
	s.RootAttr, s.RootValue, s.BubbleClass = attrName, value, class
	return s, nil
}

// CloneReport summarizes what PrepareClone touched.
type CloneReport struct {
	RootFound bool `json:"root_found"`
	Bubbles   int  `json:"bubbles"`
	Sized     int  `json:"sized"`
}

// Stylesheet is the CSS injected into the clone's head.
func (s CloneStyle) Stylesheet() string {
	root := "[" + s.RootAttr + "=\"" + s.RootValue + "\"]"
	bubble := root + " ." + s.BubbleClass

	var b strings.Builder
	b.WriteString(root + " { margin: 0 !important; }\n")
	b.WriteString(root + " * {\n")
	b.WriteString("  -webkit-font-smoothing: antialiased;\n")
	b.WriteString("  text-rendering: geometricPrecision;\n")
	b.WriteString("  box-sizing: border-box;\n")
	b.WriteString("}\n")
	b.WriteString(bubble + " {\n")
	b.WriteString("  line-height: 1.5 !important;\n")
	b.WriteString("  padding: 8px 12px !important;\n")
	b.WriteString("}\n")
	b.WriteString(root + " .badge-99 { padding-top: 2px !important; }\n")
	b.WriteString(root + " .date-tag { padding-top: 3px !important; }\n")
	if s.Overrides != "" {
		b.WriteString(s.Overrides)
		if !strings.HasSuffix(s.Overrides, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// BubbleSizing is the inline declaration pinned on a clone bubble.
// The extra pixel of width keeps the last word from wrapping in the clone.
func BubbleSizing(m BubbleMeasurement) string {
	w := strconv.FormatFloat(m.Width, 'f', -1, 64)
	wp := strconv.FormatFloat(m.Width+1, 'f', -1, 64)
	h := strconv.FormatFloat(m.Height, 'f', -1, 64)
	return "width: " + wp + "px !important; " +
		"height: " + h + "px !important; " +
		"min-width: " + w + "px !important; " +
		"max-width: none !important; " +
		"flex: none !important;"
}

// PrepareClone applies capture-time fixes to a parsed copy of the page: it
// appends the stylesheet to <head> and pins every bubble inside the capture
// root to its live measurement, matched by document order. Bubbles beyond
// the measured count are left untouched. When the root is missing the whole
// document is searched.
func PrepareClone(doc *html.Node, ms []BubbleMeasurement, style CloneStyle) CloneReport {
	var rep CloneReport

	injectStyle(doc, style.Stylesheet())

	scope := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, style.RootAttr) == style.RootValue
	})
	if scope != nil {
		rep.RootFound = true
	} else {
		scope = doc
	}

	walk(scope, func(n *html.Node) {
		if n.Type != html.ElementNode || !hasClass(n, style.BubbleClass) {
			return
		}
		i := rep.Bubbles
		rep.Bubbles++
		if i >= len(ms) {
			return
		}
		appendStyle(n, BubbleSizing(ms[i]))
		rep.Sized++
	})
	return rep
}

func injectStyle(doc *html.Node, css string) {
	head := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Head
	})
	if head == nil {
		htmlEl := findFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.DataAtom == atom.Html
		})
		head = &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
		if htmlEl != nil {
			htmlEl.InsertBefore(head, htmlEl.FirstChild)
		} else {
			doc.InsertBefore(head, doc.FirstChild)
		}
	}
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: "data-chatsnap", Val: "clone"}},
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	head.AppendChild(el)
}

func appendStyle(n *html.Node, decl string) {
	for i, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		cur := strings.TrimSpace(a.Val)
		if cur != "" && !strings.HasSuffix(cur, ";") {
			cur += ";"
		}
		if cur != "" {
			cur += " "
		}
		n.Attr[i].Val = cur + decl
		return
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: decl})
}

// walk visits n and its descendants in document (pre)order.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
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
