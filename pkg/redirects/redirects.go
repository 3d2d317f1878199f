// Package redirects models host redirect rules and writes them to Netlify's
// _redirects and netlify.toml formats.
package redirects

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Rule is one host redirect. Hosts evaluate rules first-match-wins.
type Rule struct {
	From   string `toml:"from" json:"from"`
	To     string `toml:"to" json:"to"`
	Status int    `toml:"status" json:"status"`
	Force  bool   `toml:"force" json:"force"`
}

// Line renders the rule in _redirects syntax; a forced rule gets a "!"
// suffix on its status. From and To are escaped with Escaped.
func (r Rule) Line() string {
	r = r.Escaped()
	status := strconv.Itoa(r.Status)
	if r.Force {
		status += "!"
	}
	return r.From + "  " + r.To + "  " + status
}

// Escaped returns the rule with whitespace and control characters in From
// and To percent-encoded, the form the rule takes in a _redirects file.
// Splats, placeholders and existing escapes are kept.
func (r Rule) Escaped() Rule {
	r.From = escapeField(r.From)
	r.To = escapeField(r.To)
	return r
}

func escapeField(s string) string {
	if strings.IndexFunc(s, needsEscape) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, c := range s {
		if !needsEscape(c) {
			b.WriteRune(c)
			continue
		}
		var buf [4]byte
		n := copy(buf[:], string(c))
		for _, x := range buf[:n] {
			fmt.Fprintf(&b, "%%%02X", x)
		}
	}
	return b.String()
}

// needsEscape reports runes that would split or break a _redirects field.
func needsEscape(c rune) bool {
	return unicode.IsSpace(c) || unicode.IsControl(c)
}

// List is an ordered rule list. New rules are inserted at the head so they
// take precedence over everything added before them.
type List struct {
	rules []Rule
}

// Unshift inserts rules at the head, keeping their relative order.
func (l *List) Unshift(rules ...Rule) {
	if len(rules) == 0 {
		return
	}
	merged := make([]Rule, 0, len(rules)+len(l.rules))
	merged = append(merged, rules...)
	l.rules = append(merged, l.rules...)
}

// Rules returns a copy of the rules in evaluation order.
func (l *List) Rules() []Rule {
	return append([]Rule(nil), l.rules...)
}

// Len returns the number of rules.
func (l *List) Len() int { return len(l.rules) }

// Index returns the position of the first rule with the given From, or -1.
func (l *List) Index(from string) int {
	for i, r := range l.rules {
		if r.From == from {
			return i
		}
	}
	return -1
}

// ParseLine parses one _redirects line. Blank and comment lines return ok=false.
func ParseLine(line string) (Rule, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Rule{}, false, fmt.Errorf("redirect line %q: expected at least from and to", line)
	}
	r := Rule{From: fields[0], To: fields[1], Status: 301}
	if len(fields) >= 3 {
		s := fields[2]
		if strings.HasSuffix(s, "!") {
			r.Force = true
			s = strings.TrimSuffix(s, "!")
		}
		if code, err := strconv.Atoi(s); err == nil {
			r.Status = code
		}
	}
	return r, true, nil
}

// RenderFile prepends rules to the existing contents of a _redirects file.
// Existing lines, comments included, are kept byte-for-byte after ours.
func RenderFile(rules []Rule, existing string) string {
	var b strings.Builder
	for _, r := range rules {
		b.WriteString(r.Line())
		b.WriteByte('\n')
	}
	if existing != "" {
		b.WriteString(existing)
		if !strings.HasSuffix(existing, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ParseFile reads every rule in a _redirects file.
func ParseFile(content string) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(strings.NewReader(content))
	n := 0
	for scanner.Scan() {
		n++
		r, ok, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if ok {
			rules = append(rules, r)
		}
	}
	return rules, scanner.Err()
}
