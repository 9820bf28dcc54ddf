package cbin

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ToText renders doc in its INI-like text form:
//
//	[Section]
//	Key = 5, 1.5, Text
//
// Each section is followed by a blank line.
func ToText(doc *Document) string {
	var b strings.Builder
	for _, s := range doc.Sections {
		b.WriteString("[")
		b.WriteString(s.Title)
		b.WriteString("]\n")
		for _, k := range s.Keys {
			b.WriteString(k.Title)
			b.WriteString(" =")
			for i, v := range k.Values {
				b.WriteString(" ")
				b.WriteString(FormatValue(v))
				if i < len(k.Values)-1 {
					b.WriteString(",")
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatValue renders a single value the way ToText does.
func FormatValue(v Value) string {
	switch v.Kind() {
	case TypeToken:
		return v.Text
	case TypeFloat:
		return formatFloat(v.Float())
	default:
		return strconv.FormatInt(int64(v.Raw), 10)
	}
}

// formatFloat keeps a decimal point or exponent in the output so the value
// reads back as a float.
func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}

// ParseValue classifies a text value: an int32 literal, then a decimal
// float, and anything else is a token whose index is assigned later (-1
// until then). The only non-decimal floats accepted are the spellings
// ToText writes: "NaN", "+Inf" and "-Inf". Words such as "inf" or "nan"
// and hex floats stay tokens.
func ParseValue(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return IntValue(int32(i))
	}
	if isFloatLiteral(s) {
		if f, err := strconv.ParseFloat(s, 32); err == nil {
			return FloatValue(float32(f))
		}
	}
	return TokenValue(-1, s)
}

func isFloatLiteral(s string) bool {
	switch s {
	case "NaN", "+Inf", "-Inf":
		return true
	}
	digit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("+-.eE", r):
		default:
			return false
		}
	}
	return digit
}

// Import parses the text form and interns its strings into a token table.
// The result has a placeholder header and a materialised Body.
func (c *Codec) Import(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}
	sections, err := c.parseSections(ctx, string(data))
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Parsed CBIN text", "sections", len(sections))
	return c.build(ctx, sections)
}

// parseSections reads the text form. Lines that are neither a section
// header nor contain "=" are skipped with a warning.
func (c *Codec) parseSections(ctx context.Context, text string) ([]Section, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var sections []Section
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) >= 2 && line[0] == '[' && line[len(line)-1] == ']' {
			sections = append(sections, Section{Title: line[1 : len(line)-1], TitleIndex: -1})
			continue
		}

		name, rhs, ok := strings.Cut(line, "=")
		if !ok {
			c.logger.WarnContext(ctx, "Skipping CBIN text line without '='", "line", n+1, "text", line)
			continue
		}
		if len(sections) == 0 {
			return nil, &SyntaxError{Line: n + 1, Msg: fmt.Sprintf("key %q appears before any section", strings.TrimSpace(name))}
		}

		key := Key{Title: strings.TrimSpace(name), TitleIndex: -1}
		if rhs = strings.TrimSpace(rhs); rhs != "" {
			for _, field := range strings.Split(rhs, ",") {
				key.Values = append(key.Values, ParseValue(strings.TrimSpace(field)))
			}
		}
		key.Count = int32(len(key.Values))

		cur := &sections[len(sections)-1]
		cur.Keys = append(cur.Keys, key)
		cur.Count = int32(len(cur.Keys))
	}
	return sections, nil
}

// interner hands out 1-based token indices, reusing the index of a string
// that has been seen before.
type interner struct {
	index map[string]int32
	table TokenTable
}

func newInterner() *interner {
	return &interner{index: make(map[string]int32), table: NewTokenTable()}
}

func (in *interner) intern(s string) int32 {
	if idx, ok := in.index[s]; ok {
		return idx
	}
	in.table = append(in.table, s)
	idx := int32(len(in.table) - 1)
	in.index[s] = idx
	return idx
}

// internTokens assigns token indices in the order the game's files use:
// every section title, then every key title, then every token value, each
// group top to bottom.
func internTokens(sections []Section) TokenTable {
	in := newInterner()
	for i := range sections {
		sections[i].TitleIndex = in.intern(sections[i].Title)
	}
	for i := range sections {
		for j := range sections[i].Keys {
			k := &sections[i].Keys[j]
			k.TitleIndex = in.intern(k.Title)
		}
	}
	for i := range sections {
		for j := range sections[i].Keys {
			values := sections[i].Keys[j].Values
			for n := range values {
				if values[n].Type == TypeToken {
					values[n].Raw = in.intern(values[n].Text)
				}
			}
		}
	}
	return in.table
}

// build interns sections into a fresh document and materialises its body.
func (c *Codec) build(ctx context.Context, sections []Section) (*Document, error) {
	doc := &Document{
		Header:   c.placeholderHeader(),
		Tokens:   internTokens(sections),
		Sections: sections,
		Success:  true,
	}
	header, body, err := c.EncodeBody(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding imported document: %w", err)
	}
	doc.Header = header
	doc.Body = body
	c.logger.DebugContext(ctx, "Built CBIN document", "sections", len(sections), "tokens", doc.Tokens.Len())
	return doc, nil
}
