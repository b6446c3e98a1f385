// Package parser reads shopping lists written by hand for bulk import.
//
// Two layouts are accepted. A plain YAML document:
//
//	name: Weekly
//	max_stores: 2
//	items:
//	  - canonical_id: 1042
//	    name: Whole milk 1L
//	    quantity: 2
//
// Or Markdown with YAML frontmatter holding name and max_stores, and one bullet
// per product in the body: "- 1042 Whole milk 1L x2". The quantity suffix is optional.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/basket/internal/apperr"
)

var itemLineRe = regexp.MustCompile(`^[-*]\s+(\d+)(?:\s+(.*?))?(?:\s+[x×](\d+(?:\.\d+)?))?$`)

// List is a parsed import document.
type List struct {
	Name      string `yaml:"name"`
	MaxStores int    `yaml:"max_stores"`
	Items     []Item `yaml:"items"`
}

// Item is one product line.
type Item struct {
	CanonicalID int64   `yaml:"canonical_id"`
	ProductName string  `yaml:"name"`
	Quantity    float64 `yaml:"quantity"`
}

// Parse reads a list document. A missing quantity means 1.
func Parse(data []byte) (*List, error) {
	var (
		l   *List
		err error
	)
	if fm, body, ok := splitFrontmatter(data); ok {
		l, err = parseMarkdown(fm, body)
	} else {
		l, err = parseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if err := l.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	return l, nil
}

func parseYAML(data []byte) (*List, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var l List
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return &l, nil
}

func parseMarkdown(fm []byte, body string) (*List, error) {
	var l List
	if err := yaml.Unmarshal(fm, &l); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	if len(l.Items) > 0 {
		return nil, errors.New("frontmatter: items belong in the body")
	}
	for n, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := itemLineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: expected \"- <id> <name> [x<qty>]\"", n+1)
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		it := Item{CanonicalID: id, ProductName: strings.TrimSpace(m[2])}
		if m[3] != "" {
			if it.Quantity, err = strconv.ParseFloat(m[3], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
		}
		l.Items = append(l.Items, it)
	}
	return &l, nil
}

func (l *List) normalize() error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return errors.New("name is required")
	}
	for i := range l.Items {
		it := &l.Items[i]
		if it.CanonicalID <= 0 {
			return fmt.Errorf("item %d: canonical_id must be positive", i+1)
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		if it.Quantity < 0 || math.IsNaN(it.Quantity) || math.IsInf(it.Quantity, 0) {
			return fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		it.ProductName = strings.TrimSpace(it.ProductName)
	}
	return nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. ok is false when there is no complete frontmatter block.
func splitFrontmatter(data []byte) (fm []byte, body string, ok bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", false
	}

	// Body starts after closing delimiter line.
	after := rest[idx+1+len(delim):]
	return rest[:idx], strings.TrimLeft(string(after), "\n\r"), true
}
