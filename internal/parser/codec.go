// Package parser implements the on-disk memory format: a YAML front-matter
// header followed by a Markdown body, plus the [[wikilink]] text functions
// used by the link graph and the auditor.
package parser

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/kernpunkt/llm-mem/internal/apperr"
	"github.com/kernpunkt/llm-mem/internal/models"
)

// Encode renders m as a memory file. Protected fields are written first in a
// fixed order, custom fields follow sorted by key.
func Encode(m *models.Memory) ([]byte, error) {
	if missing := missingForEncode(m); len(missing) > 0 {
		return nil, apperr.Invalid("cannot encode memory, missing fields", missing...)
	}
	if bad := models.ProtectedCollisions(m.Custom); len(bad) > 0 {
		return nil, apperr.Invalid("custom fields cannot override protected fields", bad...)
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return fmt.Errorf("parser: encode %s: %w", key, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		return nil
	}

	fields := []struct {
		key   string
		value any
		skip  bool
	}{
		{models.FieldID, m.ID, false},
		{models.FieldTitle, m.Title, false},
		{models.FieldCategory, m.Category, false},
		{models.FieldTags, nonNil(m.Tags), false},
		{models.FieldSources, nonNil(m.Sources), false},
		{models.FieldAbstract, m.Abstract, m.Abstract == ""},
		{models.FieldCreatedAt, m.CreatedAt.UTC(), false},
		{models.FieldUpdatedAt, m.UpdatedAt.UTC(), false},
		{models.FieldLastReviewed, m.LastReviewed.UTC(), false},
		{models.FieldLinks, nonNil(m.Links), false},
	}
	for _, f := range fields {
		if f.skip {
			continue
		}
		if err := add(f.key, f.value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(m.Custom))
	for k := range m.Custom {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := add(k, m.Custom[k]); err != nil {
			return nil, err
		}
	}

	var header bytes.Buffer
	enc := yaml.NewEncoder(&header)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("parser: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode header: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(delimiter + "\n")
	out.Write(header.Bytes())
	out.WriteString(delimiter + "\n\n")
	out.WriteString(m.Body)
	return out.Bytes(), nil
}

// Decode parses a memory file. The header must be well-formed YAML and must
// carry id, title and category. Array fields holding anything other than a
// sequence decode as empty so older or hand-edited files stay readable.
func Decode(data []byte) (*models.Memory, error) {
	header, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, apperr.Invalid("malformed memory file: " + err.Error())
	}

	var root yaml.Node
	if err := yaml.Unmarshal(header, &root); err != nil {
		return nil, apperr.Invalid("malformed front-matter: " + err.Error())
	}

	var pairs []*yaml.Node
	switch {
	case root.Kind == 0:
		// empty header
	case root.Kind == yaml.DocumentNode && len(root.Content) == 1 && root.Content[0].Kind == yaml.MappingNode:
		pairs = root.Content[0].Content
	default:
		return nil, apperr.Invalid("malformed front-matter: header is not a mapping")
	}

	m := &models.Memory{
		Body:    body,
		Tags:    []string{},
		Sources: []string{},
		Links:   []string{},
	}
	var invalid []string

	for i := 0; i+1 < len(pairs); i += 2 {
		key, val := pairs[i].Value, pairs[i+1]
		switch key {
		case models.FieldID:
			m.ID, err = scalarString(val)
		case models.FieldTitle:
			m.Title, err = scalarString(val)
		case models.FieldCategory:
			m.Category, err = scalarString(val)
		case models.FieldAbstract:
			m.Abstract, err = scalarString(val)
		case models.FieldTags:
			m.Tags = stringList(val)
		case models.FieldSources:
			m.Sources = stringList(val)
		case models.FieldLinks:
			m.Links = stringList(val)
		case models.FieldCreatedAt:
			m.CreatedAt, err = timestamp(val)
		case models.FieldUpdatedAt:
			m.UpdatedAt, err = timestamp(val)
		case models.FieldLastReviewed:
			m.LastReviewed, err = timestamp(val)
		default:
			var v any
			if err = val.Decode(&v); err == nil {
				if m.Custom == nil {
					m.Custom = make(map[string]any)
				}
				m.Custom[key] = v
			}
		}
		if err != nil {
			invalid = append(invalid, key)
			err = nil
		}
	}
	if len(invalid) > 0 {
		return nil, apperr.Invalid("malformed front-matter values", invalid...)
	}

	var missing []string
	for _, f := range []struct{ key, value string }{
		{models.FieldID, m.ID},
		{models.FieldTitle, m.Title},
		{models.FieldCategory, m.Category},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Invalid("missing required fields", missing...)
	}

	return m, nil
}

func missingForEncode(m *models.Memory) []string {
	var missing []string
	check := func(key string, absent bool) {
		if absent {
			missing = append(missing, key)
		}
	}
	check(models.FieldID, strings.TrimSpace(m.ID) == "")
	check(models.FieldTitle, strings.TrimSpace(m.Title) == "")
	check(models.FieldCategory, strings.TrimSpace(m.Category) == "")
	check(models.FieldCreatedAt, m.CreatedAt.IsZero())
	check(models.FieldUpdatedAt, m.UpdatedAt.IsZero())
	check(models.FieldLastReviewed, m.LastReviewed.IsZero())
	return missing
}

func scalarString(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("not a scalar")
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return cast.ToStringE(v)
}

func stringList(n *yaml.Node) []string {
	out := []string{}
	if n.Kind != yaml.SequenceNode {
		return out
	}
	for _, item := range n.Content {
		s, err := scalarString(item)
		if err != nil || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func timestamp(n *yaml.Node) (time.Time, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return time.Time{}, err
	}
	if v == nil || v == "" {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
