// Package baseline runs baseline definitions: it parses each definition's
// metadata, extracts the recent log window, executes the configured module
// over it and persists the module's output as the baseline's result table.
package baseline

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/baseline/errors"
)

// Metadata keys, as written in a definition's comment.
const (
	KeyLogSource      = "log source"
	KeyRequiredValues = "required values"
	KeyModuleName     = "module name"
	KeyFilter         = "filter"
	KeyHistory        = "history"
)

var requiredKeys = []string{KeyLogSource, KeyRequiredValues, KeyModuleName, KeyFilter, KeyHistory}

var (
	// table or schema.table or db.schema.table
	qualifiedIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)
	plainIdent     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
)

// Metadata is a validated baseline definition.
type Metadata struct {
	LogSource      string
	RequiredValues map[string]string
	ModuleName     string
	FilterDays     int
	HistoryColumn  string
}

// ParseMetadata decodes a definition comment. Every failure is marked
// ErrInvalidMetadata; the whole definition is rejected, never partly used.
func ParseMetadata(raw string) (*Metadata, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode metadata"), errors.ErrInvalidMetadata)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.InvalidMetadataf("metadata must be a mapping, got %s", nodeKind(root))
	}

	fields := make(map[string]*yaml.Node, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		fields[root.Content[i].Value] = root.Content[i+1]
	}
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.WithHint(
			errors.InvalidMetadataf("metadata is missing %s", quoteList(missing)),
			"required keys: "+quoteList(requiredKeys))
	}

	md := &Metadata{}
	var err error
	if md.LogSource, err = identifier(fields[KeyLogSource], KeyLogSource, qualifiedIdent); err != nil {
		return nil, err
	}
	if md.HistoryColumn, err = identifier(fields[KeyHistory], KeyHistory, plainIdent); err != nil {
		return nil, err
	}
	if md.ModuleName, err = scalarString(fields[KeyModuleName], KeyModuleName); err != nil {
		return nil, err
	}
	if md.ModuleName == "" {
		return nil, errors.InvalidMetadataf("%q is empty", KeyModuleName)
	}
	if md.FilterDays, err = filterDays(fields[KeyFilter]); err != nil {
		return nil, err
	}
	if md.RequiredValues, err = requiredValues(fields[KeyRequiredValues]); err != nil {
		return nil, err
	}
	return md, nil
}

// ValidIdentifier reports whether name can be spliced into SQL as a table
// reference.
func ValidIdentifier(name string) bool {
	return qualifiedIdent.MatchString(name)
}

// ValidName reports whether name can be used as a baseline, which becomes
// an unqualified table name inside the configured schema.
func ValidName(name string) bool {
	return plainIdent.MatchString(name)
}

func identifier(n *yaml.Node, key string, pattern *regexp.Regexp) (string, error) {
	s, err := scalarString(n, key)
	if err != nil {
		return "", err
	}
	if !pattern.MatchString(s) {
		return "", errors.Mark(
			errors.InvalidMetadataf("%q value %q is not a SQL identifier", key, s),
			errors.ErrInvalidIdentifier)
	}
	return s, nil
}

func scalarString(n *yaml.Node, key string) (string, error) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", errors.InvalidMetadataf("%q must be a single value, got %s", key, nodeKind(n))
	}
	return strings.TrimSpace(n.Value), nil
}

// filterDays accepts a non-negative integer, or a string or integral float
// holding one.
func filterDays(n *yaml.Node) (int, error) {
	s, err := scalarString(n, KeyFilter)
	if err != nil {
		return 0, err
	}
	days, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
			return 0, errors.InvalidMetadataf("%q must be a whole number of days, got %q", KeyFilter, s)
		}
		days = int(f)
	}
	if days < 0 {
		return 0, errors.InvalidMetadataf("%q must not be negative, got %d", KeyFilter, days)
	}
	return days, nil
}

// requiredValues decodes a mapping of scalars, each kept as its text.
func requiredValues(n *yaml.Node) (map[string]string, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errors.InvalidMetadataf("%q must be a mapping, got %s", KeyRequiredValues, nodeKind(n))
	}
	values := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.Value == "" {
			return nil, errors.InvalidMetadataf("%q has an empty or non-scalar key", KeyRequiredValues)
		}
		if v.Kind != yaml.ScalarNode || v.Tag == "!!null" {
			return nil, errors.InvalidMetadataf("%q value for %q must be a single value, got %s", KeyRequiredValues, k.Value, nodeKind(v))
		}
		if _, dup := values[k.Value]; dup {
			return nil, errors.InvalidMetadataf("%q repeats key %q", KeyRequiredValues, k.Value)
		}
		values[k.Value] = v.Value
	}
	return values, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a list"
	case yaml.AliasNode:
		return "an alias"
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "null"
		}
		return "a scalar"
	default:
		return "nothing"
	}
}

func quoteList(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = strconv.Quote(k)
	}
	sort.Strings(quoted)
	return strings.Join(quoted, ", ")
}
