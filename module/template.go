package module

import (
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/baseline/errors"
)

var (
	numberLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	quotedLiteral = regexp.MustCompile(`^("[^"\\\r\n]*"|'[^'\\\r\n]*')$`)
	bareLiteral   = regexp.MustCompile(`^[A-Za-z0-9_.:/-]+$`)
)

// Render substitutes every literal occurrence of each key in source with its
// value.
//
// All keys are replaced in a single left-to-right pass, longest key first at
// any position, so the result does not depend on map iteration order and a
// value that happens to spell another key is left alone.
//
// Values must each be a single literal: a number, a bare token of
// [A-Za-z0-9_.:/-], or a quoted string without embedded quotes, backslashes
// or line breaks. Anything else is rejected with ErrUnsafeTemplateValue.
//
// When declared is non-empty, values must supply exactly those keys.
func Render(source string, values map[string]string, declared []string) (string, error) {
	if err := checkDeclared(values, declared); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(values))
	for key, value := range values {
		if key == "" {
			return "", errors.InvalidMetadataf("required values contain an empty key")
		}
		if !IsSafeLiteral(value) {
			return "", errors.Wrapf(errors.ErrUnsafeTemplateValue, "%s = %q", key, value)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return source, nil
	}

	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, key, values[key])
	}
	return strings.NewReplacer(pairs...).Replace(source), nil
}

// IsSafeLiteral reports whether value is a single literal that cannot change
// the structure of the code it is spliced into.
func IsSafeLiteral(value string) bool {
	return numberLiteral.MatchString(value) ||
		quotedLiteral.MatchString(value) ||
		bareLiteral.MatchString(value)
}

func checkDeclared(values map[string]string, declared []string) error {
	if len(declared) == 0 {
		return nil
	}

	want := make(map[string]struct{}, len(declared))
	var missing []string
	for _, key := range declared {
		want[key] = struct{}{}
		if _, ok := values[key]; !ok {
			missing = append(missing, key)
		}
	}
	var extra []string
	for key := range values {
		if _, ok := want[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	switch {
	case len(missing) > 0:
		return errors.InvalidMetadataf("required values missing declared placeholders: %s", strings.Join(missing, ", "))
	case len(extra) > 0:
		return errors.InvalidMetadataf("required values set undeclared placeholders: %s", strings.Join(extra, ", "))
	}
	return nil
}
