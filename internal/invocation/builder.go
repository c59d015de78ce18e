package invocation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antigravity-dev/nipoppy-go/internal/subst"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Build renders descriptor+invocation+env into a single command string
// by the five-step pipeline in spec.md §4.5. It is deterministic: the
// same three inputs always produce the same bytes.
func Build(d *Descriptor, inv Invocation, env subst.Env) (string, error) {
	bound, err := validate(d, inv)
	if err != nil {
		return "", err
	}

	fragments := make(map[string]string, len(d.Inputs))
	for _, in := range d.Inputs {
		value, ok := bound[in.ID]
		fragment := ""
		if ok {
			substituted := subst.Value(value, env)
			fragment = renderFragment(&in, substituted)
		}
		fragments[in.ValueKey] = fragment
	}

	cmd := replaceValueKeys(d.CommandLine, fragments)

	cmd = whitespaceRun.ReplaceAllString(cmd, " ")
	return strings.TrimSpace(cmd), nil
}

// replaceValueKeys rewrites every value-key occurrence in commandLine in
// a single left-to-right scan, trying the longest key first at each
// position. Sequential whole-string replacement would make the result
// depend on iteration order whenever one key is a substring of another
// (e.g. [IN] inside [INPUT]); the single scan keeps the output
// deterministic for any key set.
func replaceValueKeys(commandLine string, fragments map[string]string) string {
	keys := make([]string, 0, len(fragments))
	for k := range fragments {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var b strings.Builder
	for i := 0; i < len(commandLine); {
		replaced := false
		for _, k := range keys {
			if strings.HasPrefix(commandLine[i:], k) {
				b.WriteString(fragments[k])
				i += len(k)
				replaced = true
				break
			}
		}
		if !replaced {
			b.WriteByte(commandLine[i])
			i++
		}
	}
	return b.String()
}

// validate checks the invocation against the descriptor (step 1) and
// returns the fully-defaulted binding set.
func validate(d *Descriptor, inv Invocation) (map[string]any, error) {
	for id := range inv {
		if d.InputByID(id) == nil {
			return nil, &ErrUnknownInput{ID: id}
		}
	}

	bound := make(map[string]any, len(d.Inputs))
	for _, in := range d.Inputs {
		value, ok := inv[in.ID]
		if !ok {
			if in.DefaultValue != nil {
				value = in.DefaultValue
				ok = true
			} else if !in.Optional {
				return nil, &ErrMissingRequiredInput{ID: in.ID}
			}
		}
		if !ok {
			continue
		}
		if err := checkType(&in, value); err != nil {
			return nil, err
		}
		if err := checkChoice(&in, value); err != nil {
			return nil, err
		}
		bound[in.ID] = value
	}
	return bound, nil
}

func checkType(in *Input, value any) error {
	for _, v := range toSlice(value) {
		if !scalarMatchesType(in.Type, v) {
			return &ErrInvalidType{ID: in.ID, Type: in.Type}
		}
	}
	return nil
}

func scalarMatchesType(t InputType, v any) bool {
	switch t {
	case TypeFlag:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case TypeString, TypeFile:
		_, ok := v.(string)
		return ok
	default:
		return false
	}
}

func checkChoice(in *Input, value any) error {
	if len(in.ValueChoices) == 0 {
		return nil
	}
	values := toSlice(value)
	for _, v := range values {
		found := false
		for _, choice := range in.ValueChoices {
			if fmt.Sprint(choice) == fmt.Sprint(v) {
				found = true
				break
			}
		}
		if !found {
			return &ErrInvalidChoice{ID: in.ID, Value: v}
		}
	}
	return nil
}

// renderFragment turns a bound, substituted value into the command-line
// fragment for one input (step 3): "flag + space-joined values"; a
// false Flag or an absent optional value renders as "". Values are
// rendered verbatim, not shell-quoted: a String binding may
// legitimately expand (via substitution) to several shell words, e.g. a
// container command prefix, and quoting would collapse it into one
// argument.
func renderFragment(in *Input, value any) string {
	if in.Type == TypeFlag {
		b, _ := value.(bool)
		if !b {
			return ""
		}
		return in.CommandLineFlag
	}

	values := toSlice(value)
	rendered := make([]string, 0, len(values))
	for _, v := range values {
		rendered = append(rendered, stringify(v))
	}
	body := strings.Join(rendered, " ")
	if body == "" {
		return ""
	}
	if in.CommandLineFlag == "" {
		return body
	}
	return in.CommandLineFlag + " " + body
}

func toSlice(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
