package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	// ErrNoObject means the text holds no brace-delimited candidate.
	ErrNoObject = errors.New("no json object in text")
	// ErrNotObject means the candidate decoded to something other than an object.
	ErrNotObject = errors.New("json value is not an object")
)

// ParseFunc turns raw model text into sections. Implementations must not panic
// and must not perform I/O.
type ParseFunc func(text string) (StructuredAnalysis, error)

// Strategy is a named ParseFunc.
type Strategy struct {
	Source Source
	Parse  ParseFunc
}

// LocalStrategies is the cheap cascade tried before any model round trip.
var LocalStrategies = []Strategy{
	{Source: SourceStrict, Parse: StrictParse},
	{Source: SourceSalvage, Parse: SalvageParse},
	{Source: SourceRepair, Parse: RepairParse},
}

// Run normalizes text and tries each strategy in order. The first success wins.
// When every strategy fails the returned error joins their failures.
func Run(text string, strategies ...Strategy) (StructuredAnalysis, Source, error) {
	norm := Normalize(text)
	var errs []error
	for _, st := range strategies {
		a, err := st.Parse(norm)
		if err == nil {
			return a, st.Source, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", st.Source, err))
	}
	return StructuredAnalysis{}, SourceNone, errors.Join(errs...)
}

// FirstSuccess composes strategies into a single ParseFunc.
func FirstSuccess(strategies ...Strategy) ParseFunc {
	return func(text string) (StructuredAnalysis, error) {
		a, _, err := Run(text, strategies...)
		return a, err
	}
}

// Normalize trims whitespace and strips a surrounding ``` or ```json fence.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// drop the info string, e.g. "json"
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			if info := strings.TrimSpace(s[:i]); !strings.ContainsAny(info, "{[") {
				s = s[i+1:]
			}
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// StrictParse decodes the whole text as one JSON object. Keys may be missing.
func StrictParse(text string) (StructuredAnalysis, error) {
	return decodeObject([]byte(text))
}

// SalvageParse decodes the span from the first '{' to the last '}'.
func SalvageParse(text string) (StructuredAnalysis, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return StructuredAnalysis{}, ErrNoObject
	}
	return decodeObject([]byte(text[start : end+1]))
}

// RepairParse runs the brace span through a JSON repair pass before decoding.
// A missing closing brace extends the span to the end of the text.
func RepairParse(text string) (StructuredAnalysis, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return StructuredAnalysis{}, ErrNoObject
	}
	candidate := text[start:]
	if end := strings.LastIndexByte(text, '}'); end > start {
		candidate = text[start : end+1]
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return StructuredAnalysis{}, fmt.Errorf("repair: %w", err)
	}
	return decodeObject([]byte(repaired))
}

func decodeObject(data []byte) (StructuredAnalysis, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return StructuredAnalysis{}, ErrNotObject
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return StructuredAnalysis{}, err
	}
	return fromObject(obj), nil
}

func fromObject(obj map[string]json.RawMessage) StructuredAnalysis {
	var a StructuredAnalysis
	matched := false

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// exact canonical keys first, aliases only fill what is still blank
	for _, k := range keys {
		if s := Section(k); s.valid() {
			a.Set(s, flatten(obj[k]))
			matched = true
		}
	}
	for _, k := range keys {
		s, ok := LookupSection(k)
		if !ok {
			continue
		}
		matched = true
		if strings.TrimSpace(a.Get(s)) == "" {
			a.Set(s, flatten(obj[k]))
		}
	}

	// {"analysis": {...}} style wrappers
	if !matched {
		for _, k := range keys {
			var inner map[string]json.RawMessage
			if json.Unmarshal(obj[k], &inner) == nil && len(inner) > 0 {
				if nested := fromObject(inner); !nested.IsEmpty() {
					return nested
				}
			}
		}
	}
	return a
}

func (s Section) valid() bool {
	_, ok := headings[s]
	return ok
}

// flatten renders any JSON value as display text. Strings are kept verbatim.
func flatten(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return render(v)
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(render(item)); s != "" {
				lines = append(lines, "- "+s)
			}
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := strings.TrimSpace(render(t[k])); s != "" {
				lines = append(lines, k+": "+s)
			}
		}
		return strings.Join(lines, "\n")
	}
	return fmt.Sprint(v)
}
