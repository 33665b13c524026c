// Package output renders command results as text, JSON, CSV or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	CSV  Format = "csv"
	YAML Format = "yaml"
)

// ParseFormat accepts text, table (alias of text), json, csv and yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "table":
		return Text, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json, csv or yaml)", s)
}

// Printer binds a writer to a format.
type Printer struct {
	Out    io.Writer
	Format Format
}

func (p Printer) Map(data map[string]any) error {
	return RenderMap(p.Out, data, p.Format)
}

func (p Printer) Table(rows []map[string]any, cols []Column) error {
	return RenderTable(p.Out, rows, cols, p.Format)
}

// RenderMap writes a nested key/value structure. In text mode every leaf is
// one "Key: value" line and nested maps open an indented block.
func RenderMap(w io.Writer, data map[string]any, f Format) error {
	switch f {
	case JSON:
		return writeJSON(w, data)
	case YAML:
		return writeYAML(w, data)
	case CSV:
		return RenderTable(w, []map[string]any{flatten(data, "")}, nil, CSV)
	}
	writeTree(w, data, "")
	return nil
}

func writeTree(w io.Writer, data map[string]any, indent string) {
	for _, k := range sortedKeys(data) {
		switch v := data[k].(type) {
		case map[string]any:
			fmt.Fprintf(w, "%s%s:\n", indent, Humanize(k))
			writeTree(w, v, indent+"  ")
		default:
			fmt.Fprintf(w, "%s%s: %s\n", indent, Humanize(k), FormatValue(v))
		}
	}
}

// Humanize turns "number_of_nodes" into "Number of nodes".
func Humanize(key string) string {
	s := strings.ToLower(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatValue renders a scalar for text and CSV output. Lists are joined
// with ", ".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.DateTime)
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, FormatValue(e))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, _ := json.Marshal(t)
		return string(b)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Dump writes any value as JSON or YAML. Text falls back to RenderMap when
// v is a map and to indented JSON otherwise.
func Dump(w io.Writer, v any, f Format) error {
	switch f {
	case YAML:
		return writeYAML(w, v)
	case Text, CSV:
		if m, ok := v.(map[string]any); ok {
			return RenderMap(w, m, f)
		}
	}
	return writeJSON(w, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// flatten joins nested keys with dots so a map fits one CSV row.
func flatten(data map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range data {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			for fk, fv := range flatten(m, key) {
				out[fk] = fv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
