package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Column picks a row key and the header shown for it.
type Column struct {
	Key   string
	Title string
}

// Columns builds columns whose title is the key itself.
func Columns(keys ...string) []Column {
	cols := make([]Column, len(keys))
	for i, k := range keys {
		cols[i] = Column{Key: k, Title: k}
	}
	return cols
}

// RenderTable writes a list of rows. Without explicit columns the header is
// taken from the first row's keys, sorted.
func RenderTable(w io.Writer, rows []map[string]any, cols []Column, f Format) error {
	if rows == nil {
		rows = []map[string]any{}
	}
	switch f {
	case JSON:
		return writeJSON(w, rows)
	case YAML:
		return writeYAML(w, rows)
	}

	if cols == nil && len(rows) > 0 {
		cols = Columns(sortedKeys(rows[0])...)
	}

	if f == CSV {
		cw := csv.NewWriter(w)
		header := make([]string, len(cols))
		for i, c := range cols {
			header[i] = c.Key
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, row := range rows {
			rec := make([]string, len(cols))
			for i, c := range cols {
				rec[i] = FormatValue(row[c.Key])
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	if len(rows) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.Title
	}
	fmt.Fprintln(tw, strings.Join(titles, "\t"))
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = FormatValue(row[c.Key])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
