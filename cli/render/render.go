// Package render prints the results of the read-side commands (inspect,
// events, clean, scrape, version) as json, yaml or a table.
//
// When --format is absent, a terminal on stdout gets a table and anything
// else gets json. --no-color only changes table headers.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// Format is an output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses --format. Empty input returns an empty Format so the
// caller can pick a default.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case "", FormatJSON, FormatTable, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a renderer from --format and --no-color. Output goes
// to the app writer when one is set.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	if format == "" {
		format = FormatJSON
		if f, ok := out.(*os.File); ok && IsTTY(f) {
			format = FormatTable
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), out), nil
}

// NewRendererWithWriter builds a renderer over an explicit writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected format.
func (r *Renderer) Format() Format { return r.format }

// Render writes data in the selected format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.table(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// table prints a slice as rows under a header, and anything else as
// key/value lines. Nested structs are flattened with dotted names.
func (r *Renderer) table(data any) error {
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	v := indirect(reflect.ValueOf(data))
	switch {
	case !v.IsValid():
		fmt.Fprintln(tw, "(no results)")
	case v.Kind() == reflect.Slice || v.Kind() == reflect.Array:
		if v.Len() == 0 {
			fmt.Fprintln(tw, "(no results)")
			break
		}
		cols := columnsOf(indirect(v.Index(0)))
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.name
		}
		r.header(tw, strings.Join(names, "\t"))
		for i := range v.Len() {
			row := indirect(v.Index(i))
			cells := make([]string, len(cols))
			for j, c := range cols {
				cells[j] = cell(c.value(row))
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
	case v.Kind() == reflect.Struct || v.Kind() == reflect.Map:
		for _, c := range columnsOf(v) {
			fmt.Fprintf(tw, "%s:\t%s\n", c.name, cell(c.value(v)))
		}
	default:
		fmt.Fprintf(tw, "%v\n", v.Interface())
	}
	return tw.Flush()
}

func (r *Renderer) header(w io.Writer, line string) {
	if !r.noColor {
		line = headerStyle.Render(line)
	}
	fmt.Fprintln(w, line)
}

// column reads one named cell out of a row value.
type column struct {
	name  string
	value func(row reflect.Value) reflect.Value
}

// columnsOf lists the cells of a struct (json names, nested structs
// flattened one level deep) or of a map (sorted keys).
func columnsOf(v reflect.Value) []column {
	switch v.Kind() {
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		cols := make([]column, len(keys))
		for i, k := range keys {
			cols[i] = column{
				name:  fmt.Sprint(k.Interface()),
				value: func(row reflect.Value) reflect.Value { return row.MapIndex(k) },
			}
		}
		return cols
	case reflect.Struct:
		return structColumns(v.Type(), "", nil, 1)
	default:
		return []column{{name: "value", value: func(row reflect.Value) reflect.Value { return row }}}
	}
}

func structColumns(t reflect.Type, prefix string, index []int, depth int) []column {
	var cols []column
	for i := range t.NumField() {
		f := t.Field(i)
		name, ok := fieldName(f)
		if !ok {
			continue
		}
		idx := append(append([]int(nil), index...), i)

		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && !isScalarStruct(ft) && depth > 0 {
			p := prefix + name + "."
			if f.Anonymous {
				p = prefix
			}
			cols = append(cols, structColumns(ft, p, idx, depth-1)...)
			continue
		}
		cols = append(cols, column{name: prefix + name, value: fieldAt(idx)})
	}
	return cols
}

// fieldAt walks a field index path, stopping at nil pointers.
func fieldAt(index []int) func(reflect.Value) reflect.Value {
	return func(row reflect.Value) reflect.Value {
		v := row
		for _, i := range index {
			v = indirect(v)
			if !v.IsValid() {
				return v
			}
			v = v.Field(i)
		}
		return v
	}
}

// fieldName returns the json name of an exported field.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch tag {
	case "-":
		return "", false
	case "":
		return strings.ToLower(f.Name), true
	}
	return tag, true
}

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
)

func isScalarStruct(t reflect.Type) bool {
	return t == timeType
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// cell formats one table value.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	switch {
	case v.Type() == timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case v.Type() == durationType:
		return time.Duration(v.Int()).Round(time.Millisecond).String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.String && v.Len() <= 3 {
			parts := make([]string, v.Len())
			for i := range v.Len() {
				parts[i] = v.Index(i).String()
			}
			return strings.Join(parts, ",")
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// IsTTY reports whether f is a terminal.
func IsTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
