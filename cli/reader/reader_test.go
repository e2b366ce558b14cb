package reader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/magnetmeta/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func assertIDs(t *testing.T, got []types.Identifier, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d identifiers %v, want %v", len(got), got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFromArg(t *testing.T) {
	ids, err := FromArg("  magnet:?xt=urn:btih:abc \n")
	if err != nil {
		t.Fatalf("FromArg: %v", err)
	}
	assertIDs(t, ids, "magnet:?xt=urn:btih:abc")

	if _, err := FromArg("   "); !errors.Is(err, ErrNoIdentifiers) {
		t.Errorf("expected ErrNoIdentifiers, got %v", err)
	}
}

func TestReadLines(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{"plain", "a\nb\nc\n", []string{"a", "b", "c"}, nil},
		{"blank lines and whitespace", "\n  a  \n\n\tb\r\n   \n", []string{"a", "b"}, nil},
		{"no trailing newline", "a\nb", []string{"a", "b"}, nil},
		{"duplicates kept", "a\na\n", []string{"a", "a"}, nil},
		{"empty", "", nil, ErrNoIdentifiers},
		{"only blanks", "\n \n\t\n", nil, ErrNoIdentifiers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ReadLines(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadLines: %v", err)
			}
			assertIDs(t, ids, tt.want...)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"links.json": FormatJSON,
		"links.YAML": FormatYAML,
		"links.yml":  FormatYAML,
		"links":      FormatJSON,
		"-":          FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoad_Sources(t *testing.T) {
	list := writeFile(t, "links.txt", "x1\n\nx2\n")
	jsonDoc := writeFile(t, "links.json", `[{"magnet": "m1"}, {"magnet": "m2", "title": "t"}]`)
	yamlDoc := writeFile(t, "links.yaml", "- magnet: y1\n- magnet: y2\n")
	customField := writeFile(t, "custom.json", `[{"uri": "c1"}]`)

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"arg", Options{Arg: "single"}, []string{"single"}},
		{"list file", Options{ListFile: list}, []string{"x1", "x2"}},
		{"list stdin", Options{ListFile: "-", Stdin: strings.NewReader("s1\ns2\n")}, []string{"s1", "s2"}},
		{"json document", Options{Document: jsonDoc}, []string{"m1", "m2"}},
		{"yaml document", Options{Document: yamlDoc}, []string{"y1", "y2"}},
		{"custom field", Options{Document: customField, Field: "uri"}, []string{"c1"}},
		{"document stdin", Options{Document: "-", Stdin: strings.NewReader(`[{"magnet":"d1"}]`)}, []string{"d1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := Load(tt.opts)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			assertIDs(t, ids, tt.want...)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	missingField := writeFile(t, "bad.json", `[{"magnet": "m1"}, {"url": "u"}]`)
	wrongType := writeFile(t, "bad2.json", `[{"magnet": 42}]`)
	notArray := writeFile(t, "bad3.json", `{"magnet": "m1"}`)
	emptyArray := writeFile(t, "empty.json", `[]`)

	tests := []struct {
		name    string
		opts    Options
		wantErr error
		wantMsg string
	}{
		{"no source", Options{}, ErrNoIdentifiers, ""},
		{"two sources", Options{Arg: "a", ListFile: "b"}, ErrAmbiguousSource, ""},
		{"missing list file", Options{ListFile: filepath.Join(t.TempDir(), "nope")}, nil, "open input"},
		{"missing field", Options{Document: missingField}, nil, `entry 1: missing "magnet" field`},
		{"wrong type", Options{Document: wrongType}, nil, "non-empty string"},
		{"not an array", Options{Document: notArray}, nil, "decode json document"},
		{"empty array", Options{Document: emptyArray}, ErrNoIdentifiers, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestOptions_Single(t *testing.T) {
	if !(Options{Arg: "a"}).Single() {
		t.Error("Arg alone should be single mode")
	}
	if (Options{ListFile: "f"}).Single() {
		t.Error("ListFile should be list mode")
	}
	if (Options{Document: "d"}).Single() {
		t.Error("Document should be list mode")
	}
}
