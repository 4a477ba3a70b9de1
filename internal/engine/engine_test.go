package engine

import (
	"errors"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{input: "", want: FormatMarkdown},
		{input: "markdown", want: FormatMarkdown},
		{input: "text", want: FormatText},
		{input: "json", want: FormatJSON},
		{input: "html", want: FormatHTML},
		{input: "pdf", wantErr: true},
		{input: "MARKDOWN", wantErr: true},
		{input: "md", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error, got %q", tt.input, got)
			} else if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseFormat(%q): error %v is not ErrValidation", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSupportsFormat(t *testing.T) {
	d := Descriptor{Formats: []OutputFormat{FormatText, FormatHTML}}

	if !d.SupportsFormat(FormatText) {
		t.Error("expected text to be supported")
	}
	if d.SupportsFormat(FormatMarkdown) {
		t.Error("expected markdown to be unsupported")
	}

	empty := Descriptor{}
	if empty.SupportsFormat(FormatText) {
		t.Error("descriptor without formats should support nothing")
	}
}
