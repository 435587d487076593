package param_test

import (
	"testing"

	"github.com/robertof/go-restclient-exporter/param"
)

func TestAccessMode(t *testing.T) {
	tests := map[string]param.AccessMode{
		"r":  param.ReadOnly,
		"rw": param.ReadWrite,
		"w":  param.WriteOnly,
	}

	for s, want := range tests {
		got, err := param.ParseAccessMode(s)
		if err != nil || got != want {
			t.Errorf("ParseAccessMode(%q): got %v, %v, wanted %v", s, got, err, want)
		}

		if got.String() != s {
			t.Errorf("%v.String(): got %q, wanted %q", got, got.String(), s)
		}
	}

	if _, err := param.ParseAccessMode("x"); err == nil {
		t.Errorf("ParseAccessMode(x): got no error")
	}
}

func TestType_UnmarshalText(t *testing.T) {
	tests := map[string]param.Type{
		"":        param.TypeUninit,
		"bool":    param.TypeBool,
		"int":     param.TypeInt,
		"uint":    param.TypeUint,
		"float":   param.TypeDouble,
		"double":  param.TypeDouble,
		"String":  param.TypeString,
		"enum":    param.TypeEnum,
		"command": param.TypeCommand,
	}

	for s, want := range tests {
		var got param.Type

		if err := got.UnmarshalText([]byte(s)); err != nil || got != want {
			t.Errorf("UnmarshalText(%q): got %v, %v, wanted %v", s, got, err, want)
		}
	}

	var typ param.Type
	if err := typ.UnmarshalText([]byte("complex")); err == nil {
		t.Errorf("UnmarshalText(complex): got no error")
	}
}

func TestLimit_String(t *testing.T) {
	if got := (param.Limit{}).String(); got != "none" {
		t.Errorf("empty limit: got %q", got)
	}

	if got := (param.Limit{Exists: true, Int: 2, Float: 2.5}).String(); got != "2.5" {
		t.Errorf("float limit: got %q", got)
	}
}
