package utils_test

import (
	"testing"

	"github.com/robertof/go-restclient-exporter/utils"
)

func TestErrorFilter_ReportsOnlyUnseenErrors(t *testing.T) {
	f := utils.NewErrorFilter()

	if !f.NewError("timed out") {
		t.Fatalf("NewError(%q) = false on first occurrence, want true", "timed out")
	}

	if f.NewError("timed out") {
		t.Fatalf("NewError(%q) = true on second occurrence, want false", "timed out")
	}

	if !f.NewError("connection refused") {
		t.Fatalf("NewError(%q) = false for a different message, want true", "connection refused")
	}
}

func TestErrorFilter_ClearForgetsErrors(t *testing.T) {
	f := utils.NewErrorFilter()

	f.NewError("timed out")
	f.Clear()

	if !f.NewError("timed out") {
		t.Fatalf("NewError(%q) = false after Clear(), want true", "timed out")
	}
}

func TestErrorFilter_ZeroValueIsUsable(t *testing.T) {
	var f utils.ErrorFilter

	if !f.NewError("boom") {
		t.Fatal("zero value ErrorFilter did not accept first error")
	}
}
