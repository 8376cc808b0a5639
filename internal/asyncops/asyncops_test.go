package asyncops

import (
	"context"
	"errors"
	"testing"

	"github.com/remintz/mapalinear/internal/apperr"
)

func TestUpdateProgressRejectsOutOfRangePercent(t *testing.T) {
	e := New(nil)
	err := e.UpdateProgress(context.Background(), "op-1", 150, nil)
	if err == nil {
		t.Fatal("expected an out-of-range percent to be rejected")
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidInput {
		t.Fatalf("expected CodeInvalidInput, got %v", err)
	}

	err = e.UpdateProgress(context.Background(), "op-1", -1, nil)
	if err == nil {
		t.Fatal("expected a negative percent to be rejected")
	}
}

func TestProgressReporterNilEngineIsSafe(t *testing.T) {
	var p *ProgressReporter
	p.Report(context.Background(), 50) // must not panic
}
