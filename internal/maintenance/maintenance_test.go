package maintenance

import (
	"context"
	"testing"
)

func TestRepairReferencesDryRunSkipsRepository(t *testing.T) {
	e := New(nil, nil, nil, nil)
	n, err := e.RepairReferences(context.Background(), true)
	if err != nil {
		t.Fatalf("expected dry run not to touch the (nil) repository, got error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected a dry run to report 0, got %d", n)
	}
}
