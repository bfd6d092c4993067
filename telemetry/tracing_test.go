package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/profprotonn/protonbot/telemetry"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), "", "protonbot", "test")
	if err != nil {
		t.Fatalf("couldn't init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("couldn't shut down: %v", err)
	}
}

func TestSpan(t *testing.T) {
	// With no provider installed, spans are no-ops but must still be usable.
	ctx, span := telemetry.Start(context.Background(), "test", "span", attribute.String("k", "v"))
	if ctx == nil || span == nil {
		t.Fatal("no span")
	}
	telemetry.End(span, errors.New("failed"))
}
