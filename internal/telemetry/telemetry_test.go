package telemetry

import (
	"context"
	"testing"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNewResource_ServiceAttributes(t *testing.T) {
	res, err := newResource("", "1.2.3")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	if v, ok := res.Set().Value(semconv.ServiceNameKey); !ok || v.AsString() != defaultServiceName {
		t.Errorf("service.name = %v, want %q", v.AsString(), defaultServiceName)
	}
	if v, ok := res.Set().Value(semconv.ServiceVersionKey); !ok || v.AsString() != "1.2.3" {
		t.Errorf("service.version = %v, want 1.2.3", v.AsString())
	}

	res, err = newResource("bdcollect-dev", "")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	if v, _ := res.Set().Value(semconv.ServiceNameKey); v.AsString() != "bdcollect-dev" {
		t.Errorf("service.name = %v, want bdcollect-dev", v.AsString())
	}
	if _, ok := res.Set().Value(semconv.ServiceVersionKey); ok {
		t.Error("service.version set for an empty version")
	}
}

func TestSetup_NilConfig(t *testing.T) {
	shutdown, err := Setup(context.Background(), nil, "dev")
	if err == nil {
		t.Fatal("Setup(nil) = nil error, want error")
	}
	if shutdown == nil {
		t.Fatal("ShutdownFunc is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown = %v", err)
	}
}
