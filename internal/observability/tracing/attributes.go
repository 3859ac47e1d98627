package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var forbiddenKeys = map[attribute.Key]struct{}{
	"phone_number":    {},
	"invitee_name":    {},
	"message":         {},
	"reason":          {},
	"http.url":        {},
	"http.target":     {},
	"http.user_agent": {},
}

// SafeAttributes drops attributes that could carry personal data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := forbiddenKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error suitable for span recording. Classified domain
// errors are reduced to their code; others pass through unchanged.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	if de, ok := domainerr.As(err); ok {
		return errors.New(string(de.Kind) + ":" + de.Code)
	}
	return err
}

// ExtractContext reads the propagated trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
