package control

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
)

const tracerName = "github.com/signalsfoundry/interferometer-simulator/internal/control"

// TracingUnaryServerInterceptor names control spans "control.<Method>" and
// tags them with the request id, the gRPC status and, from the reply, the
// run id and transmitter state. A server span is created when the otelgrpc
// stats handler has not installed one. A nil tp uses the global provider.
func TracingUnaryServerInterceptor(tp trace.TracerProvider) grpc.UnaryServerInterceptor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		spanName := "control." + method
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(spanName)
		}

		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		)
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			span.SetAttributes(observability.AttrRequestID.String(reqID))
		}

		resp, err := handler(ctx, req)
		span.SetAttributes(attribute.String("rpc.grpc.status_code", status.Code(err).String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Convert(err).Message())
		} else if reply, ok := resp.(*structpb.Struct); ok {
			span.SetAttributes(replyAttributes(reply)...)
		}

		if created {
			span.End()
		}
		return resp, err
	}
}

func replyAttributes(reply *structpb.Struct) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	f := reply.GetFields()
	if v := f["run_id"].GetStringValue(); v != "" {
		attrs = append(attrs, observability.AttrRunID.String(v))
	}
	if v := f["state"].GetStringValue(); v != "" {
		attrs = append(attrs, observability.AttrState.String(v))
	}
	return attrs
}
