package stream

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("choukidar/go-coord/stream")
