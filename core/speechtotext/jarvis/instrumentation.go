package jarvis

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/PratyushRao/JARVIS/core/speechtotext/jarvis"

var tracer = otel.Tracer(scopeName)
