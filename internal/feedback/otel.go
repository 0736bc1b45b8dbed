package feedback

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/interactive-markers/internal/feedback"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
