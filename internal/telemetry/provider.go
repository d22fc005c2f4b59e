package telemetry

import (
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ProviderConfig configures the OpenTelemetry metrics SDK for this process.
type ProviderConfig struct {
	// ServiceName is not read by InitMeterProvider; the meter provider uses
	// the SDK's default resource.
	ServiceName string
}

// InitMeterProvider builds a MeterProvider with a Prometheus exporter bridge,
// grounded on the teacher's observe.InitProvider. The agent has no HTTP
// server in scope (spec.md Non-goals exclude network-server deployment), so
// the exporter registers with the Prometheus default registerer and no HTTP
// handler serves it.
func InitMeterProvider(cfg ProviderConfig) (*sdkmetric.MeterProvider, error) {
	exp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)), nil
}
