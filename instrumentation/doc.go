// Package instrumentation wires OpenTelemetry metrics and traces for the
// extension OAuth server.
//
// When Config.Enabled is false every provider is a no-op and recording costs
// nothing. When enabled, the SDK meter and tracer providers are used; with
// MetricsExporter set to "prometheus" the meter provider feeds a private
// Prometheus registry served by PrometheusHandler:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:     "extension-oauth",
//	    Enabled:         true,
//	    MetricsExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//	    return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.PrometheusHandler())
//
// Metric and span attributes carry client ids, grant types and outcomes. They
// never carry codes, tokens or secrets; client IPs are attached only when
// Config.LogClientIPs is set.
package instrumentation
