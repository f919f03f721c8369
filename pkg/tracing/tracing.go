package tracing

import (
	"fmt"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"

	"overnight_bot/pkg/logger"
)

var serviceName = "default"

// SetServiceName задаёт имя сервиса до InitTracer.
func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName
	return oldName
}

type Config struct {
	Host string
	Port int
}

// InitTracer поднимает jaeger-трейсер и ставит его глобальным.
// Возвращённый closer вызывать при остановке приложения.
func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, func() {
		if err := closer.Close(); err != nil {
			logger.Error("Error closing Jaeger tracer: %v", err)
		}
	}, nil
}
