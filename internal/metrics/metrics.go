package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/Skufu/triage/internal/logger"
	"github.com/rs/zerolog/log"
)

const (
	AnalyzeLatency    = "triage.analyze.latency"
	AnalyzeCount      = "triage.analyze.count"
	AttributionCount  = "triage.attribution.count"
	RedFlagCount      = "triage.redflag.count"
	APIRequestCount   = "triage.api.request.count"
	APIRequestLatency = "triage.api.request.latency"
)

var (
	// It is safe to use one Client from multiple goroutines simultaneously
	statsDClient statsd.ClientInterface = getDefaultClient()

	samplingRate = 1.0
)

// Options configure the statsd client.
type Options struct {
	Host         string
	Port         string
	SamplingRate float64
	Env          string
	Service      string
}

func InitMetrics(opts Options) {
	address := opts.Host + ":" + opts.Port
	globalTags := []string{"env:" + opts.Env, "service:" + opts.Service}
	client, err := statsd.New(address, statsd.WithTags(globalTags))
	if err != nil {
		// Telegraf is often absent locally; keep the default client.
		logger.Error("StatsD client initialization failed, metrics will be unavailable", err)
		return
	}
	statsDClient = client
	samplingRate = opts.SamplingRate
	logger.Info(fmt.Sprintf("Metrics client initialized with telegraf address - %s, global tags - %v, and sampling rate - %f",
		address, globalTags, samplingRate))
}

func getDefaultClient() statsd.ClientInterface {
	client, err := statsd.New("localhost:8125")
	if err != nil {
		return &statsd.NoOpClient{}
	}
	return client
}

func Timing(name string, value time.Duration, tags []string) {
	if err := statsDClient.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

func Count(name string, value int64, tags []string) {
	if err := statsDClient.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

// Tag formats a key:value statsd tag.
func Tag(key, value string) string {
	return key + ":" + value
}
