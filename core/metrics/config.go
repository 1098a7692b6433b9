package metrics

// Config selects and configures the metrics sinks.
type Config struct {
	Prometheus PrometheusConfig `json:"prometheus"`
	Influx     InfluxConfig     `json:"influx"`
}

// PrometheusConfig configures the Prometheus sink and its scrape endpoint.
type PrometheusConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 2112
	}
}
