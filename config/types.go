package config

// Auth configures bearer-token verification. The HMAC secret is read from the
// environment variable named by HSSecretEnv, never from the file.
type Auth struct {
	Issuer      string `toml:"Issuer"`
	Audience    string `toml:"Audience"`
	HSSecretEnv string `toml:"HSSecretEnv"`
}

// RateLimit bounds requests per caller.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}
