package config

// Defaults returns the configuration baseline. Loading merges the file over
// these values, so a minimal config only has to set credentials and streams.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			BotID:    "barfly",
			LogLevel: "info",
		},
		Log: LogConfig{
			Addr:                   "localhost:6379",
			Streams:                []string{"barfly:inbound:0"},
			MaxMessageAgeSeconds:   300,
			ClockSkewBufferSeconds: 30,
			QueueSize:              256,
		},
		Limits: LimitsConfig{
			MaxPerWindow:    10,
			WindowSeconds:   60,
			CooldownSeconds: 5,
		},
		Dedup: DedupConfig{
			Capacity:         1000,
			RetentionSeconds: 3600,
		},
		Backend: BackendConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			MaxTokens:      400,
			Temperature:    0.7,
			TimeoutSeconds: 20,
		},
		Knowledge: KnowledgeConfig{
			CacheTTLSeconds: 300,
			TimeoutSeconds:  4,
		},
		Store: StoreConfig{
			DBPath:       "~/.barfly/barfly.db",
			HistoryLimit: 10,
		},
		Gateway: GatewayConfig{
			Kind: "telegram",
			Telegram: TelegramConfig{
				ParseMode: "Markdown",
			},
		},
		Delivery: DeliveryConfig{
			MaxAttempts:      3,
			BaseDelaySeconds: 2,
			MaxDelaySeconds:  15,
			MaxChars:         900,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9091",
		},
	}
}
