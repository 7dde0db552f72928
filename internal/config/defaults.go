package config

func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Modmail: ModmailConfig{
			NotePrefix: "#",
		},
		Commands: CommandsConfig{
			Prefix:         "!jira",
			TicketURL:      "https://bugs.mojang.com/browse/%s",
			LinkBurst:      5,
			LinksPerMinute: 20,
		},
		Storage: StorageConfig{
			Enabled: true,
			DBPath:  "~/.triagebot/triagebot.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}
