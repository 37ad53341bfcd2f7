package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:  "~/.sitebot",
			LogLevel: "info",
		},
		Engine: EngineConfig{
			FallbackThreshold:     0.6,
			ClarifyThreshold:      0.55,
			MaxConcurrentMessages: 3,
			AutoRegister:          true,
		},
		AI: AIConfig{
			Enabled:        false,
			APIBase:        "http://localhost:11434",
			Model:          "llama3.1:8b",
			TimeoutSeconds: 5,
			MinConfidence:  0.4,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Storage: StorageConfig{
			DBPath: "~/.sitebot/sitebot.db",
		},
		Lexicon: LexiconConfig{},
	}
}
