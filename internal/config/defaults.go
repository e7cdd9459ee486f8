package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.GitHub.Owner == "" {
		cfg.GitHub.Owner = "octmarker"
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = "ai-news-bot-web-tracker"
	}
	if cfg.GitHub.BaseURL == "" {
		cfg.GitHub.BaseURL = "https://api.github.com"
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = "gpt-4o-mini"
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = 10
	}
	if cfg.Fetch.MaxContentChars == 0 {
		cfg.Fetch.MaxContentChars = 5000
	}
	if cfg.Paths.ClicksFile == "" {
		cfg.Paths.ClicksFile = "data/user_clicks.json"
	}
	if cfg.Paths.PreferencesFile == "" {
		cfg.Paths.PreferencesFile = "user_preferences.json"
	}
	if cfg.Paths.SummariesDir == "" {
		cfg.Paths.SummariesDir = "data/summaries"
	}
	if cfg.Paths.CollectorDB == "" {
		cfg.Paths.CollectorDB = "./data/collector.db"
	}
}
