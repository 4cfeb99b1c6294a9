package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by "***". Use it when logging or printing the active configuration so
// credentials never land in log output.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Database.DSN)
	redact(&out.Database.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhook)

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Session.Symbols != nil {
		out.Session.Symbols = append([]string(nil), cfg.Session.Symbols...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Contexts != nil {
		out.Contexts = append([]ContextConfig(nil), cfg.Contexts...)
	}

	return out
}

func redact(field *string) {
	if *field != "" {
		*field = "***"
	}
}
