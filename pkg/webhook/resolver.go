package webhook

import (
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"tradebot/pkg/config"
)

const (
	DefaultServiceName = "tradeai-companion"
	DefaultPath        = "/webhook"

	SourceExplicit = "WEBHOOK_URL"
	SourceExternal = "RENDER_EXTERNAL_URL"
	SourceFallback = "fallback"

	securePrefix = "https://"
)

// Config is the resolved webhook registration. It is derived fresh on every
// start and never persisted.
type Config struct {
	URL                string
	DropPendingUpdates bool
	AllowedUpdates     []string
	SecretToken        string
	Source             string
}

// Path returns the URL path the receiver must listen on.
func (c Config) Path() string {
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Path == "" {
		return DefaultPath
	}

	return parsed.Path
}

// Resolve picks the callback URL from the layered signals in src: an explicit
// URL, then the external base URL plus /webhook, then the hosting platform
// default for the service name. A non-https URL is accepted with a warning.
func Resolve(src config.WebhookConfig, log *slog.Logger) Config {
	if log == nil {
		log = slog.Default()
	}

	cfg := Config{
		DropPendingUpdates: src.DropPending(),
		AllowedUpdates:     slices.Clone(src.AllowedUpdates),
		SecretToken:        strings.TrimSpace(src.SecretToken),
	}

	switch {
	case strings.TrimSpace(src.URL) != "":
		cfg.URL = strings.TrimSpace(src.URL)
		cfg.Source = SourceExplicit
	case strings.TrimSpace(src.ExternalURL) != "":
		cfg.URL = strings.TrimRight(strings.TrimSpace(src.ExternalURL), "/") + DefaultPath
		cfg.Source = SourceExternal
	default:
		service := strings.TrimSpace(src.ServiceName)
		if service == "" {
			service = DefaultServiceName
		}
		cfg.URL = securePrefix + service + ".onrender.com" + DefaultPath
		cfg.Source = SourceFallback
	}

	if !strings.HasPrefix(cfg.URL, securePrefix) {
		log.Warn("Webhook URL should use HTTPS", "url", cfg.URL, "source", cfg.Source)
	}

	log.Info("Webhook URL resolved", "url", cfg.URL, "source", cfg.Source, "drop_pending_updates", cfg.DropPendingUpdates)
	return cfg
}
