package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied live; anything
// else sets RequiresRestart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MaxUploadChanged bool
	NewMaxUploadMB   int

	RecentLimitChanged bool
	NewRecentLimit     int

	// RequiresRestart is true when storage, provider, or listener settings
	// changed. Those are bound at startup and cannot be swapped live.
	RequiresRestart bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.MaxUploadMB != new.Server.MaxUploadMB {
		d.MaxUploadChanged = true
		d.NewMaxUploadMB = new.Server.MaxUploadMB
	}
	if old.History.RecentLimit != new.History.RecentLimit {
		d.RecentLimitChanged = true
		d.NewRecentLimit = new.History.RecentLimit
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RequiresRestart = true
	}
	if tlsChanged(old.Server.TLS, new.Server.TLS) {
		d.RequiresRestart = true
	}
	if old.Storage != new.Storage {
		d.RequiresRestart = true
	}
	if providerChanged(old.Providers.Vision, new.Providers.Vision) ||
		providerChanged(old.Providers.Speech, new.Providers.Speech) ||
		providerChanged(old.Providers.Player, new.Providers.Player) {
		d.RequiresRestart = true
	}
	if old.History.PostgresDSN != new.History.PostgresDSN {
		d.RequiresRestart = true
	}
	if old.Alert != new.Alert {
		d.RequiresRestart = true
	}

	return d
}

// providerChanged compares the bound fields of two provider entries.
// Options maps are not comparable and are ignored; changing them alone
// does not trigger a restart flag.
func providerChanged(old, new ProviderEntry) bool {
	return old.Name != new.Name ||
		old.APIKey != new.APIKey ||
		old.CredentialsFile != new.CredentialsFile ||
		old.Model != new.Model
}

func tlsChanged(old, new *TLSConfig) bool {
	if (old == nil) != (new == nil) {
		return true
	}
	if old == nil {
		return false
	}
	return *old != *new
}
