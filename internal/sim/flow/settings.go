package flow

import "time"

// Settings are the runtime-tunable scalars read at the start of every tick.
type Settings struct {
	Enabled           bool
	CollectRadius     float64
	ForwardRadius     float64 // 0 = no distance limit on the forward target
	CollectMaxPerItem int     // 0 = unlimited
	ForwardMaxPerItem int     // 0 = unlimited
	Interval          time.Duration
	IncludeMinables   bool
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		CollectRadius:   50,
		ForwardRadius:   50,
		Interval:        5 * time.Second,
		IncludeMinables: true,
	}
}

// SettingsFunc supplies the current settings.
type SettingsFunc func() Settings

func Static(s Settings) SettingsFunc { return func() Settings { return s } }
