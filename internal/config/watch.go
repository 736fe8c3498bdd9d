package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sweeney/study-station/internal/logic"
)

// WatchAir watches the config file used by v and calls fn with the new
// air-quality settings after every edit that still validates. Other
// settings require a restart.
func WatchAir(v *viper.Viper, fn func(logic.AlarmConfig)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		reloadAir(v, e, fn)
	})
	v.WatchConfig()
}

func reloadAir(v *viper.Viper, e fsnotify.Event, fn func(logic.AlarmConfig)) bool {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return false
	}
	c, err := Decode(v)
	if err != nil {
		log.Printf("config: ignoring edit of %s: %v", e.Name, err)
		return false
	}
	log.Printf("config: reloaded air thresholds warning=%.0f critical=%.0f", c.Air.Warning, c.Air.Critical)
	fn(c.AlarmConfig())
	return true
}
