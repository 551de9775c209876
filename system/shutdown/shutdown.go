package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/env"
	"github.com/smartcrop/sensor-node/internal/power"
)

// Shutdown powers every sensor rail down. In safe mode the pins are left untouched.
func Shutdown(pm *power.Manager) {
	if env.Cfg != nil && env.Cfg.SafeMode {
		log.Info().Msg("Safe mode, leaving sensor rails as they are")
		return
	}
	pm.Off()
	log.Info().Msg("Sensor rails deactivated")
}

func ShutdownWithError(pm *power.Manager, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(pm)
	os.Exit(1)
}
