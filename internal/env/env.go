package env

import (
	"github.com/smartcrop/sensor-node/internal/config"
)

var Cfg *config.Config
