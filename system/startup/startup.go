package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/smartcrop/sensor-node/internal/env"
	"github.com/smartcrop/sensor-node/internal/gpio"
	"github.com/smartcrop/sensor-node/internal/pinctrl"
	"github.com/smartcrop/sensor-node/internal/power"
)

// WriteStartupScript writes a boot script that powers every sensor rail and holds the
// LED lines off before the node service starts.
func WriteStartupScript() error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Sensor node GPIO configuration at boot", "")

	write := func(label string, r power.Rail, on bool) {
		lines = append(lines, fmt.Sprintf("# %s", label))
		lines = append(lines, pinctrl.Command(r.Pin.Number, gpio.Options(r.Pin, on)...))
		lines = append(lines, "")
	}

	rails, leds := power.RailsFor(env.Cfg)
	for _, r := range rails {
		write(r.Name, r, true)
		// sensors power up one after another, as the node itself does
		lines = append(lines, fmt.Sprintf("sleep %.3f", env.Cfg.Power.Settle.Seconds()), "")
	}
	for _, r := range leds {
		write(r.Name, r, false)
	}

	contents := strings.Join(lines, "\n") + "\n"
	if err := os.MkdirAll(filepath.Dir(env.Cfg.System.BootScript), 0755); err != nil {
		return err
	}
	return os.WriteFile(env.Cfg.System.BootScript, []byte(contents), 0755)
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Power sensor rails at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.System.BootScript)

	return os.WriteFile(env.Cfg.System.BootService, []byte(unitContents), 0644)
}

func RunStartupScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.System.BootScript)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// InstallNodeService writes the unit for the node itself, ordered after the pin unit.
func InstallNodeService() error {
	pinUnitName := filepath.Base(env.Cfg.System.BootService)
	sys := env.Cfg.System

	unit := fmt.Sprintf(`[Unit]
Description=Sensor node acquisition service
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, pinUnitName, pinUnitName, sys.User, sys.WorkDir, sys.ExecStart)

	return os.WriteFile(sys.MainService, []byte(unit), 0644)
}
