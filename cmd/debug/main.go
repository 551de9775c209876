package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/smartcrop/sensor-node/db"
	"github.com/smartcrop/sensor-node/internal/config"
	"github.com/smartcrop/sensor-node/internal/env"
	"github.com/smartcrop/sensor-node/internal/export"
	"github.com/smartcrop/sensor-node/internal/gpio"
	"github.com/smartcrop/sensor-node/internal/pinctrl"
	"github.com/smartcrop/sensor-node/internal/power"
	"github.com/smartcrop/sensor-node/internal/scheduler"
	"github.com/smartcrop/sensor-node/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, configFile, out string
	var limit int
	var stagger time.Duration
	flag.StringVar(&dbPath, "db", "data/sensor-node.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: recent, export-xlsx, next-cycle, pins, write-boot-script, run-boot-script, install-service")
	flag.StringVar(&configFile, "config-file", "config.yaml", "Node config file for boot commands")
	flag.StringVar(&out, "out", "data/export.xlsx", "Output workbook for export-xlsx")
	flag.IntVar(&limit, "limit", 10, "Number of snapshots for recent and export-xlsx")
	flag.DurationVar(&stagger, "stagger", 20*time.Minute, "Stagger interval for next-cycle")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of sensor-node-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/sensor-node.db')")
		fmt.Println("  -cmd string\tCommand to run: recent, export-xlsx, next-cycle, pins, write-boot-script, run-boot-script, install-service")
		fmt.Println("  -config-file string\tNode config file for boot commands (default 'config.yaml')")
		fmt.Println("  -out string\tOutput workbook for export-xlsx")
		fmt.Println("  -limit int\tNumber of snapshots for recent and export-xlsx")
		fmt.Println("  -stagger duration\tStagger interval for next-cycle")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "recent":
		err = printRecent(dbPath, limit)
	case "export-xlsx":
		err = exportXLSX(dbPath, out, limit)
	case "next-cycle":
		now := time.Now()
		next := scheduler.NextBoundary(now, stagger)
		fmt.Printf("Next cycle at %s (in %s)\n", next.Format(time.RFC3339), next.Sub(now).Round(time.Second))
	case "pins":
		if err = loadConfig(configFile); err == nil {
			err = printPins()
		}
	case "write-boot-script":
		if err = loadConfig(configFile); err == nil {
			err = startup.WriteStartupScript()
		}
	case "run-boot-script":
		if err = loadConfig(configFile); err == nil {
			err = startup.RunStartupScript()
		}
	case "install-service":
		if err = loadConfig(configFile); err == nil {
			if err = startup.InstallStartupService(); err == nil {
				err = startup.InstallNodeService()
			}
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func loadConfig(path string) (err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	cfg := config.Parse(data)
	env.Cfg = &cfg
	return nil
}

func printRecent(dbPath string, limit int) error {
	snaps, err := db.RecentSnapshotsCLI(dbPath, limit)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		b, err := json.Marshal(snap.Data())
		if err != nil {
			return err
		}
		fmt.Printf("%s node=%d %s\n", snap.Timestamp.Format(time.RFC3339), snap.Node, b)
	}
	return nil
}

func exportXLSX(dbPath, out string, limit int) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	n, err := export.FromDB(conn, out, limit)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d snapshots to %s\n", n, out)
	return nil
}

// printPins reports the live state of every configured rail and LED line.
func printPins() error {
	rails, leds := power.RailsFor(env.Cfg)
	for _, r := range append(rails, leds...) {
		state, err := pinctrl.ReadPin(r.Pin.Number)
		if err != nil {
			return err
		}
		active, err := gpio.CurrentlyActive(r.Pin)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s GPIO%-3d mode=%s drive=%s level=%s active=%v\n",
			r.Name, r.Pin.Number, state.Mode, state.Drive, state.Level, active)
	}
	return nil
}
