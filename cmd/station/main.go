// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/eink_station/internal/app"
	"github.com/relabs-tech/eink_station/internal/config"
)

func main() {
	configPath := flag.String("config", "eink_station_config.txt", "configuration file, empty for defaults")
	flag.Parse()

	log.Println("starting eink station")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunStation(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
