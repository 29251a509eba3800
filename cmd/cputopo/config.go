// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/thediveo/cputopo"
)

// Config is read from the environment, with an optional .env file in the
// working directory.
type Config struct {
	SysfsRoot    string `envconfig:"SYSFS_ROOT" default:"/sys/devices/system/cpu"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	BigCoresOnly bool   `envconfig:"BIG_CORES_ONLY" default:"false"`
}

const envPrefix = "CPUTOPO"

func loadConfig() (Config, error) {
	// a missing .env is fine.
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).With().Timestamp().Logger(), nil
}

// source returns the record source for the configuration: the platform
// source, except on Linux with a sysfs root other than the default one.
func (c Config) source() cputopo.RecordSource {
	if runtime.GOOS == "linux" && c.SysfsRoot != cputopo.DefaultSysfsRoot {
		return cputopo.NewSysfsSource(c.SysfsRoot)
	}
	return cputopo.PlatformSource()
}
