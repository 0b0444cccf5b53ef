package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Load reads the optional dotenv files into the process environment and then
// parses the environment into cfg, which must be a pointer to a struct with
// `env` tags. Values already present in the environment win over the files.
func Load(cfg any, files ...string) (loadedDotenv bool, err error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loadedDotenv = true
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("load dotenv: %w", err)
		}
		loadedDotenv = false
	}

	if err := env.Parse(cfg); err != nil {
		return loadedDotenv, fmt.Errorf("parse config: %w", err)
	}
	return loadedDotenv, nil
}
