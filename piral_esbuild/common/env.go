package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env variants in Vite priority order and returns
// defines for variables matching the prefix.
// Priority: .env < .env.local < .env.[mode] < .env.[mode].local
func LoadEnvFiles(basePath, mode, prefix string) (map[string]string, error) {
	variants := []string{
		basePath,
		basePath + ".local",
		basePath + "." + mode,
		basePath + "." + mode + ".local",
	}

	result := make(map[string]string)
	for _, path := range variants {
		vars, err := godotenv.Read(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for key, value := range vars {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			// {"import.meta.env.PIRAL_API_URL": `"https://..."`}
			result["import.meta.env."+key] = Quote(value)
		}
	}
	return result, nil
}
