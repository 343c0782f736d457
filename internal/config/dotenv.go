package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DotEnvLoader adds .env file support on top of Loader, following
// pkg/config/dotenv.go's DotEnvLoader.
type DotEnvLoader struct {
	*Loader
	envFiles []string
}

// NewDotEnvLoader constructs a loader that overlays envFiles (default
// ".env") onto the process environment before reading it.
func NewDotEnvLoader(envFiles ...string) Provider {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &DotEnvLoader{Loader: &Loader{envLoader: &OSEnvLoader{}}, envFiles: envFiles}
}

// NewDotEnvLoaderWithEnv is NewDotEnvLoader with a custom EnvLoader, for tests.
func NewDotEnvLoaderWithEnv(envLoader EnvLoader, envFiles ...string) Provider {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &DotEnvLoader{Loader: &Loader{envLoader: envLoader}, envFiles: envFiles}
}

// Load overlays any existing .env file(s) onto the environment, then
// delegates to LoadFromEnv.
func (d *DotEnvLoader) Load() (*Config, error) {
	var existing []string
	for _, f := range d.envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) > 0 {
		if err := godotenv.Overload(existing...); err != nil {
			path := existing[0]
			if len(existing) > 1 {
				path = "multiple files: " + strings.Join(existing, ", ")
			}
			return nil, NewEnvFileError(path, err)
		}
	}

	return d.LoadFromEnv()
}

// EnvFileError wraps a failure parsing a .env file.
type EnvFileError struct {
	FilePath string
	Err      error
}

func NewEnvFileError(filePath string, err error) *EnvFileError {
	return &EnvFileError{FilePath: filePath, Err: err}
}

func (e *EnvFileError) Error() string {
	return "failed to load .env file '" + e.FilePath + "': " + e.Err.Error()
}

func (e *EnvFileError) Unwrap() error { return e.Err }

// LoadWithEnvFile loads configuration with .env file support.
func LoadWithEnvFile(envFiles ...string) (*Config, error) {
	return NewDotEnvLoader(envFiles...).Load()
}
