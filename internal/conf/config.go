// config.go: settings struct and functions to load and save the BusBell-Go configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// BusBellSettings contains the classifier and decision rule configuration.
// The analysis parameters must match the values the model artifact was
// trained with, otherwise the shape check fails at startup.
type BusBellSettings struct {
	ModelPath   string  // path to TensorFlow Lite model file
	LabelPath   string  // path to class label file, one label per line
	TargetClass string  // class label that triggers a detection event
	Threshold   float64 // minimum confidence for a detection, 0.0-1.0
	Threads     int     // number of CPU threads for inference, 0 for all
}

// AudioSettings contains capture device and feature extraction parameters.
type AudioSettings struct {
	Source          string  // capture device name or ID, "sysdefault" for default
	SampleRate      int     // capture sample rate in Hz
	WindowSec       float64 // analysis window duration in seconds
	FFTSize         int     // FFT window size in samples
	HopLength       int     // stride between analysis frames in samples
	NumCoefficients int     // number of cepstral coefficients per frame
	NumMelBands     int     // mel filterbank size used before the DCT
}

// RealtimeSettings contains settings for realtime detection mode.
type RealtimeSettings struct {
	Log struct {
		Enabled bool   // true to log detections to a file
		Path    string // path to detection log file
	}
	Telemetry struct {
		Enabled bool   // true to expose prometheus metrics
		Listen  string // address to listen on, e.g. "0.0.0.0:8090"
	}
}

// ServerSettings contains settings for the audio upload service.
type ServerSettings struct {
	Listen      string // address to listen on
	UploadPath  string // directory where uploaded audio files are stored
	MaxUploadMB int64  // maximum accepted upload size in megabytes
}

// Settings is the top level configuration struct.
type Settings struct {
	Debug bool // true to enable debug output

	BusBell  BusBellSettings
	Audio    AudioSettings
	Realtime RealtimeSettings
	Server   ServerSettings

	// InputFile is a runtime value set by the file subcommand, not persisted.
	InputFile string `yaml:"-"`
}

var (
	settingsInstance *Settings
	once             sync.Once
)

// WindowSamples returns the exact number of samples in one analysis window.
func (s *Settings) WindowSamples() int {
	return int(float64(s.Audio.SampleRate) * s.Audio.WindowSec)
}

// Load reads the configuration into a Settings struct, creating a default
// config file if none exists in any of the standard paths.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets defaults, locates the config file and reads it.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("busbell")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found, create one from the defaults.
		return createDefaultConfig(configPaths[0])
	}

	return nil
}

// createDefaultConfig writes the default settings as a yaml file so the user
// has something to edit on first run.
func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	defaults := &Settings{}
	if err := viper.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	log.Printf("Created default config file at %s", configFile)
	viper.SetConfigFile(configFile)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the ordered list of directories searched for
// the config file: current directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return []string{"."}, nil //nolint:nilerr // fall back to cwd only
	}
	return []string{".", filepath.Join(configDir, "busbell")}, nil
}

// Setting returns the process wide settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			var err error
			settingsInstance, err = Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return settingsInstance
}
