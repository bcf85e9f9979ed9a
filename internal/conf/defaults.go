// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("busbell.modelpath", "model/bell_model.tflite")
	viper.SetDefault("busbell.labelpath", "model/labels.txt")
	viper.SetDefault("busbell.targetclass", "bell")
	viper.SetDefault("busbell.threshold", 0.9)
	viper.SetDefault("busbell.threads", 0)

	viper.SetDefault("audio.source", "sysdefault")
	viper.SetDefault("audio.samplerate", 22050)
	viper.SetDefault("audio.windowsec", 1.0)
	viper.SetDefault("audio.fftsize", 2048)
	viper.SetDefault("audio.hoplength", 512)
	viper.SetDefault("audio.numcoefficients", 13)
	viper.SetDefault("audio.nummelbands", 26)

	viper.SetDefault("realtime.log.enabled", true)
	viper.SetDefault("realtime.log.path", "log/detections.log")
	viper.SetDefault("realtime.telemetry.enabled", false)
	viper.SetDefault("realtime.telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("server.listen", "0.0.0.0:8000")
	viper.SetDefault("server.uploadpath", "uploads")
	viper.SetDefault("server.maxuploadmb", 32)
}
