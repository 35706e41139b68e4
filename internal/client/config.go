package client

import (
	"time"

	"github.com/spf13/viper"
	"nuha.dev/gpsview/internal/channel"
)

type Config struct {
	LiveURL    string
	LogURL     string
	CommandURL string
	AnswerURL  string
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int

	NatsURL     string
	NatsSubject string

	// Dial overrides the websocket transport; tests inject a fake.
	Dial channel.DialFunc
}

// ConfigFromViper reads the client configuration with the documented
// defaults already registered, so env overrides work out of the box.
func ConfigFromViper() Config {
	viper.SetDefault("live_url", "ws://localhost:8000/ws/gps")
	viper.SetDefault("log_url", "ws://localhost:8000/ws/logs")
	viper.SetDefault("command_url", "ws://localhost:8000/ws/requests")
	viper.SetDefault("answer_url", "ws://localhost:8000/ws/responses")
	viper.SetDefault("base_delay", 5*time.Second)
	viper.SetDefault("max_delay", 60*time.Second)
	viper.SetDefault("max_retries", 10)
	viper.SetDefault("nats_url", "")
	viper.SetDefault("nats_subject", "gpsview.merged")

	return Config{
		LiveURL:     viper.GetString("live_url"),
		LogURL:      viper.GetString("log_url"),
		CommandURL:  viper.GetString("command_url"),
		AnswerURL:   viper.GetString("answer_url"),
		BaseDelay:   viper.GetDuration("base_delay"),
		MaxDelay:    viper.GetDuration("max_delay"),
		MaxRetries:  viper.GetInt("max_retries"),
		NatsURL:     viper.GetString("nats_url"),
		NatsSubject: viper.GetString("nats_subject"),
	}
}
