package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
//
// Only the bot token is required up front; every other option is validated
// by the component that depends on it, so e.g. a missing Cloudinary secret
// fails the image-upload operation with a descriptive error instead of
// preventing startup.
type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	// AdminChatID is the only Telegram user allowed to talk to the bot.
	// When empty the dispatcher fails closed and rejects everyone.
	AdminChatID string `mapstructure:"ADMIN_CHAT_ID"`

	MongoURI      string `mapstructure:"MONGODB_URI"`
	MongoDatabase string `mapstructure:"MONGODB_DATABASE"`

	CloudinaryCloudName string `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `mapstructure:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `mapstructure:"CLOUDINARY_API_SECRET"`

	ServerPort  string `mapstructure:"SERVER_PORT"`
	DedupDBPath string `mapstructure:"DEDUP_DB_PATH"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Allow reading from environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Viper only binds env vars it has seen; register every key so a
	// file-less, env-only deployment still populates the struct.
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID",
		"MONGODB_URI", "MONGODB_DATABASE",
		"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET",
		"SERVER_PORT", "DEDUP_DB_PATH",
	} {
		if err := viper.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("binding env var %s: %w", key, err)
		}
	}

	err = viper.ReadInConfig()
	if err != nil {
		// A missing config file is fine as long as env vars are set;
		// any other read error is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if config.TelegramBotToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if config.MongoDatabase == "" {
		config.MongoDatabase = "dramawallah"
	}
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.DedupDBPath == "" {
		config.DedupDBPath = "./dedup_data"
	}

	return config, nil
}
