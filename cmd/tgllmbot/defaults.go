package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 8)

	viper.SetDefault("llm.request_timeout", 90*time.Second)

	viper.SetDefault("session.history_cap", 20)

	viper.SetDefault("webhook.listen", ":8080")

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
