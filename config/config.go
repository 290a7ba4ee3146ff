// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig holds every environment-sourced setting the bridge needs.
type AppConfig struct {
	Port            string `mapstructure:"PORT" validate:"required"`
	BridgeSecret    string `mapstructure:"AUDIO_BRIDGE_SECRET" validate:"required"`
	PublicURL       string `mapstructure:"BRIDGE_PUBLIC_URL" validate:"required"`
	CallbackBaseURL string `mapstructure:"CALLBACK_BASE_URL"`

	CarrierProvider     string `mapstructure:"CARRIER_PROVIDER" validate:"required,oneof=twilio vonage"`
	CarrierAPIKey       string `mapstructure:"CARRIER_API_KEY" validate:"required"`
	CarrierAPISecret    string `mapstructure:"CARRIER_API_SECRET"`
	CarrierConnectionID string `mapstructure:"CARRIER_CONNECTION_ID"`
	CarrierFromNumber   string `mapstructure:"CARRIER_FROM_NUMBER" validate:"required"`
	CarrierL16BigEndian bool   `mapstructure:"CARRIER_L16_BIG_ENDIAN"`

	VoiceModelAPIKey string `mapstructure:"VOICE_MODEL_API_KEY" validate:"required"`
	VoiceModelName   string `mapstructure:"VOICE_MODEL_NAME"`
	SummaryModelName string `mapstructure:"SUMMARY_MODEL_NAME"`
	VoiceName        string `mapstructure:"VOICE_NAME"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

func setDefault(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CARRIER_PROVIDER", "twilio")
	v.SetDefault("VOICE_MODEL_NAME", "gemini-2.0-flash-live-001")
	v.SetDefault("SUMMARY_MODEL_NAME", "gemini-2.0-flash")
	v.SetDefault("VOICE_NAME", "Puck")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CARRIER_L16_BIG_ENDIAN", false)
}

// InitConfig loads configuration from the environment (and an optional .env
// file), validates it, and returns the resolved AppConfig.
func InitConfig() (*AppConfig, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	setDefault(v)

	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	// AutomaticEnv alone does not make Unmarshal see variables that have no
	// default or config-file entry, so bind those keys explicitly.
	for _, key := range []string{
		"AUDIO_BRIDGE_SECRET", "BRIDGE_PUBLIC_URL", "CALLBACK_BASE_URL",
		"CARRIER_API_KEY", "CARRIER_API_SECRET", "CARRIER_CONNECTION_ID",
		"CARRIER_FROM_NUMBER", "VOICE_MODEL_API_KEY", "LOG_FILE",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
