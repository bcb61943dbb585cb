package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DBHost     string `validate:"required"`
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string `validate:"required,numeric"`
	AppEnv     string
	AppURL     string `validate:"required,url"`

	SessionSecret string `validate:"required,min=16"`

	PaymentEnabled bool
	PaymentGateway string `validate:"oneof=xendit midtrans demo"`
	PaymentPrice   int    `validate:"gt=0"`

	XenditSecretKey      string
	XenditCallbackToken  string
	MidtransServerKey    string
	MidtransIsProduction bool

	CloudConvertAPIKey  string
	CloudConvertSandbox bool

	TempDir string `validate:"required"`
}

var validate = validator.New()

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_URL", "http://localhost:8080")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("PAYMENT_ENABLED", true)
	v.SetDefault("PAYMENT_GATEWAY", "demo")
	v.SetDefault("PAYMENT_PRICE", 500)
	v.SetDefault("MIDTRANS_IS_PRODUCTION", false)
	v.SetDefault("CLOUDCONVERT_SANDBOX", false)
	v.SetDefault("TEMP_DIR", "storage/temp")
	return v
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	cfg := &Config{
		DBHost:     v.GetString("DB_HOST"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBPort:     v.GetString("DB_PORT"),
		AppPort:    v.GetString("APP_PORT"),
		AppEnv:     v.GetString("APP_ENV"),
		AppURL:     strings.TrimRight(v.GetString("APP_URL"), "/"),

		SessionSecret: v.GetString("SESSION_SECRET"),

		PaymentEnabled: v.GetBool("PAYMENT_ENABLED"),
		PaymentGateway: strings.ToLower(v.GetString("PAYMENT_GATEWAY")),
		PaymentPrice:   v.GetInt("PAYMENT_PRICE"),

		XenditSecretKey:      v.GetString("XENDIT_SECRET_KEY"),
		XenditCallbackToken:  v.GetString("XENDIT_CALLBACK_TOKEN"),
		MidtransServerKey:    v.GetString("MIDTRANS_SERVER_KEY"),
		MidtransIsProduction: v.GetBool("MIDTRANS_IS_PRODUCTION"),

		CloudConvertAPIKey:  v.GetString("CLOUDCONVERT_API_KEY"),
		CloudConvertSandbox: v.GetBool("CLOUDCONVERT_SANDBOX"),

		TempDir: v.GetString("TEMP_DIR"),
	}

	switch cfg.PaymentGateway {
	case "xendit", "midtrans":
	default:
		cfg.PaymentGateway = "demo"
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}
