package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5433）

	JWTSecret string // JWT署名シークレット

	GoEnv string // dev/prod

	Currency       string // 通貨コード（COP）
	TaxRatePercent int64  // 税率（%・整数）
	ShippingCost   int64  // 送料（固定・整数）

	ShippingCarrier      string // 配送業者名
	ShippingDeliveryDays int    // 到着予定までの日数

	PayUAPIKey     string // ゲートウェイの署名キー
	PayUMerchantID string // ゲートウェイのマーチャントID
	// trueならEXPIRED/ABANDONED通知でも注文をキャンセルする
	PayUCancelUnapproved bool

	// 通知配信先ブローカー。空ならpollerを起動しない。
	KafkaBrokers []string
}

// Loadは環境変数から設定を読む
func Load() (Config, error) {
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: os.Getenv("PORT"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: os.Getenv("GO_ENV"),

		Currency:       envOr("CURRENCY", "COP"),
		TaxRatePercent: envInt64Or("TAX_RATE_PERCENT", 19),
		ShippingCost:   envInt64Or("SHIPPING_COST", 15000),

		ShippingCarrier:      envOr("SHIPPING_CARRIER", "Servientrega"),
		ShippingDeliveryDays: int(envInt64Or("SHIPPING_DELIVERY_DAYS", 5)),

		PayUAPIKey:           os.Getenv("PAYU_API_KEY"),
		PayUMerchantID:       os.Getenv("PAYU_MERCHANT_ID"),
		PayUCancelUnapproved: envBool("PAYU_CANCEL_UNAPPROVED", true),

		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.PostgresUser == "" {
		return Config{}, fmt.Errorf("POSTGRES_USER is required")
	}
	if cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if cfg.PostgresDB == "" {
		return Config{}, fmt.Errorf("POSTGRES_DB is required")
	}
	if cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("POSTGRES_HOST is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.PayUAPIKey == "" {
		return Config{}, fmt.Errorf("PAYU_API_KEY is required")
	}
	if cfg.PayUMerchantID == "" {
		return Config{}, fmt.Errorf("PAYU_MERCHANT_ID is required")
	}
	if cfg.TaxRatePercent < 0 || cfg.ShippingCost < 0 {
		return Config{}, fmt.Errorf("TAX_RATE_PERCENT and SHIPPING_COST must be non-negative")
	}
	if cfg.ShippingDeliveryDays <= 0 {
		return Config{}, fmt.Errorf("SHIPPING_DELIVERY_DAYS must be positive")
	}

	return cfg, nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func envOr(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64Or(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	default:
		return def
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
