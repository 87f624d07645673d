package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	HTTPPort    int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Gateway     GatewayConfig
	Pricing     PricingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	// Driver is "postgres" (default) or "memory" for local development.
	Driver string
	URL    string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL                 string
	SensorExchange      string
	SensorQueue         string
	SensorRoutingKey    string
	EventsExchange      string
	SlotStateRoutingKey string
	DLQQueue            string
	PrefetchCount       int
}

// GatewayConfig holds edge gateway settings
type GatewayConfig struct {
	CacheSize      int
	FlushInterval  time.Duration
	ForwardTimeout time.Duration
	// CentralURL is the base URL of the central server's occupancy
	// endpoint. When empty the gateway applies updates in-process.
	CentralURL string
	// RegionByLot is a static lot -> region partition. Lots missing
	// from the table fall back to DefaultRegion.
	RegionByLot   map[int64]string
	DefaultRegion string
	// PendingWarnThreshold triggers a log warning when the retry
	// queue grows past it. The queue itself is not bounded.
	PendingWarnThreshold int
}

// PricingConfig holds dynamic pricing settings
type PricingConfig struct {
	BasePricePerHour  float64
	PeakMultiplier    float64
	OffPeakMultiplier float64
	PeakHours         []HourRange
	MaxDailyPrice     float64
}

// HourRange is a half-open clock-hour interval [Start, End).
type HourRange struct {
	Start int
	End   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	peakHours, err := ParsePeakHours(getEnv("PEAK_HOURS", "7-10,16-19"))
	if err != nil {
		return nil, fmt.Errorf("invalid PEAK_HOURS: %w", err)
	}

	regionByLot, err := ParseRegionMap(getEnv("REGION_MAP", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid REGION_MAP: %w", err)
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "campus-parking"),
		HTTPPort:    getEnvAsInt("HTTP_PORT", 8080),
		Database: DatabaseConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                 getEnv("RABBITMQ_URL", ""),
			SensorExchange:      getEnv("RABBITMQ_SENSOR_EXCHANGE", "campus-parking.sensors.exchange"),
			SensorQueue:         getEnv("RABBITMQ_SENSOR_QUEUE", "campus-parking.sensors.queue"),
			SensorRoutingKey:    getEnv("RABBITMQ_SENSOR_ROUTING_KEY", "sensor.reading.raw"),
			EventsExchange:      getEnv("RABBITMQ_EVENTS_EXCHANGE", "campus-parking.events.exchange"),
			SlotStateRoutingKey: getEnv("RABBITMQ_SLOT_STATE_ROUTING_KEY", "slot.state.changed"),
			DLQQueue:            getEnv("RABBITMQ_DLQ_QUEUE", "campus-parking.sensors.dlq"),
			PrefetchCount:       getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Gateway: GatewayConfig{
			CacheSize:            getEnvAsInt("GATEWAY_CACHE_SIZE", 100),
			FlushInterval:        time.Duration(getEnvAsInt("GATEWAY_FLUSH_INTERVAL_SECONDS", 4)) * time.Second,
			ForwardTimeout:       time.Duration(getEnvAsInt("FORWARD_TIMEOUT_SECONDS", 5)) * time.Second,
			CentralURL:           getEnv("CENTRAL_URL", ""),
			RegionByLot:          regionByLot,
			DefaultRegion:        getEnv("DEFAULT_REGION", "campus"),
			PendingWarnThreshold: getEnvAsInt("GATEWAY_PENDING_WARN_THRESHOLD", 1000),
		},
		Pricing: PricingConfig{
			BasePricePerHour:  getEnvAsFloat("BASE_PRICE_PER_HOUR", 5.0),
			PeakMultiplier:    getEnvAsFloat("PEAK_HOUR_MULTIPLIER", 1.5),
			OffPeakMultiplier: getEnvAsFloat("OFF_PEAK_MULTIPLIER", 0.75),
			PeakHours:         peakHours,
			MaxDailyPrice:     getEnvAsFloat("MAX_DAILY_PRICE", 25.0),
		},
	}

	// Validate required fields
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "memory" {
		return nil, fmt.Errorf("STORE_DRIVER must be \"postgres\" or \"memory\", got %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Gateway.CacheSize < 1 {
		return nil, fmt.Errorf("GATEWAY_CACHE_SIZE must be at least 1")
	}
	if cfg.Pricing.BasePricePerHour <= 0 {
		return nil, fmt.Errorf("BASE_PRICE_PER_HOUR must be positive")
	}

	return cfg, nil
}

// ParsePeakHours parses a peak hour list such as "7-10,16-19" into
// half-open [start, end) intervals.
func ParsePeakHours(s string) ([]HourRange, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var ranges []HourRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("expected \"start-end\", got %q", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start hour in %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end hour in %q: %w", part, err)
		}
		if start < 0 || start > 23 || end < 0 || end > 24 || start >= end {
			return nil, fmt.Errorf("hour range %q out of bounds", part)
		}
		ranges = append(ranges, HourRange{Start: start, End: end})
	}
	return ranges, nil
}

// ParseRegionMap parses a lot -> region table such as
// "north=1,2,3;south=4,5".
func ParseRegionMap(s string) (map[int64]string, error) {
	table := make(map[int64]string)
	if strings.TrimSpace(s) == "" {
		return table, nil
	}

	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected \"region=lot,lot,...\", got %q", entry)
		}
		region := strings.TrimSpace(parts[0])
		if region == "" {
			return nil, fmt.Errorf("empty region name in %q", entry)
		}
		for _, lotStr := range strings.Split(parts[1], ",") {
			lotID, err := strconv.ParseInt(strings.TrimSpace(lotStr), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid lot id %q in region %q: %w", lotStr, region, err)
			}
			if prev, ok := table[lotID]; ok && prev != region {
				return nil, fmt.Errorf("lot %d assigned to both %q and %q", lotID, prev, region)
			}
			table[lotID] = region
		}
	}
	return table, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
