package config

import (
	"os"
	"strconv"
	"time"
)

type ReservationConfig struct {
	BookingRetryAttempts int
	MaxDaysAhead         int
	MaxBulkDelete        int
	TicketTTL            time.Duration
}

func LoadReservationConfig() *ReservationConfig {
	return &ReservationConfig{
		BookingRetryAttempts: getEnvAsInt("BOOKING_RETRY_ATTEMPTS", 3),
		MaxDaysAhead:         getEnvAsInt("SCHEDULE_MAX_DAYS_AHEAD", 90),
		MaxBulkDelete:        getEnvAsInt("SCHEDULE_MAX_BULK_DELETE", 50),
		TicketTTL:            getEnvAsDuration("TICKET_TTL", 48*time.Hour),
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
