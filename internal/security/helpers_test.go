package security_test

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testLimits() *config.LimitsConfig {
	return &config.LimitsConfig{
		MinDuration:         1,
		MaxDuration:         14400,
		TimestampSkew:       24 * time.Hour,
		RequestsPerMinute:   10,
		RateWindow:          time.Minute,
		SessionsPerDay:      100,
		DailyLimitPerSource: true,
		BlockDuration:       30 * time.Minute,
		RapidFireAttempts:   20,
		ViolationWindow:     time.Hour,
		ViolationWarnCount:  5,
		ViolationBlockCount: 10,
		ScrapingAttempts:    50,
		ProbingKinds:        3,
		EventRetention:      24 * time.Hour,
	}
}
