package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wondr/rembg/internal/config"
)

func TestConnString(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "db.internal",
		Port:            "5433",
		User:            "rembg",
		Password:        "s3cret",
		Name:            "credits",
		SSLMode:         "require",
		ConnMaxLifetime: time.Minute,
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=rembg password=s3cret dbname=credits sslmode=require",
		ConnString(cfg))
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(config.RedisConfig{Host: "cache", Port: "6380", Password: "pw", DB: 2})

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
}
