package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisClient_InvalidURL(t *testing.T) {
	client, err := NewRedisClient("not-a-redis-url")
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "failed to parse Redis URL")
}
