package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\nredis_mode:standalone\r\n\r\n# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\n"

	stats := parseInfo(info)

	assert.Equal(t, map[string]string{
		"redis_version":   "7.2.4",
		"keyspace_hits":   "12",
		"keyspace_misses": "3",
	}, stats)
}
