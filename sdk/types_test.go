package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeConfigSetsSafeDefaults(t *testing.T) {
	cfg := normalizeConfig(Config{KeyCapacity: 500})

	assert.Equal(t, "sim", cfg.Backend)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, "keys.txt", cfg.KeyFile)
	assert.Equal(t, 50, cfg.KeyCapacity)
	assert.Equal(t, 3*time.Second, cfg.DetectTimeout)
	assert.NotNil(t, cfg.Log)
}

func TestNormalizeConfigCopiesUID(t *testing.T) {
	uid := []byte{1, 2, 3, 4}
	cfg := normalizeConfig(Config{SimUID: uid})
	uid[0] = 9
	assert.Equal(t, byte(1), cfg.SimUID[0])
}
