package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaults checks defaults applied when the environment is empty.
func TestDefaults(t *testing.T) {
	CFG = AppConfig{}
	loadFromEnvironment()
	setDefaults()

	assert.Equal(t, 20, CFG.Replication.CopyWorkers)
	assert.Equal(t, 20, CFG.Backup.Workers)
	assert.Equal(t, "platypus", CFG.Backup.ServiceName)
	assert.Equal(t, 500*time.Millisecond, CFG.Replication.StatusIntervalDuration())
}

// TestValidateConfigStorageBackend checks exactly one backend must be
// enabled.
func TestValidateConfigStorageBackend(t *testing.T) {
	CFG = AppConfig{}
	loadFromEnvironment()
	setDefaults()

	CFG.S3.Enabled = false
	CFG.Local.Enabled = false
	assert.Error(t, ValidateConfig())

	CFG.Local.Enabled = true
	require.NoError(t, ValidateConfig())

	CFG.S3.Enabled = true
	assert.Error(t, ValidateConfig())

	CFG.Local.Enabled = false
	CFG.S3.Bucket = ""
	assert.Error(t, ValidateConfig())

	CFG.S3.Bucket = "backups"
	CFG.S3.AccessKey = "key"
	CFG.S3.SecretKey = "secret"
	assert.NoError(t, ValidateConfig())
}

// TestValidateConfigSchedule checks a schedule requires resources.
func TestValidateConfigSchedule(t *testing.T) {
	CFG = AppConfig{}
	loadFromEnvironment()
	setDefaults()
	CFG.Local.Enabled = true

	CFG.Backup.Schedule = "0 * * * *"
	CFG.Backup.Resources = nil
	assert.Error(t, ValidateConfig())

	CFG.Backup.Resources = []string{"idx"}
	assert.NoError(t, ValidateConfig())
}

// TestStatusIntervalFallback checks a garbage interval falls back to the
// default.
func TestStatusIntervalFallback(t *testing.T) {
	r := ReplicationConfig{StatusInterval: "not-a-duration"}
	assert.Equal(t, 500*time.Millisecond, r.StatusIntervalDuration())

	r.StatusInterval = "2s"
	assert.Equal(t, 2*time.Second, r.StatusIntervalDuration())
}
