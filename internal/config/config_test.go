package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)

	require.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	require.Equal(t, int64(1<<26), cfg.Upload.MaxPixels)
	require.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	require.Equal(t, 3, cfg.Quota.FreeLimit)
	require.Equal(t, 1.3, cfg.Detector.ScaleFactor)
	require.Equal(t, 5, cfg.Detector.MinNeighbors)
	require.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	require.Equal(t, 30*time.Minute, cfg.Security.JWTAccessTTL)
	require.Empty(t, cfg.Security.BootstrapAdminEmail)
	require.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
}

func TestDecodeOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("allowcorsorigins", "http://localhost:3000,https://app.example.com")
	v.Set("jobs.sweepgrace", "15m")
	v.Set("quota.lock", QuotaLockLocal)

	cfg, err := decode(v)
	require.NoError(t, err)
	require.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.AllowCORSOrigins)
	require.Equal(t, 15*time.Minute, cfg.Jobs.SweepGrace)
	require.Equal(t, QuotaLockLocal, cfg.Quota.Lock)
}

func TestDecodeRejectsUnknownDrivers(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("storage.driver", "ftp")

	_, err := decode(v)
	require.ErrorContains(t, err, "storage.driver")

	v.Set("storage.driver", StorageDriverMinio)
	v.Set("quota.lock", "etcd")
	_, err = decode(v)
	require.ErrorContains(t, err, "quota.lock")
}

func TestDecodeRejectsNonPositivePixelCap(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("upload.maxpixels", 0)

	_, err := decode(v)
	require.ErrorContains(t, err, "upload.maxpixels")
}
