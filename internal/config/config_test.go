package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

func TestFromViperAppliesDefaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(map[string]interface{}{"nats.url": "nats://localhost:4222"}))
	require.NoError(t, err)

	require.Equal(t, TransportNATS, cfg.JudgeTransport)
	require.Equal(t, "judge.tasks", cfg.JudgeSubject)
	require.Equal(t, 5*time.Second, cfg.JudgeTimeout)
	require.Equal(t, 20.0, cfg.UserThrottle.Capacity)
	require.InDelta(t, 0.03, cfg.UserThrottle.FillRate, 1e-9)
	require.Equal(t, 10.0, cfg.UserThrottle.DefaultCapacity)
	require.True(t, cfg.SubmissionListShowAll)
	require.Equal(t, 250, cfg.SubmissionMaxPageSize)
	require.Equal(t, 2*time.Minute, cfg.ReconcileStaleAfter)
	require.Equal(t, ":8081", cfg.HTTPAddress())
}

func TestFromViperRejectsMissingTransportTarget(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{"judge.transport": "sqs"}))
	require.Error(t, err)

	_, err = fromViper(newTestViper(map[string]interface{}{"judge.transport": "carrier-pigeon"}))
	require.Error(t, err)
}

func TestFromViperRejectsBadThrottle(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{
		"nats.url":                  "nats://localhost:4222",
		"throttling.user.fill_rate": 0,
	}))
	require.Error(t, err)
}

func TestFromViperRejectsBadDuration(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{
		"nats.url":      "nats://localhost:4222",
		"judge.timeout": "soon",
	}))
	require.Error(t, err)
}

func TestFromViperRejectsStaleWindowShorterThanTimeout(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{
		"nats.url":              "nats://localhost:4222",
		"judge.timeout":         "10s",
		"reconcile.stale_after": "5s",
	}))
	require.Error(t, err)
}

func TestFromViperRejectsNonPositiveDurations(t *testing.T) {
	for key, value := range map[string]string{
		"reconcile.interval":    "0s",
		"judge.timeout":         "-1s",
		"captcha.ttl":           "0s",
		"reconcile.stale_after": "-5m",
	} {
		_, err := fromViper(newTestViper(map[string]interface{}{
			"nats.url": "nats://localhost:4222",
			key:        value,
		}))
		require.Error(t, err, key)
		require.Contains(t, err.Error(), key)
	}
}
