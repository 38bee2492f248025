package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/config"
)

func validEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":           "redis://localhost:6379/0",
		"USPS_CLIENT_ID":      "client-id",
		"USPS_CLIENT_SECRET":  "client-secret",
		"CMS_ACCESS_TOKEN":    "cms-token",
		"SHIPPING_ORIGIN_ZIP": "33101",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(validEnv())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "https://apis.usps.com", cfg.USPSBaseURL)
	require.Equal(t, 3, cfg.ShippingMaxAttempts)
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, "payu", cfg.PaymentProvider)
	require.Equal(t, "30-M", cfg.ShippingRateLimit)
}

func TestLoadFailsFastOnMissingCredentials(t *testing.T) {
	for _, missing := range []string{"REDIS_URL", "USPS_CLIENT_ID", "CMS_ACCESS_TOKEN"} {
		env := validEnv()
		env[missing] = ""
		_, err := config.LoadForTests(env)
		require.Error(t, err, "expected error when %s is unset", missing)
	}
}

func TestLoadRejectsMalformedOriginZIP(t *testing.T) {
	env := validEnv()
	env["SHIPPING_ORIGIN_ZIP"] = "3310"
	_, err := config.LoadForTests(env)
	require.Error(t, err)

	env["SHIPPING_ORIGIN_ZIP"] = "ABCDE"
	_, err = config.LoadForTests(env)
	require.Error(t, err)
}
