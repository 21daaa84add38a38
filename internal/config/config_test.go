package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoArgs(t *testing.T) {
	cfg, err := Load(nil, func(string) string { return "" })
	require.NoError(t, err)

	require.Equal(t, Default.DBPath, cfg.DBPath)
	require.Equal(t, Default.ContextTokenBudget, cfg.ContextTokenBudget)
	require.Empty(t, cfg.APIKeys)
	require.Nil(t, cfg.AdminUserIDs)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"-db-path", "/tmp/custom.db",
		"-per-user-per-hour", "5",
		"-admin-user-ids", "1,2,3",
		"-bot-trigger-patterns", `(?i)hey bot,(?i)^gryag`,
	}, func(string) string { return "" })
	require.NoError(t, err)

	require.Equal(t, "/tmp/custom.db", cfg.DBPath)
	require.Equal(t, 5, cfg.PerUserPerHour)
	require.Equal(t, []int64{1, 2, 3}, cfg.AdminUserIDs)
	require.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, cfg.AdminIDSet())
	require.Len(t, cfg.BotTriggerPatterns, 2)
}

func TestLoadFallsBackToEnvironmentForSecrets(t *testing.T) {
	env := map[string]string{
		"GRYAG_TELEGRAM_TOKEN":    "tok-123",
		"GRYAG_GEMINI_API_KEYS":  "key-a,key-b",
		"GRYAG_ALLOWED_CHAT_IDS": "-100123,-100456",
	}
	cfg, err := Load(nil, func(k string) string { return env[k] })
	require.NoError(t, err)

	require.Equal(t, "tok-123", cfg.TelegramToken)
	require.Equal(t, []string{"key-a", "key-b"}, cfg.APIKeys)
	require.Equal(t, map[int64]bool{-100123: true, -100456: true}, cfg.AllowedChatIDSet())
}

func TestLoadRejectsMalformedIDList(t *testing.T) {
	_, err := Load([]string{"-admin-user-ids", "1,not-a-number"}, func(string) string { return "" })
	require.Error(t, err)
}
