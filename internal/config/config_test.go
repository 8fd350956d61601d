package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(map[string]string{"ENROLL_GROUP_ID": "120363000000000000@g.us"})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "120363000000000000@g.us", cfg.GroupID)
	require.Equal(t, "./contacts.xlsx", cfg.ContactsPath)
	require.Equal(t, "./progress.json", cfg.LedgerPath)
	require.Equal(t, LedgerJSON, cfg.LedgerBackend)
	require.Equal(t, 8, cfg.MinDigits)
	require.Equal(t, 8, cfg.AddQuota)
	require.Equal(t, 20, cfg.LinkQuota)
	require.Equal(t, 120*time.Second, cfg.AddDelayMin)
	require.Equal(t, 180*time.Second, cfg.AddDelayMax)
	require.Equal(t, 60*time.Second, cfg.LinkDelayMin)
	require.Equal(t, 120*time.Second, cfg.LinkDelayMax)
	require.Equal(t, 35*time.Minute, cfg.Cooldown)
	require.Equal(t, 10*time.Second, cfg.StartDelay)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	require.Equal(t, 8, ec.AddQuota)
	require.Equal(t, 35*time.Minute, ec.Cooldown)
	require.Contains(t, ec.Message("https://x/1"), "https://x/1")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(map[string]string{
		"ENROLL_GROUP_ID":         "g",
		"ENROLL_ADD_QUOTA":        "3",
		"ENROLL_LINK_QUOTA":       "5",
		"ENROLL_ADD_DELAY_MIN":    "1m",
		"ENROLL_ADD_DELAY_MAX":    "2m",
		"ENROLL_COOLDOWN":         "1h",
		"ENROLL_LEDGER_BACKEND":   "sqlite",
		"ENROLL_ID_SUFFIX":        "@s.whatsapp.net",
		"ENROLL_MESSAGE_TEMPLATE": "Join: {{.Link}}",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	ec, err := cfg.Engine()
	require.NoError(t, err)
	require.Equal(t, 3, ec.AddQuota)
	require.Equal(t, 5, ec.LinkQuota)
	require.Equal(t, time.Minute, ec.AddDelay.Min)
	require.Equal(t, 2*time.Minute, ec.AddDelay.Max)
	require.Equal(t, time.Hour, ec.Cooldown)
	require.Equal(t, "Join: https://x/1", ec.Message("https://x/1"))

	id, err := cfg.Normalizer().Normalize("55 11 99999-0000")
	require.NoError(t, err)
	require.Equal(t, "5511999990000@s.whatsapp.net", id)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(map[string]string{"ENROLL_COOLDOWN": "soon"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr bool
	}{
		{name: "defaults", environ: map[string]string{}},
		{name: "unknown backend", environ: map[string]string{"ENROLL_LEDGER_BACKEND": "etcd"}, wantErr: true},
		{name: "redis without dsn", environ: map[string]string{"ENROLL_LEDGER_BACKEND": "redis"}, wantErr: true},
		{name: "postgres with dsn", environ: map[string]string{"ENROLL_LEDGER_BACKEND": "postgres", "ENROLL_LEDGER_DSN": "postgres://localhost/enroller"}},
		{name: "bad level", environ: map[string]string{"ENROLL_LOG_LEVEL": "loud"}, wantErr: true},
		{name: "zero digits", environ: map[string]string{"ENROLL_MIN_DIGITS": "0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.environ)
			require.NoError(t, err)
			err = cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEngine_RejectsInvalidPolicy(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{name: "missing group", environ: map[string]string{}},
		{name: "inverted add range", environ: map[string]string{"ENROLL_GROUP_ID": "g", "ENROLL_ADD_DELAY_MIN": "5m"}},
		{name: "template without link", environ: map[string]string{"ENROLL_GROUP_ID": "g", "ENROLL_MESSAGE_TEMPLATE": "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.environ)
			require.NoError(t, err)
			_, err = cfg.Engine()
			require.Error(t, err)
		})
	}
}
