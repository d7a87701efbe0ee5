package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigs(t *testing.T, cfg, dcfg string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataconfig.json"), []byte(dcfg), 0644))
	return dir
}

func TestLoadConfig(t *testing.T) {
	cfg, dcfg, err := LoadConfig("../../config", "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL.Std())
	assert.Equal(t, "Age", dcfg.Columns.Age)
	assert.Equal(t, []string{"Cash", "Tcredit", "Tdebit"}, dcfg.PaymentMethods)
	assert.Equal(t, 6, dcfg.Clusters.Default)

	// 第二次调用返回同一实例
	cfg2, dcfg2, err := LoadConfig("does-not-exist", "x.json", "y.json")
	require.NoError(t, err)
	assert.Same(t, cfg, cfg2)
	assert.Same(t, dcfg, dcfg2)
}

func TestLoadConfigsDefaults(t *testing.T) {
	dir := writeConfigs(t, `{"data_file": "data.csv"}`, `{}`)

	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, "data.csv", cfg.DataFile)
	assert.Equal(t, "utf-8", cfg.Encoding)
	assert.Equal(t, ",", cfg.Delimiter)
	assert.Equal(t, "app.log", cfg.LogName)
	assert.Equal(t, "app.pid", cfg.PidFile)
	assert.Equal(t, 5*time.Minute, cfg.Server.CleanupInterval.Std())

	assert.Equal(t, "Annual_Income", dcfg.Columns.AnnualIncome)
	assert.Equal(t, "Cash", dcfg.CashMethod)
	assert.Equal(t, 20.0, dcfg.IncomeThreshold)
	assert.Equal(t, 2, dcfg.Clusters.Min)
	assert.Equal(t, 10, dcfg.Clusters.Max)
	assert.Contains(t, dcfg.Labels.NotFound, "%s")
}

func TestIncomeThresholdZero(t *testing.T) {
	dir := writeConfigs(t, `{}`, `{"income_threshold": 0}`)
	_, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dcfg.IncomeThreshold)

	_, dcfg = Default()
	assert.Equal(t, 20.0, dcfg.IncomeThreshold)
}

// 仓库自带的配置文件
func TestShippedConfig(t *testing.T) {
	cfg, dcfg, err := loadConfigs("../../config", "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, "app.pid", cfg.PidFile)
	assert.Equal(t, 20.0, dcfg.IncomeThreshold)
	assert.Equal(t, MaxClusters, dcfg.Clusters.Max)
}

func TestLoadConfigsErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     string
		dcfg    string
		missing bool
		wantMsg string
	}{
		{name: "missing files", missing: true, wantMsg: "read config"},
		{name: "broken config", cfg: `{`, dcfg: `{}`, wantMsg: "parse Config"},
		{name: "bad duration", cfg: `{"server": {"session_ttl": "soon"}}`, dcfg: `{}`, wantMsg: "parse Config"},
		{name: "both broken", cfg: `[`, dcfg: `[`, wantMsg: "configuration errors"},
		{name: "bad cluster range", cfg: `{}`, dcfg: `{"clusters": {"min": 5, "max": 3}}`, wantMsg: "invalid clusters range"},
		{name: "default outside range", cfg: `{}`, dcfg: `{"clusters": {"default": 12}}`, wantMsg: "default clusters"},
		{name: "max above limit", cfg: `{}`, dcfg: `{"clusters": {"max": 12}}`, wantMsg: "invalid clusters range"},
		{name: "min below limit", cfg: `{}`, dcfg: `{"clusters": {"min": 1}}`, wantMsg: "invalid clusters range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.missing {
				dir = writeConfigs(t, tt.cfg, tt.dcfg)
			}
			_, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`15`), &d))
}
