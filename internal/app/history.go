package app

import (
	"context"

	"taskloop/internal/config"
	"taskloop/internal/storage"
	logx "taskloop/pkg/logx"
)

// ReadHistory opens the run history configured in cfgPath and returns up to
// limit recent runs of name, newest first. An empty name matches every task.
func ReadHistory(ctx context.Context, cfgPath, name string, limit int) ([]storage.RunRecord, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.RecentRuns(ctx, name, limit)
}
