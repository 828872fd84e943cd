package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/imagaram/sfr-backend-sub001/internal/reward/domain"
)

const (
	recordKeyPrefix     = "sfrt_distribution_"
	walPrefix           = "dist_"
	walSegmentThreshold = 1000
	walMaxSegments      = 100
	walDirPermissions   = 0o755
)

// WALJournal 把每次分发结果追加到 WAL，并在内存里按事件 ID 建索引
type WALJournal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	byEvent map[string][]domain.DistributionResult
}

// Open 打开（或新建）日志目录，并回放已有记录
func Open(dir string, logger *zap.Logger) (*WALJournal, error) {
	if err := os.MkdirAll(dir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           walPrefix,
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error init distribution journal")
	}

	j := &WALJournal{
		wal:     wal,
		byEvent: make(map[string][]domain.DistributionResult),
	}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, recordKeyPrefix) {
			continue
		}
		var rec domain.DistributionResult
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			logger.Error("failed to unmarshal distribution record", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		j.byEvent[rec.EventID] = append(j.byEvent[rec.EventID], rec)
	}
	return j, nil
}

func (j *WALJournal) Append(result *domain.DistributionResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to marshal distribution record")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := fmt.Sprintf("%s%s", recordKeyPrefix, result.ID)
	if err := j.wal.Write(j.wal.CurrentIndex()+1, key, data); err != nil {
		return errors.Wrapf(err, "failed to append distribution record for event %s", result.EventID)
	}
	j.byEvent[result.EventID] = append(j.byEvent[result.EventID], *result)
	return nil
}

// FindByEvent 按写入顺序返回
func (j *WALJournal) FindByEvent(eventID string) ([]domain.DistributionResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	recs := j.byEvent[eventID]
	out := make([]domain.DistributionResult, len(recs))
	copy(out, recs)
	return out, nil
}

func (j *WALJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}
