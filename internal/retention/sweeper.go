package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FrameDeleter 过期检测帧删除接口（由 repository.FramesRepository 实现）
type FrameDeleter interface {
	DeleteFramesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper 检测帧保留清理器
// 周期性删除早于保留期的检测帧记录
type Sweeper struct {
	deleter  FrameDeleter
	days     int
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper 创建保留清理器
func NewSweeper(deleter FrameDeleter, days int, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		deleter:  deleter,
		days:     days,
		interval: interval,
		logger:   logger,
	}
}

// Run 启动清理循环（阻塞直到上下文取消）
// 启动时先清理一次，之后按周期执行
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep 执行一次清理
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.days)

	deleted, err := s.deleter.DeleteFramesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to sweep expired frames", zap.Error(err))
		return
	}

	if deleted > 0 {
		s.logger.Info("Swept expired detection frames",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
