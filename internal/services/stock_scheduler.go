package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caisse/pkg/logger"

	"github.com/robfig/cron/v3"
)

// StockScheduler 定时任务：自动补货巡检与超时会话提醒
type StockScheduler struct {
	thresholds *ThresholdService
	sessions   *CashSessionService
	staleHours int
	cron       *cron.Cron
	entries    map[string]cron.EntryID
	mu         sync.Mutex
	running    bool
}

// NewStockScheduler 创建调度器
func NewStockScheduler(thresholds *ThresholdService, sessions *CashSessionService, staleHours int) *StockScheduler {
	return &StockScheduler{
		thresholds: thresholds,
		sessions:   sessions,
		staleHours: staleHours,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		entries:    make(map[string]cron.EntryID),
	}
}

// Start 注册任务并启动，表达式为空的任务不注册
func (s *StockScheduler) Start(sweepSpec, staleSpec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	if sweepSpec != "" && s.thresholds != nil {
		id, err := s.cron.AddFunc(sweepSpec, func() { s.RunSweep(context.Background()) })
		if err != nil {
			return fmt.Errorf("无效的补货巡检表达式 %q: %w", sweepSpec, err)
		}
		s.entries["stock_sweep"] = id
	}
	if staleSpec != "" && s.sessions != nil {
		id, err := s.cron.AddFunc(staleSpec, func() { s.RunStaleCheck(context.Background()) })
		if err != nil {
			return fmt.Errorf("无效的会话检查表达式 %q: %w", staleSpec, err)
		}
		s.entries["stale_sessions"] = id
	}

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("定时任务调度器启动成功，已加载 %d 个任务", len(s.entries))
	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *StockScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	logger.GetLogger().Info("定时任务调度器已停止")
}

// Entries 已注册的任务名
func (s *StockScheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// RunSweep 执行一次补货巡检
func (s *StockScheduler) RunSweep(ctx context.Context) {
	start := time.Now()
	created, err := s.thresholds.Sweep(ctx)
	if err != nil {
		logger.GetLogger().Errorf("补货巡检失败: %v", err)
		return
	}
	if created > 0 {
		logger.GetLogger().Infof("补货巡检完成，生成 %d 个自动订单，耗时 %v", created, time.Since(start))
	}
}

// RunStaleCheck 执行一次超时会话检查
func (s *StockScheduler) RunStaleCheck(ctx context.Context) {
	notified, err := s.sessions.NotifyStale(ctx, s.staleHours)
	if err != nil {
		logger.GetLogger().Errorf("超时会话检查失败: %v", err)
		return
	}
	if notified > 0 {
		logger.GetLogger().Infof("已提醒 %d 个超时未关闭的收银会话", notified)
	}
}
