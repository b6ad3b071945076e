package database

import (
	"context"
	"fmt"
	"time"

	"caisse/pkg/config"
	"caisse/pkg/queue"
)

// ConnectRedis 创建通知队列并检查连通性，不可用时关闭连接并返回错误
func ConnectRedis(cfg config.RedisConfig, timeout time.Duration) (*queue.RedisQueue, error) {
	q := queue.NewRedisQueue(&queue.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
		Prefix:   cfg.Prefix,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := q.Ping(ctx); err != nil {
		q.Close()
		return nil, fmt.Errorf("连接Redis %s:%d 失败: %w", cfg.Host, cfg.Port, err)
	}
	return q, nil
}
