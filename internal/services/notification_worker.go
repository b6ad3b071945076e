package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"caisse/internal/metrics"
	"caisse/pkg/logger"
	"caisse/pkg/messaging"
	"caisse/pkg/queue"

	"github.com/sirupsen/logrus"
)

// DeliverySource 投递消息来源
type DeliverySource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.DeliveryMessage, error)
}

// ChannelSender 按通道发送外部消息
type ChannelSender interface {
	Send(ctx context.Context, channel string, msg messaging.Message) error
}

// NotificationWorker 从投递队列取出消息并通过对应通道发送，失败不重试
type NotificationWorker struct {
	source        DeliverySource
	sender        ChannelSender
	notifications *NotificationService
	metrics       *metrics.Metrics
	pollTimeout   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotificationWorker(source DeliverySource, sender ChannelSender, notifications *NotificationService, m *metrics.Metrics) *NotificationWorker {
	return &NotificationWorker{
		source:        source,
		sender:        sender,
		notifications: notifications,
		metrics:       m,
		pollTimeout:   5 * time.Second,
	}
}

// Start 启动后台投递循环
func (w *NotificationWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	logger.GetLogger().Info("通知投递工作器已启动")
}

// Stop 停止并等待当前投递完成
func (w *NotificationWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.GetLogger().Info("通知投递工作器已停止")
}

func (w *NotificationWorker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := w.source.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logger.GetLogger().Errorf("读取投递队列失败: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue
		}
		w.Process(ctx, msg)
	}
}

// Process 发送一条消息并记录结果
func (w *NotificationWorker) Process(ctx context.Context, msg *queue.DeliveryMessage) error {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := w.sender.Send(sendCtx, msg.Channel, messaging.Message{
		Recipient: msg.Recipient,
		Template:  msg.Template,
		Params:    msg.Params,
		Text:      msg.Text,
	})

	status := "sent"
	fields := logrus.Fields{
		"delivery_id":     msg.DeliveryID,
		"notification_id": msg.NotificationID,
		"channel":         msg.Channel,
	}
	if err != nil {
		status = "failed"
		logger.GetLogger().WithFields(fields).Warnf("通知投递失败: %v", err)
	} else {
		logger.GetLogger().WithFields(fields).Debug("通知已投递")
	}

	w.notifications.MarkDelivery(msg.NotificationID, err)
	w.metrics.NotificationDelivered(msg.Channel, status)
	return err
}
