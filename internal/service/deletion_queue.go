package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/trending/pkg/logger"
)

type deletionJob struct {
	itemID string
	enqAt  time.Time
}

// DeletionQueue 异步执行 OnItemDeleted：领域对象的删除流程只投递，不等待也不因此失败
type DeletionQueue struct {
	engine    TrendingService
	ch        chan deletionJob
	metricsCh chan time.Duration
	timeout   time.Duration
}

func NewDeletionQueue(engine TrendingService, queueSize int) *DeletionQueue {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &DeletionQueue{
		engine:    engine,
		ch:        make(chan deletionJob, queueSize),
		metricsCh: make(chan time.Duration, queueSize),
		timeout:   5 * time.Second,
	}
}

// Start 启动 workers 个消费者，返回的函数停止投递处理并等待在途任务（或 ctx 到期）
func (q *DeletionQueue) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-q.ch:
					q.process(job)
				case <-stopCh:
					// 退出前排空队列
					for {
						select {
						case job := <-q.ch:
							q.process(job)
						default:
							return
						}
					}
				}
			}
		}()
	}

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stopCh) })
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *DeletionQueue) process(job deletionJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.engine.OnItemDeleted(ctx, job.itemID); err != nil {
		logger.Warn("async trending delete failed", zap.String("item_id", job.itemID), zap.Error(err))
	}
	select {
	case q.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

// Enqueue 非阻塞投递；队列满时丢弃并告警，遗留记录会随衰减被尾部淘汰
func (q *DeletionQueue) Enqueue(itemID string) bool {
	select {
	case q.ch <- deletionJob{itemID: itemID, enqAt: time.Now()}:
		return true
	default:
		logger.Warn("deletion queue full, drop", zap.String("item_id", itemID))
		return false
	}
}

// Metrics 返回投递到完成的耗时（每处理一条发送一次，满则丢弃）
func (q *DeletionQueue) Metrics() <-chan time.Duration { return q.metricsCh }

// QueueLen 返回当前队列长度（采样值）
func (q *DeletionQueue) QueueLen() int { return len(q.ch) }
