package matchmaker

import (
	"context"

	"Matchmaking/internal/domain"
)

// QueueRepo 定义对各模式 FIFO 队列的抽象操作，模式之间互不影响
type QueueRepo interface {
	// Enqueue 追加到队尾并刷新该模式队列的过期时间
	Enqueue(ctx context.Context, p domain.Player) error
	// DequeueHead 弹出队首；队列为空时返回 nil
	DequeueHead(ctx context.Context, mode domain.Mode) (*domain.Player, error)
	// PeekFirst 按 FIFO 顺序返回前 n 个，不移除；n <= 0 表示整个队列
	PeekFirst(ctx context.Context, mode domain.Mode, n int) ([]domain.Player, error)
	// Size 队列已过期或不存在时为 0
	Size(ctx context.Context, mode domain.Mode) (int64, error)
	// RemoveOne 从队首线性查找并移除第一个匹配项；不存在时返回 false
	RemoveOne(ctx context.Context, mode domain.Mode, playerID string) (bool, error)
	Clear(ctx context.Context, mode domain.Mode) error
}

// QueueKeyPrefix default "queue:" -> queue:PVP, queue:BOSS
const QueueKeyPrefix = "queue:"
