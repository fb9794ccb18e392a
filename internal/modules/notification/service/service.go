package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"anoa.com/playquestrewards/internal/entity"
	notifRepo "anoa.com/playquestrewards/internal/modules/notification/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	CodeDailyWinner  = "prizepool_daily_winner"
	CodeWeeklyWinner = "prizepool_weekly_winner"
	CodeCycleStarted = "prizepool_cycle_started"
)

// templates maps a notification code to its message format. Params are
// applied positionally via fmt.Sprintf.
var templates = map[string]string{
	CodeDailyWinner:  "🏆 Congrats! You placed #%d in yesterday's daily prizepool and won %d coins!",
	CodeWeeklyWinner: "🥇 Amazing! You finished #%d in this week's prizepool and won %d coins!",
	CodeCycleStarted: "🎮 A new prizepool week has started. Earn activity points to climb the leaderboard!",
}

type NotificationService interface {
	// SendByCode renders the template for code and delivers it to every
	// target user. Delivery is best-effort: failures are logged, never fatal.
	SendByCode(ctx context.Context, code string, params []interface{}, targetUserIDs []uuid.UUID, referenceID *string, referenceType string) error
	// BroadcastByCode publishes a template message on the broadcast channel
	// without persisting per-user rows.
	BroadcastByCode(ctx context.Context, code string, params []interface{})

	GetNotifications(userID uuid.UUID, limit, offset int) ([]entity.Notification, error)
	MarkAsRead(id uuid.UUID) error
	MarkAllAsRead(userID uuid.UUID) error
	UnreadCount(userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	redisClient *redis.Client
}

func NewNotificationService(repo notifRepo.NotificationRepository, redisClient *redis.Client) NotificationService {
	return &notificationService{
		repo:        repo,
		redisClient: redisClient,
	}
}

func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

const BroadcastChannel = "broadcast_notifications"

func (s *notificationService) SendByCode(ctx context.Context, code string, params []interface{}, targetUserIDs []uuid.UUID, referenceID *string, referenceType string) error {
	tmpl, ok := templates[code]
	if !ok {
		return fmt.Errorf("unknown notification code: %s", code)
	}
	message := fmt.Sprintf(tmpl, params...)

	notifications := make([]entity.Notification, 0, len(targetUserIDs))
	for _, userID := range targetUserIDs {
		notifications = append(notifications, entity.Notification{
			UserID:        userID,
			Code:          code,
			Message:       message,
			ReferenceID:   referenceID,
			ReferenceType: referenceType,
		})
	}

	if err := s.repo.CreateBatch(notifications); err != nil {
		return fmt.Errorf("failed to persist notifications: %w", err)
	}

	// Publish to Redis if Redis is available
	if s.redisClient != nil {
		for i := range notifications {
			payload, err := json.Marshal(&notifications[i])
			if err != nil {
				continue
			}
			if err := s.redisClient.Publish(ctx, UserChannel(notifications[i].UserID), payload).Err(); err != nil {
				log.Printf("⚠️ Failed to publish notification for user %s: %v", notifications[i].UserID, err)
			}
		}
	}

	return nil
}

func (s *notificationService) BroadcastByCode(ctx context.Context, code string, params []interface{}) {
	tmpl, ok := templates[code]
	if !ok {
		log.Printf("⚠️ Unknown broadcast notification code: %s", code)
		return
	}
	if s.redisClient == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"code":    code,
		"message": fmt.Sprintf(tmpl, params...),
	})
	if err != nil {
		return
	}
	if err := s.redisClient.Publish(ctx, BroadcastChannel, payload).Err(); err != nil {
		log.Printf("⚠️ Failed to publish broadcast notification: %v", err)
	}
}

func (s *notificationService) GetNotifications(userID uuid.UUID, limit, offset int) ([]entity.Notification, error) {
	return s.repo.GetByUserID(userID, limit, offset)
}

func (s *notificationService) MarkAsRead(id uuid.UUID) error {
	return s.repo.MarkAsRead(id)
}

func (s *notificationService) MarkAllAsRead(userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(userID)
}

func (s *notificationService) UnreadCount(userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(userID)
}
