package controllers

import (
	"context"
	"net/http"

	"settlement-service/apperrors"
	"settlement-service/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NotificationLister reads a user's in-app inbox.
type NotificationLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Notification, int64, error)
}

type NotificationController struct {
	notifications NotificationLister
}

func NewNotificationController(notifications NotificationLister) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// List handles GET /notifications.
func (nc *NotificationController) List(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)

	items, total, err := nc.notifications.ListForUser(ctx.Request.Context(), userID, page, limit)
	if err != nil {
		apperrors.Respond(ctx, apperrors.Internal("Failed to fetch notifications", err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": items, "meta": paginationMeta(page, limit, total)})
}
