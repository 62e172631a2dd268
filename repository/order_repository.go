package repository

import (
	"context"

	"settlement-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, ref string) (*models.Order, error)
	FindByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error)
	MarkPaymentSucceeded(ctx context.Context, paymentID uuid.UUID, transactionID string) (bool, error)
}

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return conn(ctx, r.db).Create(payment).Error
}

// Create inserts the order and its items.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return conn(ctx, r.db).Omit("Payment").Create(order).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := conn(ctx, r.db).
		Preload("Items").
		Preload("Payment").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByGatewayOrderID(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := conn(ctx, r.db).
		Preload("Payment").
		Where("gateway_order_id = ?", ref).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	var (
		orders []models.Order
		total  int64
	)
	q := conn(ctx, r.db).Model(&models.Order{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Items").
		Order("created_at DESC").
		Offset(offset(page, limit)).
		Limit(limit).
		Find(&orders).Error
	return orders, total, err
}

// FindAll lists orders for admins. Search matches the order id or gateway reference.
func (r *GormOrderRepository) FindAll(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	var (
		orders []models.Order
		total  int64
	)
	q := conn(ctx, r.db).Model(&models.Order{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("CAST(id AS TEXT) ILIKE ? OR gateway_order_id ILIKE ?", like, like)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Items").
		Preload("Payment").
		Order("created_at DESC").
		Offset(offset(filter.Page, filter.Limit)).
		Limit(filter.Limit).
		Find(&orders).Error
	return orders, total, err
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	res := conn(ctx, r.db).Model(&models.Order{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionStatus moves the order from one status to another and reports whether it did.
func (r *GormOrderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) MarkPaymentSucceeded(ctx context.Context, paymentID uuid.UUID, transactionID string) (bool, error) {
	updates := map[string]interface{}{"status": models.PaymentStatusSuccess}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ? AND status <> ?", paymentID, models.PaymentStatusSuccess).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
