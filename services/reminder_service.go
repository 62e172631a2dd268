package services

import (
	"context"
	"fmt"
	"time"

	"settlement-service/lock"
	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"
	"settlement-service/repository"
	"settlement-service/sender"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reminderInflightPrefix = "reminder:inflight:"
	defaultReminderBatch   = 200
	defaultInflightTTL     = 10 * time.Minute
)

// ReminderMailer sends the abandoned-cart reminder email.
type ReminderMailer interface {
	SendAbandonedCartReminder(ctx context.Context, data sender.ReminderEmail) error
}

// RunReport summarises one reminder run.
type RunReport struct {
	Tiers        int
	Candidates   int
	Reminded     int
	Skipped      int
	Failed       int
	CouponsSwept int64
	SweepFailed  bool
	StoppedEarly bool
}

// ReminderService sends one abandoned-cart reminder per cart and sweeps stale coupons.
type ReminderService interface {
	Run(ctx context.Context, now time.Time) (RunReport, error)
}

// ReminderServiceDeps groups the collaborators of the reminder service.
type ReminderServiceDeps struct {
	Config      repository.ConfigRepository
	Carts       repository.CartRepository
	TxManager   repository.TxManager
	Coupons     CouponService
	Mailer      ReminderMailer
	Notifier    sender.Notifier
	Locker      lock.Locker
	Metrics     awspkg.MetricsRecorder
	Logger      *zap.Logger
	StoreURL    string
	BatchSize   int
	InflightTTL time.Duration // how long a crashed run keeps a cart's marker
}

type reminderServiceImpl struct {
	config      repository.ConfigRepository
	carts       repository.CartRepository
	txm         repository.TxManager
	coupons     CouponService
	mailer      ReminderMailer
	notifier    sender.Notifier
	locker      lock.Locker
	metrics     awspkg.MetricsRecorder
	logger      *zap.Logger
	storeURL    string
	batchSize   int
	inflightTTL time.Duration
}

func NewReminderService(deps ReminderServiceDeps) ReminderService {
	s := &reminderServiceImpl{
		config:      deps.Config,
		carts:       deps.Carts,
		txm:         deps.TxManager,
		coupons:     deps.Coupons,
		mailer:      deps.Mailer,
		notifier:    deps.Notifier,
		locker:      deps.Locker,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		storeURL:    deps.StoreURL,
		batchSize:   deps.BatchSize,
		inflightTTL: deps.InflightTTL,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultReminderBatch
	}
	if s.inflightTTL <= 0 {
		s.inflightTTL = defaultInflightTTL
	}
	return s
}

type cartOutcome int

const (
	outcomeReminded cartOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// Run walks the active tiers by ascending delay and reminds every eligible cart once. A
// failed cart is left untouched for the next run.
func (s *reminderServiceImpl) Run(ctx context.Context, now time.Time) (RunReport, error) {
	var report RunReport

	tiers, err := s.config.ListActiveReminderTiers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load reminder tiers: %w", err)
	}
	report.Tiers = len(tiers)

run:
	for _, tier := range tiers {
		cutoff := now.Add(-tier.SendDelay())
		carts, err := s.carts.FindAbandoned(ctx, cutoff, s.batchSize)
		if err != nil {
			s.logger.Error("Failed to load abandoned carts",
				zap.Int("hours_after_email_is_sent", tier.HoursAfterEmailIsSent),
				zap.Error(err),
			)
			continue
		}
		report.Candidates += len(carts)

		for i := range carts {
			if ctx.Err() != nil {
				report.StoppedEarly = true
				break run
			}
			switch s.processCart(ctx, &carts[i], tier, now) {
			case outcomeReminded:
				report.Reminded++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
		}
	}

	swept, err := s.coupons.SweepExpired(ctx, now)
	if err != nil {
		report.SweepFailed = true
	}
	report.CouponsSwept = swept

	s.logger.Info("Abandoned cart reminder run finished",
		zap.Int("tiers", report.Tiers),
		zap.Int("candidates", report.Candidates),
		zap.Int("reminded", report.Reminded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int64("coupons_swept", report.CouponsSwept),
	)
	return report, nil
}

func (s *reminderServiceImpl) processCart(ctx context.Context, cart *models.Cart, tier models.AbandonedCartSetting, now time.Time) cartOutcome {
	log := s.logger.With(zap.String("cart_id", cart.ID.String()))

	if cart.User == nil || cart.User.Email == "" {
		log.Warn("cart owner has no email, skipping reminder")
		return outcomeSkipped
	}

	lease, ok, err := s.locker.TryAcquire(ctx, reminderInflightPrefix+cart.ID.String(), s.inflightTTL)
	if err != nil {
		log.Error("failed to take reminder marker", zap.Error(err))
		return outcomeFailed
	}
	if !ok {
		log.Debug("reminder already in flight")
		return outcomeSkipped
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release reminder marker", zap.Error(err))
		}
	}()

	coupon, err := s.coupons.IssueAbandonedCartCoupon(ctx, cart, tier, now)
	if err != nil {
		log.Error("failed to issue abandoned cart coupon", zap.Error(err))
		s.recordFailure(ctx)
		return outcomeFailed
	}

	// claim the cart before emailing so a failed write never leads to a second email
	var marked bool
	err = s.txm.Do(ctx, func(ctx context.Context) error {
		var err error
		marked, err = s.carts.MarkReminded(ctx, cart.ID, now)
		if err != nil || !marked {
			return err
		}
		return s.carts.SaveAbandonedItems(ctx, models.SnapshotCartItems(cart, tier.DiscountToBeGivenInPercent))
	})
	if err != nil {
		log.Error("failed to record reminder", zap.Error(err))
		s.recordFailure(ctx)
		return outcomeFailed
	}
	if !marked {
		log.Info("cart reminded by another run")
		return outcomeSkipped
	}

	if err := s.mailer.SendAbandonedCartReminder(ctx, s.reminderEmail(cart, coupon)); err != nil {
		log.Error("abandoned cart reminder email failed", zap.Error(err))
		s.recordFailure(ctx)
		s.releaseCart(ctx, cart.ID, log)
		return outcomeFailed
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("You left items in your cart! Use code %s for %s%% off before %s.",
			coupon.Code, coupon.Discount.String(), coupon.ExpiresAt.UTC().Format("02 Jan 2006 15:04 UTC"))
		if err := s.notifier.Notify(ctx, cart.UserID, msg, models.CategorySystem); err != nil {
			log.Warn("failed to create reminder notification", zap.Error(err))
		}
	}

	recordCount(ctx, s.metrics, s.logger, awspkg.MetricRemindersSent)
	log.Info("Abandoned cart reminder sent", zap.String("coupon_code", coupon.Code))
	return outcomeReminded
}

func (s *reminderServiceImpl) reminderEmail(cart *models.Cart, coupon *models.CouponCode) sender.ReminderEmail {
	items := make([]sender.ReminderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, sender.ReminderItem{
			Name:     item.DisplayName(),
			Quantity: item.Quantity,
			Price:    item.UnitPrice.StringFixed(2),
		})
	}
	return sender.ReminderEmail{
		UserID:     cart.UserID,
		To:         cart.User.Email,
		Name:       cart.User.DisplayName(),
		CouponCode: coupon.Code,
		Discount:   coupon.Discount.String(),
		ExpiresAt:  coupon.ExpiresAt,
		Items:      items,
		StoreURL:   s.storeURL,
	}
}

// releaseCart makes the cart eligible again after its email failed. If the revert fails the
// cart stays marked and is not reminded again.
func (s *reminderServiceImpl) releaseCart(ctx context.Context, cartID uuid.UUID, log *zap.Logger) {
	err := s.txm.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.carts.ClearReminder(ctx, cartID)
	})
	if err != nil {
		log.Error("failed to release cart after email failure", zap.Error(err))
	}
}

func (s *reminderServiceImpl) recordFailure(ctx context.Context) {
	recordCount(ctx, s.metrics, s.logger, awspkg.MetricReminderFailures)
}
