package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"settlement-service/models"
	"settlement-service/sender"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

// --- Transactions ---

type fakeTx struct{}

func (fakeTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// --- Coupon repository ---

type fakeCouponRepo struct {
	mu          sync.Mutex
	coupons     map[uuid.UUID]*models.CouponCode
	redemptions []*models.CouponRedemption
}

func newFakeCouponRepo(coupons ...*models.CouponCode) *fakeCouponRepo {
	r := &fakeCouponRepo{coupons: make(map[uuid.UUID]*models.CouponCode)}
	for _, c := range coupons {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		cp := *c
		r.coupons[c.ID] = &cp
	}
	return r
}

func (r *fakeCouponRepo) byCode(code string) *models.CouponCode {
	for _, c := range r.coupons {
		if c.Code == code {
			return c
		}
	}
	return nil
}

// get returns a snapshot of the stored coupon, for assertions.
func (r *fakeCouponRepo) get(code string) *models.CouponCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.byCode(code)
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (r *fakeCouponRepo) openRedemptions(cartID uuid.UUID) []models.CouponRedemption {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CouponRedemption
	for _, red := range r.redemptions {
		if red.CartID == cartID && red.OrderID == nil {
			out = append(out, *red)
		}
	}
	return out
}

func (r *fakeCouponRepo) Create(_ context.Context, c *models.CouponCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(c)
}

func (r *fakeCouponRepo) create(c *models.CouponCode) error {
	if r.byCode(c.Code) != nil {
		return gorm.ErrDuplicatedKey
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.coupons[c.ID] = &cp
	return nil
}

func (r *fakeCouponRepo) CreateIfAbsent(_ context.Context, c *models.CouponCode) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byCode(c.Code) != nil {
		return false, nil
	}
	return true, r.create(c)
}

func (r *fakeCouponRepo) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byCode(code) != nil, nil
}

func (r *fakeCouponRepo) FindByID(_ context.Context, id uuid.UUID) (*models.CouponCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) FindByCode(_ context.Context, code string) (*models.CouponCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.byCode(code)
	if c == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) List(_ context.Context, _, _ int) ([]models.CouponCode, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CouponCode
	for _, c := range r.coupons {
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (r *fakeCouponRepo) ListAvailable(_ context.Context, userID uuid.UUID, now time.Time) ([]models.CouponCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CouponCode
	for _, c := range r.coupons {
		if c.IsActive && !c.Used && c.ExpiresAt.After(now) && !c.Exhausted() && c.RedeemableBy(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCouponRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coupons[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.coupons, id)
	return nil
}

func (r *fakeCouponRepo) Claim(_ context.Context, couponID, cartID, userID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok || c.Used || !c.IsActive || !c.ExpiresAt.After(now) || c.Exhausted() || !c.RedeemableBy(userID) {
		return false, nil
	}
	c.Used = true
	c.CartID = uuidPtr(cartID)
	return true, nil
}

func (r *fakeCouponRepo) ReleaseOthers(_ context.Context, cartID, keepID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.coupons {
		if c.CartID != nil && *c.CartID == cartID && c.Used && c.ID != keepID && !c.Exhausted() {
			c.Used = false
			c.CartID = nil
			n++
		}
	}
	return n, nil
}

func (r *fakeCouponRepo) Rearm(_ context.Context, id uuid.UUID, discount decimal.Decimal, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok || c.Used || c.RedeemCount != 0 {
		return false, nil
	}
	c.Discount = discount
	c.ExpiresAt = expiresAt
	c.IsActive = true
	return true, nil
}

func (r *fakeCouponRepo) IncrementRedeemCount(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok || c.Exhausted() {
		return false, nil
	}
	c.RedeemCount++
	if c.Exhausted() {
		c.ShowOnHomepage = false
		c.Used = true
	} else {
		c.Used = false
		c.CartID = nil
	}
	return true, nil
}

func (r *fakeCouponRepo) Sweep(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.coupons {
		if c.ExpiresAt.Before(now) && !c.Used && c.RedeemCount == 0 && c.MaxRedeemCount == 1 &&
			!c.ShowOnHomepage && c.IsActive && c.IsAbandonedCartCoupon() {
			delete(r.coupons, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeCouponRepo) UpsertRedemption(_ context.Context, red *models.CouponRedemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.redemptions {
		if existing.CouponID == red.CouponID && existing.CartID == red.CartID {
			return nil
		}
	}
	cp := *red
	cp.ID = uuid.New()
	r.redemptions = append(r.redemptions, &cp)
	return nil
}

func (r *fakeCouponRepo) DeleteOpenRedemptions(_ context.Context, cartID, keepCouponID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.redemptions[:0]
	for _, red := range r.redemptions {
		if red.CartID == cartID && red.OrderID == nil && red.CouponID != keepCouponID {
			continue
		}
		kept = append(kept, red)
	}
	r.redemptions = kept
	return nil
}

func (r *fakeCouponRepo) FindOpenRedemption(_ context.Context, couponID, cartID uuid.UUID) (*models.CouponRedemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, red := range r.redemptions {
		if red.CouponID == couponID && red.CartID == cartID && red.OrderID == nil {
			cp := *red
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCouponRepo) FindRedemption(_ context.Context, couponID, cartID uuid.UUID) (*models.CouponRedemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, red := range r.redemptions {
		if red.CouponID == couponID && red.CartID == cartID {
			cp := *red
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCouponRepo) LinkRedemption(_ context.Context, couponID, cartID, orderID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, red := range r.redemptions {
		if red.CouponID == couponID && red.CartID == cartID && red.OrderID == nil {
			red.OrderID = uuidPtr(orderID)
			return true, nil
		}
	}
	return false, nil
}

// --- Cart repository ---

type fakeCartRepo struct {
	mu         sync.Mutex
	carts      map[uuid.UUID]*models.Cart
	abandoned  map[uuid.UUID][]models.AbandonedCartItem
	discounted map[uuid.UUID]decimal.Decimal
	markErr    error
}

func newFakeCartRepo(carts ...*models.Cart) *fakeCartRepo {
	r := &fakeCartRepo{
		carts:      make(map[uuid.UUID]*models.Cart),
		abandoned:  make(map[uuid.UUID][]models.AbandonedCartItem),
		discounted: make(map[uuid.UUID]decimal.Decimal),
	}
	for _, c := range carts {
		r.carts[c.ID] = c
	}
	return r
}

func (r *fakeCartRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCartRepo) FindAbandoned(_ context.Context, cutoff time.Time, limit int) ([]models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Cart
	for _, c := range r.carts {
		if c.UpdatedAt.Before(cutoff) && c.ReminderCount == 0 && len(c.Items) > 0 && c.User != nil && !c.User.IsGuest {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeCartRepo) MarkReminded(_ context.Context, cartID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return false, r.markErr
	}
	c, ok := r.carts[cartID]
	if !ok || c.ReminderCount != 0 {
		return false, nil
	}
	c.ReminderCount = 1
	c.LastReminderAt = &at
	return true, nil
}

func (r *fakeCartRepo) ClearReminder(_ context.Context, cartID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.abandoned, cartID)
	if c, ok := r.carts[cartID]; ok && c.ReminderCount == 1 {
		c.ReminderCount = 0
		c.LastReminderAt = nil
	}
	return nil
}

func (r *fakeCartRepo) SaveAbandonedItems(_ context.Context, items []models.AbandonedCartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.abandoned[item.CartID] = append(r.abandoned[item.CartID], item)
	}
	return nil
}

func (r *fakeCartRepo) ListAbandonedItems(_ context.Context, cartID uuid.UUID) ([]models.AbandonedCartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abandoned[cartID], nil
}

func (r *fakeCartRepo) SetDiscountedTotal(_ context.Context, cartID uuid.UUID, total decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[cartID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.discounted[cartID] = total
	return nil
}

// --- Config repository ---

type fakeConfigRepo struct {
	pincodes map[string]*models.Pincode
	settings *models.CompanySettings
	taxRates []models.TaxRate
	shipping []models.ShippingRate
	tiers    []models.AbandonedCartSetting
}

func (r *fakeConfigRepo) FindPincode(_ context.Context, code string) (*models.Pincode, error) {
	p, ok := r.pincodes[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *fakeConfigRepo) GetCompanySettings(_ context.Context) (*models.CompanySettings, error) {
	if r.settings == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.settings, nil
}

func (r *fakeConfigRepo) ListActiveTaxRates(_ context.Context) ([]models.TaxRate, error) {
	return r.taxRates, nil
}

func (r *fakeConfigRepo) ListActiveShippingRates(_ context.Context) ([]models.ShippingRate, error) {
	return r.shipping, nil
}

func (r *fakeConfigRepo) ListActiveReminderTiers(_ context.Context) ([]models.AbandonedCartSetting, error) {
	return r.tiers, nil
}

// defaultConfig is a Maharashtra merchant with 9+9 intra-state and 18 inter-state GST.
func defaultConfig() *fakeConfigRepo {
	return &fakeConfigRepo{
		pincodes: map[string]*models.Pincode{
			"400001": {Code: "400001", City: "Mumbai", State: "Maharashtra", EstimatedDeliveryDays: 2, IsActive: true},
			"560001": {Code: "560001", City: "Bengaluru", State: " karnataka ", EstimatedDeliveryDays: 4, IsActive: true},
			"110001": {Code: "110001", City: "New Delhi", State: "Delhi", EstimatedDeliveryDays: 5, IsActive: true},
		},
		settings: &models.CompanySettings{CompanyName: "Acme", CompanyState: "Maharashtra"},
		taxRates: []models.TaxRate{
			{Name: models.TaxCGST, Percentage: dec("9"), IsActive: true},
			{Name: models.TaxSGST, Percentage: dec("9"), IsActive: true},
			{Name: models.TaxIGST, Percentage: dec("18"), IsActive: true},
		},
		shipping: []models.ShippingRate{
			{State: "Maharashtra", IntraStateRate: dec("40"), InterStateRate: dec("80"), IsActive: true},
			{State: "Karnataka", IntraStateRate: dec("50"), InterStateRate: dec("90"), IsActive: true},
		},
	}
}

// --- Order and user repositories ---

type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*models.Order
	payments map[uuid.UUID]*models.Payment
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   make(map[uuid.UUID]*models.Order),
		payments: make(map[uuid.UUID]*models.Payment),
	}
}

func (r *fakeOrderRepo) CreatePayment(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.GatewayOrderID != "" {
		for _, existing := range r.orders {
			if existing.GatewayOrderID == o.GatewayOrderID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) withPayment(o *models.Order) *models.Order {
	cp := *o
	if p, ok := r.payments[o.PaymentID]; ok {
		pc := *p
		cp.Payment = &pc
	}
	return &cp
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.withPayment(o), nil
}

func (r *fakeOrderRepo) FindByGatewayOrderID(_ context.Context, ref string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.GatewayOrderID == ref {
			return r.withPayment(o), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrderRepo) FindByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) FindAll(_ context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if filter.Status == "" || o.Status == filter.Status {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = status
	return nil
}

func (r *fakeOrderRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r *fakeOrderRepo) MarkPaymentSucceeded(_ context.Context, paymentID uuid.UUID, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok || p.Status == models.PaymentStatusSuccess {
		return false, nil
	}
	p.Status = models.PaymentStatusSuccess
	if transactionID != "" {
		p.TransactionID = &transactionID
	}
	return true, nil
}

type fakeUserRepo struct {
	users     map[uuid.UUID]*models.User
	addresses map[uuid.UUID]*models.Address
}

func (r *fakeUserRepo) FindUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindAddress(_ context.Context, id uuid.UUID) (*models.Address, error) {
	a, ok := r.addresses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

// --- Outbound collaborators ---

type sentNotification struct {
	UserID   uuid.UUID
	Message  string
	Category models.NotificationCategory
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, message string, category models.NotificationCategory) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Message: message, Category: category})
	return nil
}

type fakeMailer struct {
	mu          sync.Mutex
	orders      []sender.OrderConfirmationEmail
	reminders   []sender.ReminderEmail
	reminderErr error
}

func (m *fakeMailer) SendOrderConfirmation(_ context.Context, data sender.OrderConfirmationEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, data)
	return nil
}

func (m *fakeMailer) SendAbandonedCartReminder(_ context.Context, data sender.ReminderEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reminderErr != nil {
		return m.reminderErr
	}
	m.reminders = append(m.reminders, data)
	return nil
}

type fakeSNS struct {
	mu       sync.Mutex
	messages [][]byte
}

func (f *fakeSNS) Publish(_ context.Context, _ string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, append([]byte(nil), message...))
	return nil
}

func (f *fakeSNS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	values map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: make(map[string]int), values: make(map[string]float64)}
}

func (m *fakeMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

func (m *fakeMetrics) RecordLatency(_ context.Context, _ string, _ time.Duration, _ map[string]string) error {
	return nil
}

func (m *fakeMetrics) RecordValue(_ context.Context, name string, v float64, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] += v
	return nil
}

func (m *fakeMetrics) IsEnabled() bool { return true }

func (m *fakeMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}
