package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/constants"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/mercadopago"
	"github.com/lotecorto/storefront/internal/poller"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// PaymentBackend 支付相关的后端调用
type PaymentBackend interface {
	GetOrder(ctx context.Context, orderID uint) (*backend.Order, error)
	CreatePaymentSession(ctx context.Context, orderID uint) (*backend.PaymentSession, error)
	GetPaymentStatus(ctx context.Context, paymentID uint) (string, error)
	UploadVoucher(ctx context.Context, orderID uint, voucher backend.Voucher) (*backend.Payment, error)
}

// CheckoutProvider 外部结账
type CheckoutProvider interface {
	Configured() bool
	CreatePreference(ctx context.Context, input mercadopago.PreferenceInput) (*mercadopago.Preference, error)
}

// PaymentOptions 支付服务配置
type PaymentOptions struct {
	Upload         config.UploadConfig
	StatusCacheTTL time.Duration
	WaitTimeout    time.Duration
	PollerOptions  []poller.Option
}

// PaymentService 结账、支付确认轮询与凭证上传
type PaymentService struct {
	backend  PaymentBackend
	checkout CheckoutProvider
	orders   *OrderService
	store    cache.Store
	poller   *poller.Poller
	opts     PaymentOptions
}

// NewPaymentService 创建支付服务，轮询器以自身作为状态来源
func NewPaymentService(b PaymentBackend, checkout CheckoutProvider, orders *OrderService, store cache.Store, opts PaymentOptions) *PaymentService {
	if store == nil {
		store = cache.Redis()
	}
	s := &PaymentService{
		backend:  b,
		checkout: checkout,
		orders:   orders,
		store:    store,
		opts:     opts,
	}
	s.poller = poller.New(s, opts.PollerOptions...)
	return s
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CheckoutResult 结账跳转信息
type CheckoutResult struct {
	OrderID      uint   `json:"order_id"`
	PaymentID    uint   `json:"payment_id"`
	PreferenceID string `json:"preference_id"`
	RedirectURL  string `json:"redirect_url"`
}

// StartCheckout 创建支付会话与 MercadoPago 偏好，返回跳转地址及需要轮询的支付 ID
func (s *PaymentService) StartCheckout(ctx context.Context, orderID uint, payerEmail string) (*CheckoutResult, error) {
	if orderID == 0 {
		return nil, ErrInvalidOrderID
	}
	if s.checkout == nil || !s.checkout.Configured() {
		return nil, ErrCheckoutUnavailable
	}
	log := paymentLogger("order_id", orderID)

	order, err := s.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	session, err := s.backend.CreatePaymentSession(ctx, orderID)
	if err != nil {
		log.Warnw("checkout_payment_session_failed", "error", err)
		return nil, err
	}
	if session == nil || session.ID == 0 {
		return nil, fmt.Errorf("%w: empty payment session", ErrCheckoutFailed)
	}

	items := lo.FilterMap(order.Products, func(p backend.OrderProduct, _ int) (mercadopago.PreferenceItem, bool) {
		return mercadopago.PreferenceItem{
			ID:        strconv.FormatUint(uint64(p.ID), 10),
			Title:     p.Name,
			Quantity:  p.Quantity,
			UnitPrice: p.Price,
		}, p.Quantity > 0
	})
	if len(items) == 0 {
		amount := session.Amount
		if amount.IsZero() {
			amount = order.Total
		}
		items = []mercadopago.PreferenceItem{{
			ID:        strconv.FormatUint(uint64(orderID), 10),
			Title:     fmt.Sprintf("Pedido #%d", orderID),
			Quantity:  1,
			UnitPrice: amount,
		}}
	}

	pref, err := s.checkout.CreatePreference(ctx, mercadopago.PreferenceInput{
		OrderID:    orderID,
		PaymentID:  session.ID,
		Items:      items,
		PayerEmail: payerEmail,
	})
	if err != nil {
		log.Warnw("checkout_preference_failed", "payment_id", session.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	log.Infow("checkout_started", "payment_id", session.ID, "preference_id", pref.ID)
	return &CheckoutResult{
		OrderID:      orderID,
		PaymentID:    session.ID,
		PreferenceID: pref.ID,
		RedirectURL:  pref.RedirectURL,
	}, nil
}

// GetPaymentStatus 查询支付状态；终态会被缓存，非终态每次都取后端
func (s *PaymentService) GetPaymentStatus(ctx context.Context, paymentID uint) (poller.Status, error) {
	if paymentID == 0 {
		return "", ErrInvalidPaymentID
	}
	key := cache.PaymentStatusKey(paymentID)
	var cached poller.Status
	if hit, err := s.store.GetJSON(ctx, key, &cached); err == nil && hit && cached.Terminal() {
		return cached, nil
	}

	raw, err := s.backend.GetPaymentStatus(ctx, paymentID)
	if err != nil {
		return "", err
	}
	status, err := poller.ParseStatus(raw)
	if err != nil {
		// 未知状态按非终态处理，继续轮询
		paymentLogger("payment_id", paymentID).Warnw("payment_status_unknown", "status", raw)
		return poller.Status(strings.ToLower(strings.TrimSpace(raw))), nil
	}
	if status.Terminal() {
		if err := s.store.SetJSON(ctx, key, status, s.opts.StatusCacheTTL); err != nil {
			logger.Warnw("payment_status_cache_write_failed", "payment_id", paymentID, "error", err)
		}
	}
	return status, nil
}

// PaymentWaitResult 等待确认的结果
type PaymentWaitResult struct {
	PaymentID uint          `json:"payment_id"`
	OrderID   uint          `json:"order_id,omitempty"`
	Status    poller.Status `json:"status"`
}

// WaitForConfirmation 轮询直到终态；ctx 取消即停止轮询。
// accepted 时使订单视图缓存失效。
func (s *PaymentService) WaitForConfirmation(ctx context.Context, paymentID, orderID uint) (*PaymentWaitResult, error) {
	if paymentID == 0 {
		return nil, ErrInvalidPaymentID
	}
	if s.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WaitTimeout)
		defer cancel()
	}

	type outcome struct {
		status poller.Status
		err    error
	}
	results := make(chan outcome, 1)
	session := s.poller.NewSession(ctx, poller.Handlers{
		OnAccepted: func(id uint) {
			if s.orders != nil {
				s.orders.Invalidate(context.WithoutCancel(ctx), orderID)
			}
			results <- outcome{status: poller.StatusAccepted}
		},
		OnRejected: func(id uint) {
			results <- outcome{status: poller.StatusRejected}
		},
		OnError: func(id uint, err error) {
			results <- outcome{err: err}
		},
	})
	defer session.Close()

	if err := session.Start(paymentID); err != nil {
		return nil, err
	}
	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		paymentLogger("payment_id", paymentID, "order_id", orderID).Infow("payment_confirmation_finished", "status", res.status)
		return &PaymentWaitResult{PaymentID: paymentID, OrderID: orderID, Status: res.status}, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrPaymentWaitTimeout
		}
		return nil, ctx.Err()
	}
}

// UploadVoucher 校验并上传支付凭证
func (s *PaymentService) UploadVoucher(ctx context.Context, orderID uint, file *multipart.FileHeader) (*backend.Payment, error) {
	if orderID == 0 {
		return nil, ErrInvalidOrderID
	}
	if file == nil {
		return nil, ErrVoucherInvalid
	}
	if s.opts.Upload.MaxSize > 0 && file.Size > s.opts.Upload.MaxSize {
		return nil, fmt.Errorf("%w: max %d MB", ErrVoucherTooLarge, s.opts.Upload.MaxSize/1024/1024)
	}
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVoucherInvalid, err)
	}
	defer src.Close()

	contentType, err := sniffContentType(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVoucherInvalid, err)
	}
	allowed := s.opts.Upload.AllowedTypes
	if len(allowed) == 0 {
		allowed = constants.VoucherContentTypes
	}
	if !lo.ContainsBy(allowed, func(t string) bool { return strings.EqualFold(strings.TrimSpace(t), contentType) }) {
		return nil, fmt.Errorf("%w: %s", ErrVoucherTypeNotAllowed, contentType)
	}

	payment, err := s.backend.UploadVoucher(ctx, orderID, backend.Voucher{
		Filename:    filepath.Base(file.Filename),
		ContentType: contentType,
		Content:     src,
	})
	if err != nil {
		paymentLogger("order_id", orderID).Warnw("voucher_upload_failed", "error", err)
		return nil, err
	}
	if s.orders != nil {
		s.orders.Invalidate(ctx, orderID)
	}
	return payment, nil
}

// sniffContentType 读取文件头识别 MIME 类型后复位读取位置
func sniffContentType(src multipart.File) (string, error) {
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	contentType := http.DetectContentType(buffer[:n])
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType), nil
}
