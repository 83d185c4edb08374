package constants

// 支付确认状态（后端 /payments/{id}/status 返回值）
const (
	PaymentStatusPending  = "pending"
	PaymentStatusAccepted = "accepted"
	PaymentStatusRejected = "rejected"
)

// 支付提供方
const (
	PaymentProviderMercadoPago = "mercadopago"
)

// MercadoPago 通知主题
const (
	NotificationTopicPayment       = "payment"
	NotificationTopicMerchantOrder = "merchant_order"
)

// 通知台账状态
const (
	NotificationStatusReceived  = "received"
	NotificationStatusForwarded = "forwarded"
	NotificationStatusFailed    = "failed"
)

// 目录资源
const (
	ResourceCategories = "categories"
	ResourceProducts   = "products"
	ResourceSuppliers  = "suppliers"
)

// CatalogResources 管理端可维护的目录资源
var CatalogResources = []string{ResourceCategories, ResourceProducts, ResourceSuppliers}

// PublicCatalogResources 前台可读的目录资源
var PublicCatalogResources = []string{ResourceCategories, ResourceProducts}

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型
const (
	TaskNotificationForward = "notification:forward"
)

// 支付凭证允许的类型
var VoucherContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"application/pdf",
}
