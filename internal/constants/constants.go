package constants

// 用户角色常量
const (
	UserRoleAffiliate = "affiliate"
	UserRoleBusiness  = "business"
	UserRoleAdmin     = "admin"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 销售状态常量
const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

// 支付流水状态常量
const (
	PaymentTxnStatusPending   = "pending"
	PaymentTxnStatusCompleted = "completed"
	PaymentTxnStatusFailed    = "failed"
)

// 支付提供方常量
const (
	PaymentProviderFlutterwave = "flutterwave"
)

// 结算触发来源常量
const (
	SettlementTriggerWebhook     = "webhook"
	SettlementTriggerVerify      = "verify"
	SettlementTriggerCallback    = "callback"
	SettlementTriggerExpirySweep = "expiry_sweep"
)

// 钱包流水类型常量
const (
	WalletTxnTypeCommission      = "commission"
	WalletTxnTypeBusinessRevenue = "business_revenue"
	WalletTxnTypeWithdrawal      = "withdrawal"
	WalletTxnTypeAdjustment      = "adjustment"
	WalletTxnTypePurgeReversal   = "purge_reversal"
)

// 钱包流水方向常量
const (
	WalletTxnDirectionIn  = "in"
	WalletTxnDirectionOut = "out"
)

// 提现状态常量
const (
	WithdrawStatusPending   = "pending"
	WithdrawStatusApproved  = "approved"
	WithdrawStatusRejected  = "rejected"
	WithdrawStatusCompleted = "completed"
)

// 提现审核动作常量
const (
	WithdrawActionApprove  = "approve"
	WithdrawActionReject   = "reject"
	WithdrawActionComplete = "complete"
)

// 对账任务步骤常量
const (
	ReconcileStepAffiliateCredit     = "affiliate_credit"
	ReconcileStepBusinessCredit      = "business_credit"
	ReconcileStepConversionIncrement = "conversion_increment"
	ReconcileStepLatePayment         = "late_payment"
	ReconcileStepPaymentMismatch     = "payment_mismatch"
)

// 对账任务状态常量
const (
	ReconcileStatusOpen     = "open"
	ReconcileStatusResolved = "resolved"
	ReconcileStatusManual   = "manual"
)

// 通知类型常量
const (
	NotificationTypeCommissionEarned   = "commission_earned"
	NotificationTypeSaleCompleted      = "sale_completed"
	NotificationTypePaymentReceipt     = "payment_receipt"
	NotificationTypeWithdrawalApproved = "withdrawal_approved"
	NotificationTypeWithdrawalRejected = "withdrawal_rejected"
	NotificationTypeWithdrawalComplete = "withdrawal_completed"
)

// Flutterwave 事件与状态常量
const (
	FlutterwaveEventChargeCompleted = "charge.completed"
	FlutterwaveStatusSuccessful     = "successful"
	FlutterwaveStatusCancelled      = "cancelled"
	FlutterwaveStatusFailed         = "failed"
	FlutterwaveStatusPending        = "pending"
)

// 队列常量
const (
	QueueDefault             = "default"
	QueueCritical            = "critical"
	TaskNotificationDispatch = "notification:dispatch"
	TaskSettlementReconcile  = "settlement:reconcile"
	TaskSaleExpireCheck      = "sale:expire_check"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "afs"
)

// 默认业务参数
const (
	DefaultCurrency            = "NGN"
	DefaultPlatformFeeRate     = "0.05"
	DefaultWithdrawMinAmount   = "1000"
	DefaultAccountNumberLength = 10
	ReferralCodeLength         = 8
	ReferralCodeAlphabet       = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	TxRefPrefix                = "AFS"
)
