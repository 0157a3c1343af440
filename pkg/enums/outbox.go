package enums

type OutboxAggregateType string

const (
	AggregateTransaction OutboxAggregateType = "transaction"
	AggregateLicense     OutboxAggregateType = "license"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateTransaction, AggregateLicense}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

type OutboxEventType string

const (
	EventCheckoutCreated     OutboxEventType = "checkout_created"
	EventTransactionSettled  OutboxEventType = "transaction_settled"
	EventTransactionFailed   OutboxEventType = "transaction_failed"
	EventSellerPayoutCreated OutboxEventType = "seller_payout_created"
	EventLicenseDeleted      OutboxEventType = "license_deleted"
)

var eventTypes = set[OutboxEventType]{
	EventCheckoutCreated,
	EventTransactionSettled,
	EventTransactionFailed,
	EventSellerPayoutCreated,
	EventLicenseDeleted,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// OutboxDLQErrorReason records why a row left the outbox for the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
