package enums

// TransactionStatus tracks where a transaction sits in the settlement lifecycle.
type TransactionStatus string

const (
	TransactionStatusWait    TransactionStatus = "wait"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFail    TransactionStatus = "fail"
	// TransactionStatusVary marks an in-progress gateway state that must be polled again.
	TransactionStatusVary TransactionStatus = "vary"
)

var transactionStatuses = set[TransactionStatus]{
	TransactionStatusWait, TransactionStatusSuccess, TransactionStatusFail, TransactionStatusVary,
}

func (s TransactionStatus) String() string { return string(s) }

func (s TransactionStatus) IsValid() bool { return transactionStatuses.has(s) }

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFail
}

func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	return transactionStatuses.parse("transaction status", raw)
}

// TransactionType maps to the transaction_type enum.
type TransactionType string

const (
	TransactionTypeBeatsPurchase TransactionType = "beats_purchase"
	TransactionTypeBeatsSell     TransactionType = "beats_sell"
	TransactionTypeTax           TransactionType = "tax"
	TransactionTypeSubscription  TransactionType = "subscription"
)

var transactionTypes = set[TransactionType]{
	TransactionTypeBeatsPurchase, TransactionTypeBeatsSell, TransactionTypeTax, TransactionTypeSubscription,
}

func (t TransactionType) String() string { return string(t) }

func (t TransactionType) IsValid() bool { return transactionTypes.has(t) }

func ParseTransactionType(raw string) (TransactionType, error) {
	return transactionTypes.parse("transaction type", raw)
}

// LedgerEventType maps to ledger_event_type_enum.
type LedgerEventType string

const (
	LedgerEventTypeSaleCredited   LedgerEventType = "sale_credited"
	LedgerEventTypeTaxCollected   LedgerEventType = "tax_collected"
	LedgerEventTypeCheckoutFailed LedgerEventType = "checkout_failed"
)

var ledgerEventTypes = set[LedgerEventType]{
	LedgerEventTypeSaleCredited, LedgerEventTypeTaxCollected, LedgerEventTypeCheckoutFailed,
}

func (t LedgerEventType) IsValid() bool { return ledgerEventTypes.has(t) }
