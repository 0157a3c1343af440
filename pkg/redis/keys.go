package redis

import "strings"

// Every key the service writes lives under the "bs" namespace, so a shared
// Redis can be inspected or flushed per application.
const keyNamespace = "bs"

// TransactionCodeCounter is the counter backing human-readable transaction codes.
const TransactionCodeCounter = "transaction_code"

// Key joins parts under the namespace, skipping blanks.
func Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func CounterKey(name string) string { return Key("counter", name) }

func LockKey(name string) string { return Key("lock", name) }

func RateLimitKey(scope string) string { return Key("rate_limit", scope) }

// IdempotencyKey is a method so handlers can depend on IdempotencyStore alone.
func (c *Client) IdempotencyKey(scope, id string) string {
	return Key("idempotency", scope, id)
}
