package orders

const (
	TopicOrderCreated       = "order.created"
	TopicCompensationFailed = "order.compensation.failed"
)

// Partition key = user_id for order events, product_id for compensations.
func PartitionKey(id string) []byte { return []byte(id) }
