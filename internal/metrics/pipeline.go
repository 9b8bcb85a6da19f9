package metrics

// Pipeline bundles the metrics the inbound pipeline reports.
type Pipeline struct {
	RecordsReceived  *Counter
	DroppedStartup   *Counter
	DroppedStale     *Counter
	DroppedDuplicate *Counter
	DroppedMalformed *Counter
	RateLimited      *Counter
	RepliesSent      *Counter
	RepliesFallback  *Counter
	DeliveryGaveUp   *Counter
	QueueDepth       *Gauge
	DedupCacheSize   *Gauge
}

// NewPipeline registers the pipeline metrics on the collector.
func NewPipeline(c *Collector) *Pipeline {
	return &Pipeline{
		RecordsReceived:  c.Counter("barfly_records_received_total", "Records delivered by the message log."),
		DroppedStartup:   c.Counter("barfly_records_dropped_startup_total", "Records older than process start."),
		DroppedStale:     c.Counter("barfly_records_dropped_stale_total", "Records older than the max message age."),
		DroppedDuplicate: c.Counter("barfly_records_dropped_duplicate_total", "Records suppressed by the dedup filter."),
		DroppedMalformed: c.Counter("barfly_records_dropped_malformed_total", "Records with unusable payloads."),
		RateLimited:      c.Counter("barfly_rate_limited_total", "Messages rejected by the per-sender rate limiter."),
		RepliesSent:      c.Counter("barfly_replies_sent_total", "Replies confirmed by the delivery gateway."),
		RepliesFallback:  c.Counter("barfly_replies_fallback_total", "Replies produced by the rule-based fallback."),
		DeliveryGaveUp:   c.Counter("barfly_delivery_gave_up_total", "Deliveries that exhausted every path."),
		QueueDepth:       c.Gauge("barfly_queue_depth", "Records waiting in the work queue."),
		DedupCacheSize:   c.Gauge("barfly_dedup_cache_size", "Live entries in the sent-message cache."),
	}
}
