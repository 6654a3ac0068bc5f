package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil *Collector 的所有 Record 方法都是空操作。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 转发指标（父 Bot → Skill）
	forwardsTotal      *prometheus.CounterVec
	forwardDuration    *prometheus.HistogramVec
	repliesDelivered   *prometheus.CounterVec
	tokenExchanges     *prometheus.CounterVec
	dialogTransitions  *prometheus.CounterVec
	remoteCancelsTotal *prometheus.CounterVec

	// Skill 端指标
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	activitiesQueued   *prometheus.CounterVec
	protocolDispatches *prometheus.CounterVec

	// 会话状态存储指标
	stateHits   *prometheus.CounterVec
	stateMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 转发指标
	c.forwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_forwards_total",
			Help:      "Total number of activities forwarded to skills",
		},
		[]string{"skill_id", "status"},
	)

	c.forwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "skill_forward_duration_seconds",
			Help:      "Skill round trip duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"skill_id"},
	)

	c.repliesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_replies_delivered_total",
			Help:      "Total number of skill reply activities delivered to conversations",
		},
		[]string{"skill_id", "type"},
	)

	c.tokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_token_exchanges_total",
			Help:      "Total number of mid-conversation token requests handled",
		},
		[]string{"skill_id", "outcome"}, // outcome: token, no_token, error
	)

	c.dialogTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_dialog_transitions_total",
			Help:      "Total number of skill dialog state transitions",
		},
		[]string{"skill_id", "from_state", "to_state"},
	)

	c.remoteCancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_remote_cancels_total",
			Help:      "Total number of cancel-all-dialogs signals sent to skills",
		},
		[]string{"skill_id", "status"},
	)

	// Skill 端指标
	c.invocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_invocations_total",
			Help:      "Total number of invocations handled by this skill",
		},
		[]string{"channel", "status"},
	)

	c.invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "skill_invocation_duration_seconds",
			Help:      "Invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	c.activitiesQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_activities_queued_total",
			Help:      "Total number of outbound activities queued or filtered during invocations",
		},
		[]string{"type", "result"}, // result: queued, filtered
	)

	c.protocolDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_protocol_dispatches_total",
			Help:      "Total number of fine-grained protocol calls dispatched",
		},
		[]string{"method", "route", "status"},
	)

	// 状态存储指标
	c.stateHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_state_hits_total",
			Help:      "Total number of dialog state lookups that found an instance",
		},
		[]string{"store"},
	)

	c.stateMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_state_misses_total",
			Help:      "Total number of dialog state lookups without an instance",
		},
		[]string{"store"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 📨 转发指标记录
// =============================================================================

// RecordForward 记录一次 HTTP 往返。status 为 HTTP 状态码，0 表示请求未完成。
func (c *Collector) RecordForward(skillID string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.forwardsTotal.WithLabelValues(skillID, statusCode(status)).Inc()
	c.forwardDuration.WithLabelValues(skillID).Observe(duration.Seconds())
}

// RecordReplyDelivered 记录投递到会话的回复活动
func (c *Collector) RecordReplyDelivered(skillID, activityType string) {
	if c == nil {
		return
	}
	c.repliesDelivered.WithLabelValues(skillID, activityType).Inc()
}

// RecordTokenExchange 记录令牌交换结果
func (c *Collector) RecordTokenExchange(skillID, outcome string) {
	if c == nil {
		return
	}
	c.tokenExchanges.WithLabelValues(skillID, outcome).Inc()
}

// RecordDialogTransition 记录 Skill 会话状态转换
func (c *Collector) RecordDialogTransition(skillID, fromState, toState string) {
	if c == nil {
		return
	}
	c.dialogTransitions.WithLabelValues(skillID, fromState, toState).Inc()
}

// RecordRemoteCancel 记录取消信号发送结果
func (c *Collector) RecordRemoteCancel(skillID string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.remoteCancelsTotal.WithLabelValues(skillID, status).Inc()
}

// =============================================================================
// 🛠️ Skill 端指标记录
// =============================================================================

// RecordInvocation 记录一次调用
func (c *Collector) RecordInvocation(channel string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.invocationsTotal.WithLabelValues(channel, statusCode(status)).Inc()
	c.invocationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordActivityQueued 记录出站活动入队或被过滤
func (c *Collector) RecordActivityQueued(activityType string, queued bool) {
	if c == nil {
		return
	}
	result := "queued"
	if !queued {
		result = "filtered"
	}
	c.activitiesQueued.WithLabelValues(activityType, result).Inc()
}

// RecordProtocolDispatch 记录细粒度协议调用
func (c *Collector) RecordProtocolDispatch(method, route string, status int) {
	if c == nil {
		return
	}
	c.protocolDispatches.WithLabelValues(method, route, statusCode(status)).Inc()
}

// =============================================================================
// 💾 状态存储指标记录
// =============================================================================

// RecordStateLookup 记录会话状态查找
func (c *Collector) RecordStateLookup(store string, found bool) {
	if c == nil {
		return
	}
	if found {
		c.stateHits.WithLabelValues(store).Inc()
		return
	}
	c.stateMisses.WithLabelValues(store).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
