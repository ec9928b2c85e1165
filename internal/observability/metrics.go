package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_enqueue_total", Help: "Publish job enqueue results"},
		[]string{"result"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_dispatch_total", Help: "Publish job outcomes"},
		[]string{"target", "result"},
	)
	BotSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_bot_send_total", Help: "Bot API send outcomes"},
		[]string{"result", "http_status"},
	)
	BotSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "telepost_bot_send_latency_seconds", Help: "Bot API send latency"},
	)
	FanoutRecipients = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_fanout_recipients_total", Help: "Per-recipient fan-out outcomes"},
		[]string{"result"},
	)
	FanoutPauses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "telepost_fanout_pauses_total", Help: "Pacing pauses during fan-out"},
	)
	ChannelResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_channel_resolutions_total", Help: "Channel handle resolutions"},
		[]string{"result"},
	)
	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telepost_auth_events_total", Help: "Session auth state machine events"},
		[]string{"event"},
	)
	ParsedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "telepost_parsed_messages_total", Help: "Messages persisted by the history puller"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Enqueues, Dispatches, BotSend, BotSendLatency,
		FanoutRecipients, FanoutPauses, ChannelResolutions, AuthEvents, ParsedMessages)
}
