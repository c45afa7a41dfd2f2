package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squadbot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	SquadsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squadbot_squads_created_total",
			Help: "Total squads created",
		},
	)

	SquadsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squadbot_squads_deleted_total",
			Help: "Total squads deleted",
		},
	)

	MembersJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squadbot_members_joined_total",
			Help: "Total members joined across all squads",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"sender_kind"}, // "human" or "agent"
	)

	ProposalsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_commit_proposals_total",
			Help: "Total commit proposals opened",
		},
		[]string{"origin"}, // "agent_nominated" or "orchestrator_detected"
	)

	ProposalsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_commit_resolutions_total",
			Help: "Total commit proposals resolved",
		},
		[]string{"status"}, // "approved", "rejected" or "expired"
	)

	VotesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_votes_cast_total",
			Help: "Total votes cast",
		},
		[]string{"choice"},
	)

	ConvergenceDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squadbot_convergence_detections_total",
			Help: "Total organic convergence detections",
		},
	)

	ContextVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "squadbot_context_version",
			Help: "Current canonical context version per squad",
		},
		[]string{"squad_id"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "squadbot_event_subscribers",
			Help: "Currently connected event stream subscribers",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
