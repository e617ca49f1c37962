package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"sync"

	"github.com/go-redis/redis/v7"

	"github.com/solbot/core/common"
	"github.com/solbot/core/log"
	"github.com/solbot/core/metrics"
)

// TopicKey names a logsSubscribe topic. ClusterRuntime itself is
// agnostic to what the keys mean — Router interprets them.
type TopicKey string

const (
	TopicRaydium TopicKey = "raydium"
	TopicPumpfun TopicKey = "pumpfun"
)

var (
	poolInitRe  = regexp.MustCompile(`(?i)initialize2|initialize`)
	tradeLogRe  = regexp.MustCompile(`(?i)buy|sell|create|initialize`)
)

// passesLogHeuristic is the cheap pre-RPC filter applied before a
// signal is handed to the router: only signals that pass this proceed.
func passesLogHeuristic(topic TopicKey, logs []string) bool {
	var re *regexp.Regexp
	switch topic {
	case TopicRaydium:
		re = poolInitRe
	case TopicPumpfun:
		re = tradeLogRe
	default:
		return false
	}
	for _, line := range logs {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// rpcRequest / rpcNotification mirror the JSON-RPC 2.0 shapes used by
// Solana's logsSubscribe / logsNotification.
type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type logsFilter struct {
	Mentions []string `json:"mentions"`
}

type subscribeParams struct {
	Commitment string `json:"commitment"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type notificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       notificationVal `json:"result"`
}

type notificationVal struct {
	Value struct {
		Signature string   `json:"signature"`
		Logs      []string `json:"logs"`
	} `json:"value"`
}

// ClusterRuntime owns everything tied to one cluster's WebSocket: the
// connection itself, subscription bookkeeping, the signature dedup
// set, the cluster-level log ring, and the owner->Session index. It
// never points back to Session's owner — the only pointer direction
// is ClusterRuntime -> Session.
type ClusterRuntime struct {
	cluster common.Cluster

	wsFactory func(ctx context.Context) (ClusterWsClient, error)

	mu          sync.Mutex // guards everything below; single-writer per cluster
	ws          ClusterWsClient
	subByKey    map[TopicKey]int64
	keyBySub    map[int64]TopicKey
	pendingReqs map[int64]TopicKey

	dedup *signatureDedup
	logs  *common.LogRing

	sessionsMu sync.Mutex
	sessions   map[string]*Session

	notifyCh chan routedNotification

	logger log.Logger
}

type routedNotification struct {
	Topic     TopicKey
	Signature string
	Logs      []string
}

func newClusterRuntime(cluster common.Cluster, wsFactory func(ctx context.Context) (ClusterWsClient, error), shared *redis.Client) *ClusterRuntime {
	return &ClusterRuntime{
		cluster:   cluster,
		wsFactory: wsFactory,
		dedup:     newSignatureDedup().withSharedStore(shared),
		logs:      common.NewLogRing(logRingCap),
		sessions:  make(map[string]*Session),
		notifyCh:  make(chan routedNotification, 1024),
		logger:    log.NewModuleLogger(log.ClusterStream).With("cluster", string(cluster)),
	}
}

func (c *ClusterRuntime) appendLog(level, msg string) {
	c.logs.Append(common.LogLine{TimeMs: nowMs(), Level: level, Message: msg})
}

// sessionFor looks up or lazily creates the Session for owner.
// Lookup-or-create is atomic under sessionsMu.
func (c *ClusterRuntime) sessionFor(owner string) *Session {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	s, ok := c.sessions[owner]
	if !ok {
		s = newSession(owner, c.cluster)
		c.sessions[owner] = s
	}
	return s
}

func (c *ClusterRuntime) allSessions() []*Session {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

func (c *ClusterRuntime) anyRunning() bool {
	for _, s := range c.allSessions() {
		if s.Snapshot().Running {
			return true
		}
	}
	return false
}

// EnsureSubscription idempotently opens the cluster's single
// WebSocket and subscribes to every topic in topics. A no-op if
// already open.
func (c *ClusterRuntime) EnsureSubscription(ctx context.Context, topics map[TopicKey]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return nil
	}

	ws, err := c.wsFactory(ctx)
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}

	c.subByKey = make(map[TopicKey]int64)
	c.keyBySub = make(map[int64]TopicKey)
	c.pendingReqs = make(map[int64]TopicKey)

	ws.OnMessage(c.handleMessage)
	ws.OnClose(c.handleClose)
	ws.OnError(func(err error) {
		c.logger.Warn("ws error", "err", err)
		c.appendLog("warn", fmt.Sprintf("ws error: %v", err))
	})

	if err := ws.Open(ctx); err != nil {
		return fmt.Errorf("ws open: %w", err)
	}
	c.ws = ws
	metrics.ClusterConnections.WithLabelValues(string(c.cluster)).Set(1)

	for topic, programID := range topics {
		id := rand.Int63()
		c.pendingReqs[id] = topic
		req := rpcRequest{
			Jsonrpc: "2.0",
			ID:      id,
			Method:  "logsSubscribe",
			Params: []interface{}{
				logsFilter{Mentions: []string{programID}},
				subscribeParams{Commitment: "processed"},
			},
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal subscribe: %w", err)
		}
		if err := ws.Send(ctx, payload); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
	}

	c.logger.Info("subscription ensured", "topics", len(topics))
	c.appendLog("info", "subscription ensured")
	return nil
}

// TeardownIfIdle closes the connection and clears subscription state
// if no session in the cluster remains running.
func (c *ClusterRuntime) TeardownIfIdle() {
	if c.anyRunning() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return
	}
	_ = c.ws.Close()
	c.ws = nil
	c.subByKey = nil
	c.keyBySub = nil
	c.pendingReqs = nil
	metrics.ClusterConnections.WithLabelValues(string(c.cluster)).Set(0)
	c.logger.Info("torn down idle cluster connection")
	c.appendLog("info", "torn down idle cluster connection")
}

func (c *ClusterRuntime) handleClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws = nil
	c.subByKey = nil
	c.keyBySub = nil
	c.pendingReqs = nil
	metrics.ClusterConnections.WithLabelValues(string(c.cluster)).Set(0)
	c.logger.Warn("ws closed")
	c.appendLog("warn", "ws closed")
}

// handleMessage is the single entry point for all inbound WebSocket
// frames. Malformed JSON, missing signature, empty logs, and unknown
// subscription ids are all dropped silently.
func (c *ClusterRuntime) handleMessage(raw []byte) {
	var msg rpcResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	if msg.Method == "logsNotification" {
		c.handleNotification(msg.Params)
		return
	}

	if msg.ID != nil && len(msg.Result) > 0 {
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		c.mu.Lock()
		topic, ok := c.pendingReqs[*msg.ID]
		if ok {
			delete(c.pendingReqs, *msg.ID)
			c.subByKey[topic] = subID
			c.keyBySub[subID] = topic
		}
		c.mu.Unlock()
	}
}

func (c *ClusterRuntime) handleNotification(raw json.RawMessage) {
	var params notificationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}

	c.mu.Lock()
	topic, ok := c.keyBySub[params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	sig := params.Result.Value.Signature
	logs := params.Result.Value.Logs
	if sig == "" || len(logs) == 0 {
		return
	}

	if !c.dedup.Add(sig) {
		return
	}

	if !passesLogHeuristic(topic, logs) {
		return
	}

	notif := routedNotification{Topic: topic, Signature: sig, Logs: logs}
	select {
	case c.notifyCh <- notif:
	default:
		c.logger.Warn("dispatch channel full, dropping signal", "signature", sig)
		c.appendLog("warn", "dispatch channel full, dropping signal "+sig)
	}
}

// Notifications exposes the channel the cluster dispatcher drains.
// The log-stream reader never blocks on per-session work; it hands
// off via this bounded channel instead.
func (c *ClusterRuntime) Notifications() <-chan routedNotification {
	return c.notifyCh
}
