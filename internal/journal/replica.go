package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fxsim/paperbroker/internal/model"
)

// replicaStream is the Redis stream the replica publisher appends to.
const replicaStream = "paperbroker:journal"

// Event is one replicated journal record.
type Event struct {
	Kind    string    `json:"kind"` // order | fill | position_open | position_close | snapshot
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// RedisReplica ships journal events to a remote Redis stream,
// best-effort and asynchronous. A replica failure is logged and the
// event re-queued for a later flush; it never blocks or rolls back a
// local write.
type RedisReplica struct {
	rdb *redis.Client

	mu      sync.Mutex
	backlog []Event

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRedisReplica creates a replica publisher. Run must be started in a
// goroutine before events flow.
func NewRedisReplica(rdb *redis.Client) *RedisReplica {
	return &RedisReplica{
		rdb:    rdb,
		events: make(chan Event, 1024),
		done:   make(chan struct{}),
	}
}

// Run drains the event channel, publishing to the stream and retrying
// the backlog on a timer. Returns when Stop is called.
func (r *RedisReplica) Run() {
	r.wg.Add(1)
	defer r.wg.Done()

	flush := time.NewTicker(5 * time.Second)
	defer flush.Stop()

	for {
		select {
		case ev := <-r.events:
			r.publish(ev)
		case <-flush.C:
			r.flushBacklog()
		case <-r.done:
			// Final drain; anything unsent stays in the backlog and is
			// reported as lost-to-replica, which is acceptable by
			// contract.
			for {
				select {
				case ev := <-r.events:
					r.publish(ev)
				default:
					r.flushBacklog()
					return
				}
			}
		}
	}
}

// Stop shuts the publisher down after a final best-effort drain.
func (r *RedisReplica) Stop() {
	close(r.done)
	r.wg.Wait()
}

// Enqueue hands an event to the publisher without blocking. Dropped to
// the backlog if the channel is full.
func (r *RedisReplica) Enqueue(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.mu.Lock()
		r.backlog = append(r.backlog, ev)
		r.mu.Unlock()
	}
}

func (r *RedisReplica) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("replica marshal failed", "kind", ev.Kind, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: replicaStream,
		Values: map[string]any{"event": string(data)},
	}).Err()
	if err != nil {
		slog.Warn("replica publish failed, queued for retry", "kind", ev.Kind, "err", err)
		r.mu.Lock()
		r.backlog = append(r.backlog, ev)
		r.mu.Unlock()
	}
}

func (r *RedisReplica) flushBacklog() {
	r.mu.Lock()
	pending := r.backlog
	r.backlog = nil
	r.mu.Unlock()

	for _, ev := range pending {
		r.publish(ev)
	}
}

// ReplicatedJournal wraps a primary Journal and fans every successful
// local write out to the replica. The local write is authoritative: a
// replica failure never surfaces to the caller.
type ReplicatedJournal struct {
	primary Journal
	replica *RedisReplica
}

// NewReplicatedJournal creates the replicating decorator.
func NewReplicatedJournal(primary Journal, replica *RedisReplica) *ReplicatedJournal {
	return &ReplicatedJournal{primary: primary, replica: replica}
}

func (j *ReplicatedJournal) RecordOrder(ctx context.Context, order model.Order) error {
	if err := j.primary.RecordOrder(ctx, order); err != nil {
		return err
	}
	j.replica.Enqueue(Event{Kind: "order", Payload: order, Time: time.Now().UTC()})
	return nil
}

func (j *ReplicatedJournal) RecordFill(ctx context.Context, fill model.Fill) error {
	if err := j.primary.RecordFill(ctx, fill); err != nil {
		return err
	}
	j.replica.Enqueue(Event{Kind: "fill", Payload: fill, Time: time.Now().UTC()})
	return nil
}

func (j *ReplicatedJournal) RecordPositionOpen(ctx context.Context, pos model.Position) error {
	if err := j.primary.RecordPositionOpen(ctx, pos); err != nil {
		return err
	}
	j.replica.Enqueue(Event{Kind: "position_open", Payload: pos, Time: time.Now().UTC()})
	return nil
}

func (j *ReplicatedJournal) RecordPositionClose(ctx context.Context, pos model.Position, trade model.Trade) error {
	if err := j.primary.RecordPositionClose(ctx, pos, trade); err != nil {
		return err
	}
	j.replica.Enqueue(Event{Kind: "position_close", Payload: trade, Time: time.Now().UTC()})
	return nil
}

func (j *ReplicatedJournal) RecordSnapshot(ctx context.Context, state model.AccountState) error {
	if err := j.primary.RecordSnapshot(ctx, state); err != nil {
		return err
	}
	j.replica.Enqueue(Event{Kind: "snapshot", Payload: state, Time: time.Now().UTC()})
	return nil
}

func (j *ReplicatedJournal) QueryTrades(ctx context.Context, filter TradeFilter) ([]model.Trade, error) {
	return j.primary.QueryTrades(ctx, filter)
}

func (j *ReplicatedJournal) QueryOpenPositions(ctx context.Context) ([]model.Position, error) {
	return j.primary.QueryOpenPositions(ctx)
}
