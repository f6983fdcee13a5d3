package device

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/resolver"
)

// State is the model-serving state of one edge device.
type State struct {
	mu            sync.Mutex
	weights       string
	weightUpdates int
	syncRequests  []string
	cache         map[string][]byte
	replicated    map[string]int
	retrainQueue  []string
	fullRetrains  int
	deltas        int
	streamedBytes int
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Weights       string         `json:"weights"`
	WeightUpdates int            `json:"weight_updates"`
	SyncRequests  []string       `json:"sync_requests"`
	CacheKeys     []string       `json:"cache_keys"`
	Replicated    map[string]int `json:"replicated"`
	RetrainQueue  []string       `json:"retrain_queue"`
	FullRetrains  int            `json:"full_retrains"`
	Deltas        int            `json:"deltas"`
	StreamedBytes int            `json:"streamed_bytes"`
}

func NewState() *State {
	return &State{
		cache:      make(map[string][]byte),
		replicated: make(map[string]int),
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	replicated := make(map[string]int, len(s.replicated))
	for k, n := range s.replicated {
		replicated[k] = n
	}
	return Snapshot{
		Weights:       s.weights,
		WeightUpdates: s.weightUpdates,
		SyncRequests:  append([]string(nil), s.syncRequests...),
		CacheKeys:     keys,
		Replicated:    replicated,
		RetrainQueue:  append([]string(nil), s.retrainQueue...),
		FullRetrains:  s.fullRetrains,
		Deltas:        s.deltas,
		StreamedBytes: s.streamedBytes,
	}
}

// Cached returns a copy of the value stored under key.
func (s *State) Cached(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (s *State) builtins() map[uint8]Handler {
	return map[uint8]Handler{
		resolver.OpLocalWeightUpdate.Code: s.localWeightUpdate,
		resolver.OpFullSyncRequest.Code:   s.fullSyncRequest,
		resolver.OpCacheStoreLocal.Code:   s.cacheStoreLocal,
		resolver.OpCacheReplicate.Code:    s.cacheReplicate,
		resolver.OpRetrainSchedule.Code:   s.retrainSchedule,
		resolver.OpRetrainFull.Code:       s.retrainFull,
		resolver.OpIncrementalApply.Code:  s.incrementalApply,
		resolver.OpIncrementalStream.Code: s.incrementalStream,
	}
}

// localWeightUpdate swaps the active weights tag in place.
func (s *State) localWeightUpdate(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	if len(inst.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = string(inst.Payload)
	s.weightUpdates++
	return []byte("weights=" + s.weights), nil
}

// fullSyncRequest queues a full model sync against the fleet.
func (s *State) fullSyncRequest(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	target := string(inst.Payload)
	if target == "" {
		target = "latest"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncRequests = append(s.syncRequests, target)
	return []byte("sync_queued=" + strconv.Itoa(len(s.syncRequests))), nil
}

// cacheStoreLocal stores "key=value" (or the payload under itself) locally.
func (s *State) cacheStoreLocal(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	key, value, err := splitCacheEntry(inst.Payload)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = value
	return []byte("cached=" + key), nil
}

// cacheReplicate stores the entry and marks it for replication.
func (s *State) cacheReplicate(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	key, value, err := splitCacheEntry(inst.Payload)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = value
	s.replicated[key]++
	return []byte(fmt.Sprintf("replicated=%s bytes=%d", key, len(value))), nil
}

func (s *State) retrainSchedule(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	if len(inst.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrainQueue = append(s.retrainQueue, string(inst.Payload))
	return []byte("queued=" + strconv.Itoa(len(s.retrainQueue))), nil
}

// retrainFull runs a full retrain, absorbing any scheduled jobs.
func (s *State) retrainFull(_ context.Context, _ protocol.Instruction) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	absorbed := len(s.retrainQueue)
	s.retrainQueue = nil
	s.fullRetrains++
	return []byte(fmt.Sprintf("retrain=full run=%d absorbed=%d", s.fullRetrains, absorbed)), nil
}

func (s *State) incrementalApply(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	if len(inst.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas++
	return []byte("applied=" + strconv.Itoa(s.deltas)), nil
}

func (s *State) incrementalStream(_ context.Context, inst protocol.Instruction) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamedBytes += len(inst.Payload)
	return []byte("streamed=" + strconv.Itoa(s.streamedBytes)), nil
}

func splitCacheEntry(payload []byte) (string, []byte, error) {
	if len(payload) == 0 {
		return "", nil, ErrEmptyPayload
	}
	key, value, found := bytes.Cut(payload, []byte("="))
	if !found {
		return string(payload), append([]byte(nil), payload...), nil
	}
	if len(key) == 0 {
		return "", nil, fmt.Errorf("device: cache entry has empty key")
	}
	return string(key), append([]byte(nil), value...), nil
}
