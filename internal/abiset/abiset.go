// Package abiset handles ABI loading and event-topic matching for the
// event filter hook: each configured filter's ABI file is parsed once, and
// its events are indexed by canonical Keccak topic so a log's topics[0]
// resolves straight to a decoder.
package abiset

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EventEntry pairs a decoded event name with the abi.Event used to unpack
// its log payload.
type EventEntry struct {
	Name  string
	Event abi.Event
}

// FilterSet is one configured filter's resolved ABI: a topic → event map
// plus the redis key pattern its matches are written under.
type FilterSet struct {
	Name            string
	RedisKeyPattern string
	EventsByTopic   map[common.Hash]EventEntry
}

// Loader caches parsed ABI files by path, since several filters may share
// one ABI document.
type Loader struct {
	mu  sync.Mutex
	abi map[string]abi.ABI
}

// NewLoader builds an empty Loader.
func NewLoader() *Loader {
	return &Loader{abi: make(map[string]abi.ABI)}
}

func (l *Loader) load(path string) (abi.ABI, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.abi[path]; ok {
		return cached, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "open abi %s", path)
	}
	defer f.Close()
	parsed, err := abi.JSON(f)
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "parse abi %s", path)
	}
	l.abi[path] = parsed
	return parsed, nil
}

// PrepareFilter loads filterName's ABI, matching each ABI event's canonical
// topic against configuredTopics (normalized, case-insensitive). A filter
// with zero matched topics is a non-fatal "skip" signaled by a nil
// FilterSet; any other failure (missing/malformed ABI file) is returned as
// an error and is fatal for that filter, per spec.md §4.5.
func (l *Loader) PrepareFilter(log *zap.Logger, filterName, abiPath, redisKeyPattern string, configuredTopics []string) (*FilterSet, error) {
	parsed, err := l.load(abiPath)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(configuredTopics))
	for _, t := range configuredTopics {
		wanted[normalizeTopic(t)] = struct{}{}
	}

	eventsByTopic := make(map[common.Hash]EventEntry)
	for name, event := range parsed.Events {
		topic := event.ID
		if _, ok := wanted[normalizeTopic(topic.Hex())]; !ok {
			continue
		}
		eventsByTopic[topic] = EventEntry{Name: name, Event: event}
	}

	if len(eventsByTopic) == 0 {
		if log != nil {
			log.Warn("event filter matched zero configured topics, skipping",
				zap.String("filter", filterName), zap.String("abi_path", abiPath))
		}
		return nil, nil
	}

	return &FilterSet{
		Name:            filterName,
		RedisKeyPattern: redisKeyPattern,
		EventsByTopic:   eventsByTopic,
	}, nil
}

func normalizeTopic(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// DecodeLog unpacks a log's non-indexed data and indexed topics into a
// name → value map, using go-ethereum's UnpackIntoMap/ParseTopicsIntoMap.
func DecodeLog(entry EventEntry, topics []common.Hash, data []byte) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if err := entry.Event.Inputs.UnpackIntoMap(args, data); err != nil {
		return nil, errors.Wrap(err, "unpack non-indexed args")
	}

	var indexed abi.Arguments
	for _, input := range entry.Event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(topics) > 0 && len(indexed) > 0 {
		// topics[0] is the event signature; indexed args start at topics[1].
		tail := topics[1:]
		if len(tail) > len(indexed) {
			tail = tail[:len(indexed)]
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, tail); err != nil {
			return nil, errors.Wrap(err, "unpack indexed args")
		}
	}

	return args, nil
}

// MarshalArgs renders a decoded-args map to JSON for storage, matching the
// original's json.dumps(args) call on the decoded payload.
func MarshalArgs(args map[string]interface{}) (json.RawMessage, error) {
	return json.Marshal(args)
}
