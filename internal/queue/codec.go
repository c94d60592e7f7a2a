package queue

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// Codec maps event-type tags to Go types and back, with JSON payloads.
type Codec struct {
	mu     sync.RWMutex
	byTag  map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewCodec returns an empty codec.
func NewCodec() *Codec {
	return &Codec{
		byTag:  make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// Register binds tag to the struct type T. Decoded values are *T.
func Register[T any](c *Codec, tag string) {
	t := reflect.TypeFor[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTag[tag] = t
	c.byType[t] = tag
}

// Tag returns the tag registered for evt's type (value or pointer).
func (c *Codec) Tag(evt any) (string, bool) {
	t := reflect.TypeOf(evt)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tag, ok := c.byType[t]
	return tag, ok
}

// Encode returns the tag and JSON payload for evt.
func (c *Codec) Encode(evt any) (string, []byte, error) {
	tag, ok := c.Tag(evt)
	if !ok {
		return "", nil, ferrors.NewError(ferrors.CategoryQueue, "unregistered event type").
			WithContext("type", fmt.Sprintf("%T", evt)).Build()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", nil, ferrors.WrapError(err, ferrors.CategoryQueue, "encode event").
			WithContext("event_type", tag).Build()
	}
	return tag, payload, nil
}

// Decode returns a pointer to a freshly decoded value of the type bound to tag.
// Unknown tags and malformed payloads are non-retryable.
func (c *Codec) Decode(tag string, payload []byte) (any, error) {
	c.mu.RLock()
	t, ok := c.byTag[tag]
	c.mu.RUnlock()
	if !ok {
		return nil, ferrors.NonRetryable(ferrors.NewError(ferrors.CategoryQueue, "unknown event type").
			WithContext("event_type", tag).Build())
	}
	v := reflect.New(t)
	if err := json.Unmarshal(payload, v.Interface()); err != nil {
		return nil, ferrors.NonRetryable(ferrors.WrapError(err, ferrors.CategoryQueue, "decode event payload").
			WithContext("event_type", tag).Build())
	}
	return v.Interface(), nil
}
