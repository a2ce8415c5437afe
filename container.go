package flowcore

import (
	"fmt"
	"sync"
)

// ServiceContainer is the consumed contract (spec §4.F): given an
// activity type token, return a fully-constructed activity instance with
// its service dependencies injected. The core never implements
// dependency resolution itself — it only defines this boundary and
// treats construction failures as ErrActivityInstantiation.
type ServiceContainer interface {
	// Resolve returns an activity instance for tok, or an error wrapping
	// ErrActivityInstantiation.
	Resolve(tok ActivityToken) (any, error)
}

// Factory is a constructor closure for an activity type, the
// "reflection-free" registration spec.md §9 calls for in a target
// language without reflection-based construction: each activity type
// publishes a factory closure at registration time instead of the
// container inspecting a constructor via reflection.
type Factory func() (any, error)

type registration struct {
	kind     regKind
	instance any
	factory  Factory
}

type regKind int

const (
	regSingletonInstance regKind = iota
	regSingletonType
	regTransient
)

// BasicContainer is flowcore's reference ServiceContainer: an in-memory
// registry supporting the three lifetimes spec §4.F requires. It records
// each activity token's string form in typeNames at registration, the
// same way the teacher pack's typeName[T] helper caches reflect.Type
// lookups; Resolve looks registrations up by the token itself and does
// not read typeNames.
type BasicContainer struct {
	mu            sync.RWMutex
	registrations map[ActivityToken]*registration
	singletons    map[ActivityToken]any // memoized regSingletonType instances
	typeNames     map[ActivityToken]string
}

// NewBasicContainer creates an empty container.
func NewBasicContainer() *BasicContainer {
	return &BasicContainer{
		registrations: make(map[ActivityToken]*registration),
		singletons:    make(map[ActivityToken]any),
		typeNames:     make(map[ActivityToken]string),
	}
}

// AddSingleton registers a pre-built instance, shared by every node that
// resolves tok for the life of the container.
func AddSingleton[T any](c *BasicContainer, instance T) {
	tok := TokenOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[tok] = &registration{kind: regSingletonInstance, instance: instance}
	c.typeNames[tok] = tok.String()
}

// AddSingletonType registers a factory invoked at most once per
// container; the resulting instance is memoized and shared by every
// subsequent resolution of tok within one flow run.
func AddSingletonType[T any](c *BasicContainer, factory func() (T, error)) {
	tok := TokenOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[tok] = &registration{kind: regSingletonType, factory: func() (any, error) { return factory() }}
	c.typeNames[tok] = tok.String()
}

// AddTransient registers a factory invoked once per resolution, so every
// node that resolves tok gets its own instance.
func AddTransient[T any](c *BasicContainer, factory func() (T, error)) {
	tok := TokenOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[tok] = &registration{kind: regTransient, factory: func() (any, error) { return factory() }}
	c.typeNames[tok] = tok.String()
}

// Resolve implements ServiceContainer.
func (c *BasicContainer) Resolve(tok ActivityToken) (any, error) {
	c.mu.RLock()
	reg, ok := c.registrations[tok]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no registration for %s", ErrActivityInstantiation, tok.String())
	}

	switch reg.kind {
	case regSingletonInstance:
		return reg.instance, nil
	case regSingletonType:
		c.mu.Lock()
		defer c.mu.Unlock()
		if inst, ok := c.singletons[tok]; ok {
			return inst, nil
		}
		inst, err := reg.factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrActivityInstantiation, err)
		}
		c.singletons[tok] = inst
		return inst, nil
	case regTransient:
		inst, err := reg.factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrActivityInstantiation, err)
		}
		return inst, nil
	default:
		return nil, fmt.Errorf("%w: unknown registration kind", ErrActivityInstantiation)
	}
}
