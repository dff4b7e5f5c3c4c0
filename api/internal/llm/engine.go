package llm

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Engine is a text-generation provider. Name is the short id used by /engine.
type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelSetter is implemented by engines whose model can be switched at runtime.
type ModelSetter interface {
	SetModel(model string)
}

var ErrUnknownEngine = errors.New("unknown engine")

// Engines holds the configured engines by name. Nil entries are skipped.
type Engines struct {
	byName map[string]Engine
}

func NewEngines(engs ...Engine) *Engines {
	e := &Engines{byName: make(map[string]Engine)}
	for _, eng := range engs {
		if eng == nil {
			continue
		}
		e.byName[eng.Name()] = eng
	}
	return e
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "openai" {
		name = "gpt"
	}
	if eng, ok := e.byName[name]; ok {
		return eng, nil
	}
	return nil, ErrUnknownEngine
}

// Names lists the configured engine names, sorted.
func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.byName))
	for n := range e.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manager remembers which engine each chat uses.
type Manager struct {
	def Engine
	m   sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}

func (m *Manager) Default() Engine { return m.def }
