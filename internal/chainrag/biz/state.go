package biz

import (
	"fmt"
	"time"
)

// State 查询所处的阶段。
type State int

// 查询状态，除 StateFailed 外只能按顺序前进。
const (
	StateReceived State = iota
	StateEmbedding
	StateRetrieving
	StateReasoning
	StateSynthesizing
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateReceived:     "received",
	StateEmbedding:    "embedding",
	StateRetrieving:   "retrieving",
	StateReasoning:    "reasoning",
	StateSynthesizing: "synthesizing",
	StateCompleted:    "completed",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transition 一次状态变更记录。
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// StateMachine 单次查询的状态机。只被处理该查询的 goroutine 使用，不加锁。
type StateMachine struct {
	state   State
	history []Transition
	now     func() time.Time
}

// NewStateMachine 创建处于 Received 状态的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateReceived, now: time.Now}
}

// State 返回当前状态。
func (m *StateMachine) State() State { return m.state }

// History 返回全部状态变更。
func (m *StateMachine) History() []Transition {
	return append([]Transition(nil), m.history...)
}

// Advance 前进到下一个状态。to 必须是当前状态的直接后继。
func (m *StateMachine) Advance(to State) error {
	if m.state.Terminal() || to != m.state+1 || to == StateFailed {
		return fmt.Errorf("invalid transition %s -> %s", m.state, to)
	}
	m.record(to)
	return nil
}

// Fail 从任一非终止状态进入 Failed。
func (m *StateMachine) Fail() error {
	if m.state.Terminal() {
		return fmt.Errorf("invalid transition %s -> %s", m.state, StateFailed)
	}
	m.record(StateFailed)
	return nil
}

func (m *StateMachine) record(to State) {
	m.history = append(m.history, Transition{From: m.state, To: to, At: m.now()})
	m.state = to
}
