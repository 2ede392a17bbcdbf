package permission

import (
	"testing"

	"github.com/vnykmshr/gateflow/internal/testutil"
	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	guard, err := New(map[string]TopicGrants{
		"control_agent": {
			Read:  []string{"vehicle/speed", "vehicle/heading"},
			Write: []string{"vehicle/cmd"},
		},
		"dashboard": {
			Read: []string{"vehicle/speed"},
		},
	})
	testutil.AssertNoError(t, err)
	return guard
}

func TestChecks(t *testing.T) {
	guard := newTestGuard(t)

	tests := []struct {
		name      string
		agent     string
		topic     string
		wantRead  bool
		wantWrite bool
	}{
		{"granted read only", "dashboard", "vehicle/speed", true, false},
		{"granted read and not write", "control_agent", "vehicle/speed", true, false},
		{"granted write only", "control_agent", "vehicle/cmd", false, true},
		{"unknown topic", "control_agent", "vehicle/battery", false, false},
		{"unknown agent", "intruder", "vehicle/speed", false, false},
		{"empty topic", "control_agent", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, guard.CanRead(tt.agent, tt.topic), tt.wantRead)
			testutil.AssertEqual(t, guard.CanWrite(tt.agent, tt.topic), tt.wantWrite)
		})
	}
}

func TestTopicsSortedCopies(t *testing.T) {
	guard := newTestGuard(t)

	readable, writable := guard.Topics("control_agent")
	testutil.AssertEqual(t, len(readable), 2)
	testutil.AssertEqual(t, readable[0], "vehicle/heading")
	testutil.AssertEqual(t, readable[1], "vehicle/speed")
	testutil.AssertEqual(t, len(writable), 1)
	testutil.AssertEqual(t, writable[0], "vehicle/cmd")

	// Mutating the returned slices must not affect later calls.
	readable[0] = "tampered"
	again, _ := guard.Topics("control_agent")
	testutil.AssertEqual(t, again[0], "vehicle/heading")
}

func TestTopicsUnknownAgent(t *testing.T) {
	guard := newTestGuard(t)

	readable, writable := guard.Topics("intruder")
	testutil.AssertEqual(t, len(readable), 0)
	testutil.AssertEqual(t, len(writable), 0)
	if readable == nil || writable == nil {
		t.Error("expected empty slices, not nil")
	}
}

func TestAgentsSorted(t *testing.T) {
	guard := newTestGuard(t)

	agents := guard.Agents()
	testutil.AssertEqual(t, len(agents), 2)
	testutil.AssertEqual(t, agents[0], "control_agent")
	testutil.AssertEqual(t, agents[1], "dashboard")
}

func TestGrantsAreCopied(t *testing.T) {
	grants := map[string]TopicGrants{
		"agent": {Read: []string{"a"}},
	}
	guard, err := New(grants)
	testutil.AssertNoError(t, err)

	grants["agent"].Read[0] = "b"
	testutil.AssertEqual(t, guard.CanRead("agent", "a"), true)
	testutil.AssertEqual(t, guard.CanRead("agent", "b"), false)
}

func TestDuplicateAndEmptyGrantsDropped(t *testing.T) {
	guard, err := New(map[string]TopicGrants{
		"agent": {Read: []string{"a", "a", "", "b"}},
	})
	testutil.AssertNoError(t, err)

	readable, _ := guard.Topics("agent")
	testutil.AssertEqual(t, len(readable), 2)
	testutil.AssertEqual(t, readable[0], "a")
	testutil.AssertEqual(t, readable[1], "b")
	testutil.AssertEqual(t, guard.CanRead("agent", ""), false)
}

func TestEmptyAgentNameRejected(t *testing.T) {
	_, err := New(map[string]TopicGrants{
		"": {Read: []string{"a"}},
	})
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, gferrors.IsValidationError(err), true)
}

func TestEmptyGuardDeniesAll(t *testing.T) {
	guard, err := New(nil)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, guard.CanRead("anyone", "anything"), false)
	testutil.AssertEqual(t, guard.CanWrite("anyone", "anything"), false)
	testutil.AssertEqual(t, len(guard.Agents()), 0)
}
