package gateway

import (
	"context"
	"testing"

	"github.com/vnykmshr/gateflow/internal/testutil"
	"github.com/vnykmshr/gateflow/pkg/config"
)

func TestDispatchRoutesEveryOp(t *testing.T) {
	types := map[string]config.TypeDefinition{
		"vehicle/speed": {Type: "VehicleSpeed", Fields: map[string]string{"mps": "float64"}},
	}
	gw, _ := newTestGateway(t, Config{Types: types})
	ctx := context.Background()

	res := gw.Dispatch(ctx, Request{Op: OpSubscribe, Agent: "dashboard", Topic: "vehicle/speed"})
	sub, ok := res.(SubscribeResult)
	if !ok {
		t.Fatalf("expected SubscribeResult, got %T", res)
	}
	testutil.AssertEqual(t, sub.OK(), true)
	testutil.AssertNotEqual(t, sub.SubscriptionID, "")

	res = gw.Dispatch(ctx, Request{Op: OpWrite, Agent: "sensor", Topic: "vehicle/speed", Data: map[string]float64{"mps": 3.5}})
	write, ok := res.(WriteResult)
	if !ok {
		t.Fatalf("expected WriteResult, got %T", res)
	}
	testutil.AssertEqual(t, write.OK(), true)

	res = gw.Dispatch(ctx, Request{Op: OpRead, Agent: "dashboard", Topic: "vehicle/speed", MaxSamples: 10})
	read, ok := res.(ReadResult)
	if !ok {
		t.Fatalf("expected ReadResult, got %T", res)
	}
	testutil.AssertEqual(t, read.OK(), true)
	testutil.AssertEqual(t, read.Count, 1)

	res = gw.Dispatch(ctx, Request{Op: OpUnsubscribe, SubscriptionID: sub.SubscriptionID})
	unsub, ok := res.(UnsubscribeResult)
	if !ok {
		t.Fatalf("expected UnsubscribeResult, got %T", res)
	}
	testutil.AssertEqual(t, unsub.OK(), true)

	res = gw.Dispatch(ctx, Request{Op: OpListTopics, Agent: "dashboard"})
	list, ok := res.(ListTopicsResult)
	if !ok {
		t.Fatalf("expected ListTopicsResult, got %T", res)
	}
	testutil.AssertEqual(t, list.OK(), true)
	testutil.AssertEqual(t, len(list.Topics.Readable), 2)

	res = gw.Dispatch(ctx, Request{Op: OpTopicInfo, Topic: "vehicle/speed"})
	info, ok := res.(TopicInfoResult)
	if !ok {
		t.Fatalf("expected TopicInfoResult, got %T", res)
	}
	testutil.AssertEqual(t, info.OK(), true)
	testutil.AssertEqual(t, info.TypeDefinition.Type, "VehicleSpeed")
}

func TestDispatchUnknownOp(t *testing.T) {
	gw, _ := newTestGateway(t, Config{})

	res := gw.Dispatch(context.Background(), Request{Op: Op(99)})
	fail, ok := res.(ErrorResult)
	if !ok {
		t.Fatalf("expected ErrorResult, got %T", res)
	}
	testutil.AssertEqual(t, fail.OK(), false)
	testutil.AssertEqual(t, fail.Error, "Unknown operation 99")
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpSubscribe, "subscribe"},
		{OpRead, "read"},
		{OpWrite, "write"},
		{OpUnsubscribe, "unsubscribe"},
		{OpListTopics, "list_topics"},
		{OpTopicInfo, "get_topic_info"},
		{Op(99), "op(99)"},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, tt.op.String(), tt.want)
	}
}
