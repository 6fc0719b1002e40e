package dispatch

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"smsgate/internal/channel"
	logx "smsgate/pkg/logx"
)

type fakeChannel struct {
	name   string
	result channel.Result
	delay  time.Duration
	panics bool
	calls  atomic.Int64
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return true }

func (f *fakeChannel) Send(ctx context.Context, msg channel.Message) channel.Result {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("provider client blew up")
	}
	r := f.result
	r.Name = f.name
	return r
}

func TestDispatchPartialFailure(t *testing.T) {
	ok := &fakeChannel{name: "feishu", result: channel.Result{Success: true}}
	bad := &fakeChannel{name: "wecom", result: channel.Result{Error: "invalid webhook url"}}

	out := New([]channel.Channel{ok, bad}, logx.Nop()).Dispatch(context.Background(), channel.Message{Content: "hi"})
	if !out.AnySuccess {
		t.Fatal("one success must make the aggregate successful")
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if out.Results["wecom"].Error != "invalid webhook url" {
		t.Fatalf("wecom result = %+v", out.Results["wecom"])
	}
	errs := out.Errors()
	if len(errs) != 1 || errs["wecom"] == "" {
		t.Fatalf("Errors() = %v, want only wecom", errs)
	}
}

func TestDispatchAllFailed(t *testing.T) {
	a := &fakeChannel{name: "feishu", result: channel.Result{Error: "timeout"}}
	b := &fakeChannel{name: "bark", result: channel.Result{Error: "no matching bark targets"}}

	out := New([]channel.Channel{a, b}, logx.Nop()).Dispatch(context.Background(), channel.Message{})
	if out.AnySuccess {
		t.Fatal("no channel succeeded, AnySuccess must be false")
	}
	errs := out.Errors()
	if len(errs) != 2 {
		t.Fatalf("Errors() = %v, want both channels", errs)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	ok := &fakeChannel{name: "telegram", result: channel.Result{Success: true}}
	boom := &fakeChannel{name: "dingtalk", panics: true}

	out := New([]channel.Channel{ok, boom}, logx.Nop()).Dispatch(context.Background(), channel.Message{})
	if !out.AnySuccess {
		t.Fatal("panic in one channel must not sink the others")
	}
	r := out.Results["dingtalk"]
	if r.Success || !strings.HasPrefix(r.Error, "panic:") {
		t.Fatalf("panicking channel result = %+v", r)
	}
}

func TestDispatchRunsConcurrently(t *testing.T) {
	const delay = 100 * time.Millisecond
	chans := make([]channel.Channel, 4)
	for i, name := range []string{"a", "b", "c", "d"} {
		chans[i] = &fakeChannel{name: name, delay: delay, result: channel.Result{Success: true}}
	}

	start := time.Now()
	out := New(chans, logx.Nop()).Dispatch(context.Background(), channel.Message{})
	elapsed := time.Since(start)

	if len(out.Results) != 4 {
		t.Fatalf("results = %d, want 4", len(out.Results))
	}
	// Serial execution would take 4x the delay.
	if elapsed > 3*delay {
		t.Fatalf("dispatch took %v, channels appear to run serially", elapsed)
	}
}

func TestDispatchEachChannelCalledOnce(t *testing.T) {
	a := &fakeChannel{name: "a", result: channel.Result{Success: true}}
	b := &fakeChannel{name: "b", result: channel.Result{Error: "nope"}}

	New([]channel.Channel{a, b}, logx.Nop()).Dispatch(context.Background(), channel.Message{})
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", a.calls.Load(), b.calls.Load())
	}
}
