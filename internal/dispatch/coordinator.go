package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"smsgate/internal/channel"
	logx "smsgate/pkg/logx"
)

// Outcome aggregates every channel's result for one message.
type Outcome struct {
	AnySuccess bool
	Results    map[string]channel.Result
}

// Errors collects the per-channel error texts (for the all-failed response).
func (o Outcome) Errors() map[string]string {
	errs := make(map[string]string, len(o.Results))
	for name, r := range o.Results {
		if !r.Success {
			errs[name] = r.Error
		}
	}
	return errs
}

// Coordinator fans one message out to all configured channels concurrently
// and joins the results. No retry here: a failed channel is reported, not
// retried. A slow channel delays the aggregate but never blocks the others.
type Coordinator struct {
	channels []channel.Channel
	log      logx.Logger
}

func New(channels []channel.Channel, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{channels: channels, log: log}
}

// Dispatch waits for every channel to finish before returning so the caller
// always sees the full report, success or not.
func (c *Coordinator) Dispatch(ctx context.Context, msg channel.Message) Outcome {
	start := time.Now()
	results := make([]channel.Result, len(c.channels))

	var wg sync.WaitGroup
	wg.Add(len(c.channels))
	for i, ch := range c.channels {
		go func(i int, ch channel.Channel) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("panic in channel send",
						logx.String("channel", ch.Name()),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					results[i] = channel.Result{Name: ch.Name(), Error: fmt.Sprintf("panic: %v", r)}
				}
			}()
			results[i] = ch.Send(ctx, msg)
		}(i, ch)
	}
	wg.Wait()

	out := Outcome{Results: make(map[string]channel.Result, len(results))}
	for _, r := range results {
		out.Results[r.Name] = r
		if r.Success {
			out.AnySuccess = true
		}
	}

	c.log.Info("dispatch finished",
		logx.Int("channels", len(c.channels)),
		logx.Bool("any_success", out.AnySuccess),
		logx.Duration("dur", time.Since(start)),
	)
	return out
}
