package lambdafn

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

const (
	WarmupSource = "warmup"

	// WarmupDelay keeps this instance busy long enough for the async copies
	// to land on separate instances.
	WarmupDelay = 75 * time.Millisecond

	maxWarmupConcurrency = 50
)

type WarmupEvent struct {
	Source      string `json:"source"`
	Concurrency int    `json:"concurrency"`
}

type WarmupResponse struct {
	Status          string `json:"status"`
	InstancesWarmed int    `json:"instancesWarmed"`
}

func IsWarmupEvent(event json.RawMessage) (*WarmupEvent, bool) {
	var warmup WarmupEvent
	if err := json.Unmarshal(event, &warmup); err != nil {
		return nil, false
	}
	if warmup.Source != WarmupSource {
		return nil, false
	}
	if warmup.Concurrency < 0 {
		warmup.Concurrency = 0
	}
	if warmup.Concurrency > maxWarmupConcurrency {
		warmup.Concurrency = maxWarmupConcurrency
	}
	return &warmup, true
}

// HandleWarmup counts this instance as warm and fans out Concurrency async
// invocations of the same function. Child invocations carry concurrency 0.
func (h *Handler) HandleWarmup(ctx context.Context, warmup *WarmupEvent) *WarmupResponse {
	warmed := 1
	if warmup.Concurrency > 0 && h.Invoker != nil && h.FunctionName != "" {
		warmed += h.selfInvoke(ctx, warmup.Concurrency)
	}

	timer := time.NewTimer(WarmupDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	return &WarmupResponse{Status: "warm", InstancesWarmed: warmed}
}

func (h *Handler) selfInvoke(ctx context.Context, count int) int {
	payload, err := json.Marshal(WarmupEvent{Source: WarmupSource})
	if err != nil {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Invoker.Invoke(ctx, &lambdasdk.InvokeInput{
				FunctionName:   aws.String(h.FunctionName),
				InvocationType: types.InvocationTypeEvent,
				Payload:        payload,
			})
			if err != nil {
				if h.Logger != nil {
					h.Logger.WarnContext(ctx, "warmup self-invoke failed", slog.Any("error", err))
				}
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return succeeded
}
