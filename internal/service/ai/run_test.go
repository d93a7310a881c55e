package ai

import (
	"context"
	"errors"
	"testing"
)

func TestRunDeliversEventsInOrder(t *testing.T) {
	run := newRun()
	ctx := context.Background()

	go func() {
		for _, text := range []string{"a", "b", "c"} {
			_ = run.emit(ctx, Event{Kind: EventToken, Text: text})
		}
		run.finish(Result{Answer: "abc"})
	}()

	var got string
	for ev := range run.Events() {
		got += ev.Text
	}
	if got != "abc" {
		t.Fatalf("events out of order: %q", got)
	}
	if res := run.Wait(); res.Failed() || res.Answer != "abc" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunWaitDrainsUnreadEvents(t *testing.T) {
	run := newRun()
	ctx := context.Background()

	go func() {
		_ = run.emit(ctx, Event{Kind: EventToken, Text: "ignored"})
		run.finish(Result{Err: errors.New("boom")})
	}()

	if res := run.Wait(); !res.Failed() {
		t.Fatal("expected failed result")
	}
}

func TestRunEmitStopsOnCancel(t *testing.T) {
	run := newRun()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := run.emit(ctx, Event{Kind: EventToken}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStartReportsProducerResult(t *testing.T) {
	run := Start(context.Background(), func(ctx context.Context, emit Emit) (string, error) {
		if err := emit(Event{Kind: EventQuestion, Text: "q"}); err != nil {
			return "", err
		}
		return "answer", emit(Event{Kind: EventToken, Text: "answer"})
	})

	var kinds []EventKind
	for ev := range run.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != EventQuestion || kinds[1] != EventToken {
		t.Fatalf("unexpected event kinds %v", kinds)
	}
	if res := run.Wait(); res.Failed() || res.Answer != "answer" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStartUnblocksProducerOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	run := Start(ctx, func(ctx context.Context, emit Emit) (string, error) {
		for {
			if err := emit(Event{Kind: EventToken, Text: "x"}); err != nil {
				return "", err
			}
		}
	})

	<-run.Events()
	cancel()
	if res := run.Wait(); !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
}

func TestEventKindString(t *testing.T) {
	if EventQuestion.String() != "question" || EventToken.String() != "token" || EventKind(0).String() != "unknown" {
		t.Fatal("unexpected EventKind names")
	}
}
