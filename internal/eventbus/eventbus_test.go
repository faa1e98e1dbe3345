package eventbus

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type ping struct{ N int }
type pong struct{ S string }

func TestBus(t *testing.T) {
	b := New()
	var got []string

	unsubA := Subscribe(b, func(ctx context.Context, e ping) { got = append(got, "a") })
	Subscribe(b, func(ctx context.Context, e ping) { got = append(got, "b") })
	Subscribe(b, func(ctx context.Context, e pong) { got = append(got, "pong:"+e.S) })

	Publish(context.Background(), b, ping{N: 1})
	Publish(context.Background(), b, pong{S: "x"})
	unsubA()
	unsubA()
	Publish(context.Background(), b, ping{N: 2})

	want := []string{"a", "b", "pong:x", "b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("delivered events mismatch (-want +got):\n%s", diff)
	}
}

func TestNilBus(t *testing.T) {
	var b *Bus
	unsub := Subscribe(b, func(ctx context.Context, e ping) { t.Fatal("unexpected delivery") })
	Publish(context.Background(), b, ping{})
	unsub()
}
