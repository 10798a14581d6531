package adapter

import (
	"testing"

	"github.com/bytedance/sonic"

	"tradecore/internal/model"
)

func BenchmarkFeedDecodeDepth(b *testing.B) {
	f := newTestFeed()
	var msg FeedMessage
	if err := sonic.Unmarshal([]byte(depthRaw), &msg); err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		if _, err := f.Decode(msg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDepthString(b *testing.B) {
	f := newTestFeed()
	var msg FeedMessage
	if err := sonic.Unmarshal([]byte(depthRaw), &msg); err != nil {
		b.Fatal(err)
	}
	d, err := f.Decode(msg)
	if err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		_ = DepthString(d.(model.OrderBookDepth10))
	}
}
