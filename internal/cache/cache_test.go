package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lotecorto/storefront/internal/config"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	ctx := context.Background()
	if Enabled() || Client() != nil {
		t.Fatalf("cache should be disabled")
	}
	if err := SetJSON(ctx, OrderKey(1), map[string]int{"state": 3}, time.Minute); err != nil {
		t.Fatalf("set on disabled cache should succeed: %v", err)
	}
	var dest map[string]int
	hit, err := GetJSON(ctx, OrderKey(1), &dest)
	if err != nil || hit {
		t.Fatalf("get on disabled cache should miss, hit=%v err=%v", hit, err)
	}
	if err := Del(ctx, OrderKey(1), ResourceProducts); err != nil {
		t.Fatalf("del on disabled cache should succeed: %v", err)
	}
	if err := InvalidateResource(ctx, ResourceProducts); err != nil {
		t.Fatalf("invalidate on disabled cache should succeed: %v", err)
	}
	ok, err := SetNX(ctx, "guard", time.Second)
	if err != nil || !ok {
		t.Fatalf("setnx on disabled cache should claim, ok=%v err=%v", ok, err)
	}
}

func TestKeys(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{OrderKey(42), "order:42"},
		{PaymentStatusKey(7), "payment_status:7"},
		{ItemKey(ResourceProducts, 3), "products:3"},
		{CollectionKey(" suppliers "), "suppliers"},
		{NotificationGuardKey("mercadopago", "123", "payment.updated"), "notify:mercadopago:123:payment.updated"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("key want %s got %s", tc.want, tc.got)
		}
	}
}

func TestCartKeyScopedByCaller(t *testing.T) {
	a := CartKey("Bearer a")
	b := CartKey("Bearer b")
	if a == b {
		t.Fatalf("different callers should not share a cart key")
	}
	if !strings.HasPrefix(a, "cart:") || strings.Contains(a, "Bearer") {
		t.Fatalf("cart key should be a hashed cart key, got %s", a)
	}
	if CartKey("Bearer a") != a {
		t.Fatalf("cart key should be stable")
	}
}

func TestBuildKeyPrefix(t *testing.T) {
	if got := buildKey("order:1"); got != redisPrefix+":order:1" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := buildKey("  "); got != redisPrefix {
		t.Fatalf("blank key should map to prefix, got %s", got)
	}
}
