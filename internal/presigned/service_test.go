package presigned

import (
	"testing"
	"time"
)

func TestSplitLocation(t *testing.T) {
	bucket, object, err := splitLocation("goupload/3f1a/9c2b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "goupload" {
		t.Fatalf("wrong bucket %q", bucket)
	}
	if object != "3f1a/9c2b" {
		t.Fatalf("wrong object key %q", object)
	}
}

func TestSplitLocationRejectsBareKeys(t *testing.T) {
	for _, location := range []string{"", "goupload", "goupload/", "/object"} {
		if _, _, err := splitLocation(location); err == nil {
			t.Fatalf("expected error for %q", location)
		}
	}
}

func TestClampTTL(t *testing.T) {
	svc := &Service{ttl: time.Hour}

	cases := []struct {
		requested time.Duration
		want      time.Duration
	}{
		{0, time.Hour},
		{-time.Minute, time.Hour},
		{2 * time.Hour, time.Hour},
		{10 * time.Minute, 10 * time.Minute},
	}

	for _, tc := range cases {
		if got := svc.clampTTL(tc.requested); got != tc.want {
			t.Fatalf("clampTTL(%v) = %v, want %v", tc.requested, got, tc.want)
		}
	}
}
