package ioc

import (
	"reflect"
	"testing"

	"soc-triage/internal/schema"
)

func count(indicators []schema.Indicator, kind schema.IndicatorKind, value string) int {
	n := 0
	for _, ind := range indicators {
		if ind.Kind == kind && ind.Value == value {
			n++
		}
	}
	return n
}

func TestExtract(t *testing.T) {
	t.Run("mixed indicators", func(t *testing.T) {
		text := "Failed logins from 203.0.113.45 against https://example.com/login; " +
			"hash=5d41402abc4b2a76b9719d911017c592; contact secops@example.org"

		got := Extract(text)

		wantOne := []schema.Indicator{
			{Kind: schema.IndicatorAddress, Value: "203.0.113.45"},
			{Kind: schema.IndicatorURL, Value: "https://example.com/login"},
			{Kind: schema.IndicatorHash, Value: "5d41402abc4b2a76b9719d911017c592"},
			{Kind: schema.IndicatorDomain, Value: "example.com"},
			{Kind: schema.IndicatorEmail, Value: "secops@example.org"},
		}
		for _, want := range wantOne {
			if n := count(got, want.Kind, want.Value); n != 1 {
				t.Errorf("count(%s, %s) = %d, want 1", want.Kind, want.Value, n)
			}
		}
	})

	t.Run("urls come first", func(t *testing.T) {
		got := Extract("10.0.0.1 hit http://evil.test/payload")

		if len(got) == 0 || got[0].Kind != schema.IndicatorURL {
			t.Errorf("first indicator = %+v, want url", got)
		}
	})

	t.Run("trailing punctuation trimmed", func(t *testing.T) {
		got := Extract(`Blocked http://bad.example.com/x. Source was 198.51.100.7, user "bob@corp.example".`)

		if n := count(got, schema.IndicatorURL, "http://bad.example.com/x"); n != 1 {
			t.Errorf("url not trimmed: %+v", got)
		}
		if n := count(got, schema.IndicatorAddress, "198.51.100.7"); n != 1 {
			t.Errorf("address not trimmed: %+v", got)
		}
		if n := count(got, schema.IndicatorEmail, "bob@corp.example"); n != 1 {
			t.Errorf("email not trimmed: %+v", got)
		}
	})

	t.Run("sha256 hash", func(t *testing.T) {
		h := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
		got := Extract("seen hash " + h)

		if n := count(got, schema.IndicatorHash, h); n != 1 {
			t.Errorf("sha256 not extracted: %+v", got)
		}
	})

	t.Run("domain inside url also emitted", func(t *testing.T) {
		got := Extract("visited https://login.example.net/auth")

		if n := count(got, schema.IndicatorURL, "https://login.example.net/auth"); n != 1 {
			t.Errorf("url missing: %+v", got)
		}
		if n := count(got, schema.IndicatorDomain, "login.example.net"); n != 1 {
			t.Errorf("embedded domain missing: %+v", got)
		}
	})

	t.Run("case-insensitive dedupe keeps first", func(t *testing.T) {
		got := Extract("lookup EVIL.example.com then evil.example.com again")

		if n := count(got, schema.IndicatorDomain, "EVIL.example.com"); n != 1 {
			t.Errorf("first-seen casing not kept: %+v", got)
		}
		if n := count(got, schema.IndicatorDomain, "evil.example.com"); n != 0 {
			t.Errorf("duplicate survived dedupe: %+v", got)
		}
	})

	t.Run("no indicators", func(t *testing.T) {
		if got := Extract("routine login success"); len(got) != 0 {
			t.Errorf("Extract = %+v, want empty", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		text := "1.2.3.4 http://a.example.com x@y.example 5d41402abc4b2a76b9719d911017c592"
		first := Extract(text)

		for i := 0; i < 5; i++ {
			if next := Extract(text); !reflect.DeepEqual(first, next) {
				t.Fatalf("run %d differs: %+v vs %+v", i, next, first)
			}
		}
	})
}

func TestDedupe(t *testing.T) {
	in := []schema.Indicator{
		{Kind: schema.IndicatorDomain, Value: "Example.com"},
		{Kind: schema.IndicatorDomain, Value: "example.COM"},
		{Kind: schema.IndicatorURL, Value: "http://example.com"},
	}

	got := Dedupe(in)

	want := []schema.Indicator{
		{Kind: schema.IndicatorDomain, Value: "Example.com"},
		{Kind: schema.IndicatorURL, Value: "http://example.com"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe = %+v, want %+v", got, want)
	}
}
