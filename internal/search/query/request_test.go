package query

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeIsDeterministicAcrossCasingAndWhitespace(t *testing.T) {
	tenant := uuid.New()

	a := Normalize(Raw{"city": StringValue("Austin")}).ForTenant(tenant)
	b := Normalize(mustDecodeJSON(t, `{"City": " austin "}`)).ForTenant(tenant)

	if a.Canonical() != b.Canonical() {
		t.Fatalf("expected equal canonical forms, got %q and %q", a.Canonical(), b.Canonical())
	}
	if DeriveKey(a).String() != DeriveKey(b).String() {
		t.Fatalf("expected equal keys, got %s and %s", DeriveKey(a), DeriveKey(b))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []Raw{
		{},
		{"city": StringValue("  San   Antonio "), "state": StringValue("tx"), "min_rating": StringValue("7")},
		{"status": StringValue("Validated"), "sort_by": StringValue("rating"), "sort_order": StringValue("ASC")},
		{"has_website": BoolValue(false), "price_level": NumberValue(2.6), "page": StringValue("3"), "limit": NumberValue(500)},
		{"business_status": StringValue("closed temporarily"), "business_name_contains": StringValue("Café"), "pure_service_area_business": StringValue("TRUE")},
	}

	for i, raw := range inputs {
		first := Normalize(raw)
		second := Normalize(first.Raw())
		if first.Canonical() != second.Canonical() {
			t.Fatalf("case %d: normalize not idempotent: %q vs %q", i, first.Canonical(), second.Canonical())
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("case %d: expected equal requests, got %+v and %+v", i, first, second)
		}
	}
}

func TestNormalizeDefaultsAndClamping(t *testing.T) {
	tests := []struct {
		name      string
		raw       Raw
		wantPage  int
		wantLimit int
	}{
		{name: "empty", raw: Raw{}, wantPage: 1, wantLimit: 20},
		{name: "limit clamped", raw: Raw{"limit": StringValue("1000")}, wantPage: 1, wantLimit: 100},
		{name: "non numeric", raw: Raw{"page": StringValue("two"), "limit": StringValue("many")}, wantPage: 1, wantLimit: 20},
		{name: "zero and negative", raw: Raw{"page": NumberValue(0), "limit": NumberValue(-5)}, wantPage: 1, wantLimit: 20},
		{name: "fractional", raw: Raw{"page": NumberValue(2.5)}, wantPage: 1, wantLimit: 20},
		{name: "valid", raw: Raw{"page": StringValue("2"), "limit": StringValue("50")}, wantPage: 2, wantLimit: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Normalize(tt.raw)
			if req.Pagination.Page != tt.wantPage || req.Pagination.Limit != tt.wantLimit {
				t.Fatalf("expected page=%d limit=%d, got page=%d limit=%d",
					tt.wantPage, tt.wantLimit, req.Pagination.Page, req.Pagination.Limit)
			}
		})
	}
}

func TestNormalizeSortFallsBackToCreatedAtDesc(t *testing.T) {
	req := Normalize(Raw{"sort_by": StringValue("password_hash"), "sort_order": StringValue("sideways")})
	if req.Sort.Field != SortCreatedAt || req.Sort.Direction != Desc {
		t.Fatalf("expected created_at desc, got %s %s", req.Sort.Field, req.Sort.Direction)
	}
}

func TestNormalizeDropsInvalidFilterValues(t *testing.T) {
	req := Normalize(Raw{
		"status":          StringValue("archived"),
		"state":           StringValue("Texas"),
		"has_website":     StringValue("maybe"),
		"min_rating":      StringValue("high"),
		"business_status": StringValue("OPEN"),
		"city":            StringValue("   "),
		"unknown":         StringValue("x"),
	})
	if req.Filter.Len() != 0 {
		t.Fatalf("expected all filters dropped, got %v", req.Filter.Predicates())
	}
}

func TestNormalizeClampsRanges(t *testing.T) {
	req := Normalize(Raw{"min_rating": NumberValue(9), "price_level": StringValue("-3")})

	rating, ok := req.Filter.Get(FieldMinRating)
	if !ok || rating.Num != 5 {
		t.Fatalf("expected min_rating clamped to 5, got %+v", rating)
	}
	level, ok := req.Filter.Get(FieldPriceLevel)
	if !ok || level.Num != 0 {
		t.Fatalf("expected price_level clamped to 0, got %+v", level)
	}
}

func TestFilterFieldsAreOrdered(t *testing.T) {
	req := Normalize(Raw{"status": StringValue("new"), "city": StringValue("Austin"), "category": StringValue("Plumber")})
	var got []Field
	for _, p := range req.Filter.Predicates() {
		got = append(got, p.Field)
	}
	want := []Field{FieldCategory, FieldCity, FieldStatus}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDeriveKeyDiffersByTenantAndPage(t *testing.T) {
	raw := Raw{"city": StringValue("Austin")}
	tenantA := uuid.New()
	tenantB := uuid.New()

	keyA := DeriveKey(Normalize(raw).ForTenant(tenantA))
	keyB := DeriveKey(Normalize(raw).ForTenant(tenantB))
	if keyA.String() == keyB.String() {
		t.Fatal("expected different tenants to produce different keys")
	}

	paged := Raw{"city": StringValue("Austin"), "page": StringValue("2")}
	keyPaged := DeriveKey(Normalize(paged).ForTenant(tenantA))
	if keyA.String() == keyPaged.String() {
		t.Fatal("expected different pages to produce different keys")
	}

	if !strings.HasPrefix(keyA.String(), "leads:search:v1:"+tenantA.String()+":") {
		t.Fatalf("unexpected key layout %s", keyA)
	}
}

func TestCanonicalEscapesSeparators(t *testing.T) {
	a := Normalize(Raw{"city": StringValue("a&category=b")})
	b := Normalize(Raw{"city": StringValue("a"), "category": StringValue("b")})
	if a.Canonical() == b.Canonical() {
		t.Fatalf("expected distinct canonical forms, both were %q", a.Canonical())
	}
}

func TestFromValuesFoldsKeysAndTakesFirstValue(t *testing.T) {
	values := url.Values{"City": {"Austin", "Dallas"}, " LIMIT ": {"5"}}
	raw := FromValues(values)

	if raw["city"].Str != "Austin" {
		t.Fatalf("expected first city value, got %+v", raw["city"])
	}
	if raw["limit"].Str != "5" {
		t.Fatalf("expected folded limit key, got %+v", raw)
	}
}

func TestDecodeJSONRejectsNonObject(t *testing.T) {
	for _, body := range []string{`[1,2]`, `"city"`, `{"city":`} {
		_, err := DecodeJSON([]byte(body))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("body %s: expected ValidationError, got %v", body, err)
		}
	}
}

func TestDecodeJSONKeepsScalarKinds(t *testing.T) {
	raw := mustDecodeJSON(t, `{"min_rating": 4.5, "has_website": true, "city": null, "tags": ["x"]}`)

	if raw["min_rating"].Kind != KindNumber || raw["min_rating"].Num != 4.5 {
		t.Fatalf("expected number, got %+v", raw["min_rating"])
	}
	if raw["has_website"].Kind != KindBool || !raw["has_website"].Bool {
		t.Fatalf("expected bool, got %+v", raw["has_website"])
	}
	if raw["city"].Kind != KindNull {
		t.Fatalf("expected null, got %+v", raw["city"])
	}
	if _, ok := raw["tags"]; ok {
		t.Fatal("expected array value to be ignored")
	}
}

func mustDecodeJSON(t *testing.T, body string) Raw {
	t.Helper()
	raw, err := DecodeJSON([]byte(body))
	if err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return raw
}

func TestFoldTextConcurrent(t *testing.T) {
	inputs := map[string]string{
		"  SAN   Antonio ": "san antonio",
		"ÉCOLE":            "école",
		"Straße":           "straße",
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in, want := range inputs {
				if got := foldText(in); got != want {
					errs <- in + " -> " + got
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatalf("unexpected fold %s", e)
	}
}
