package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestFromContext_ParsesValues(t *testing.T) {
	p := paramsFor(t, "limit=50&offset=10")
	if p.Limit != 50 || p.Offset != 10 {
		t.Errorf("expected {50 10}, got %+v", p)
	}
}

func TestFromContext_CapsLimit(t *testing.T) {
	p := paramsFor(t, "limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("expected capped limit %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeValues(t *testing.T) {
	p := paramsFor(t, "limit=-1&offset=-5")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit for negative input, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0 for negative input, got %d", p.Offset)
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if got := p.SQL(); got != "LIMIT 20 OFFSET 40" {
		t.Errorf("unexpected SQL clause %q", got)
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}

	if !p.HasNext(25) {
		t.Error("expected HasNext(25) true")
	}
	if p.HasNext(20) {
		t.Error("expected HasNext(20) false")
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious true")
	}
	if got := p.NextOffset(); got != 20 {
		t.Errorf("expected next offset 20, got %d", got)
	}
	if got := p.PreviousOffset(); got != 0 {
		t.Errorf("expected previous offset 0, got %d", got)
	}

	first := Params{Limit: 10, Offset: 5}
	if got := first.PreviousOffset(); got != 0 {
		t.Errorf("expected previous offset clamped to 0, got %d", got)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 30, 10, 10)
	if !r.HasMore {
		t.Error("expected HasMore true")
	}
	r = NewResponse([]string{"a"}, 20, 10, 10)
	if r.HasMore {
		t.Error("expected HasMore false")
	}
}
