package medication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medagenda/medagenda/internal/platform/auth"
)

func newHandlerEnv(t *testing.T) (*Handler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewHandler(env.svc), env
}

// request builds an echo context with the actor injected the way the auth
// middleware does.
func request(t *testing.T, method, target, body string, actor Actor) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	ctx := req.Context()
	ctx = context.WithValue(ctx, auth.ActorIDKey, actor.ID)
	ctx = context.WithValue(ctx, auth.ActorRoleKey, string(actor.Role))
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		t.Fatal("expected an HTTP error")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestHandlerCreateOrder_Created(t *testing.T) {
	h, _ := newHandlerEnv(t)
	body := `{"student_id":"` + studentAna.String() + `","name":"Amoxicillin","dosage":"5ml","daily_times":["08:00","14:00","20:00"]}`
	c, rec := request(t, http.MethodPost, "/api/v1/orders", body, coordinatorActor)

	if err := h.CreateOrder(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"approved"`) {
		t.Errorf("expected auto-approved coordinator order, got %s", rec.Body.String())
	}
}

func TestHandlerCreateOrder_ParentMissingAttachment(t *testing.T) {
	h, _ := newHandlerEnv(t)
	body := `{"student_id":"` + studentAna.String() + `","name":"Amoxicillin","dosage":"5ml","daily_times":["08:00"]}`
	c, _ := request(t, http.MethodPost, "/api/v1/orders", body, parentActor)

	err := h.CreateOrder(c)
	if code := httpStatus(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandlerGetOrder_NotFound(t *testing.T) {
	h, _ := newHandlerEnv(t)
	c, _ := request(t, http.MethodGet, "/", "", coordinatorActor)
	c.SetParamNames("id")
	c.SetParamValues("99999999-9999-9999-9999-999999999999")

	err := h.GetOrder(c)
	if code := httpStatus(t, err); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandlerGetOrder_Forbidden(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createApproved(t, env, studentBeto)

	c, _ := request(t, http.MethodGet, "/", "", parentActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	err := h.GetOrder(c)
	if code := httpStatus(t, err); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandlerGetOrder_InvalidID(t *testing.T) {
	h, _ := newHandlerEnv(t)
	c, _ := request(t, http.MethodGet, "/", "", coordinatorActor)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetOrder(c)
	if code := httpStatus(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandlerDecide_AlreadyDecidedConflict(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createPending(t, env, studentAna)
	if _, err := env.svc.Decide(context.Background(), order.ID, DecisionApproved, coordinatorActor); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}

	c, _ := request(t, http.MethodPost, "/", `{"decision":"rejected"}`, coordinatorActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	err := h.Decide(c)
	if code := httpStatus(t, err); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandlerDecide_OK(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createPending(t, env, studentAna)

	c, rec := request(t, http.MethodPost, "/", `{"decision":"approved"}`, coordinatorActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	if err := h.Decide(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"approved"`) {
		t.Errorf("expected approved order, got %s", rec.Body.String())
	}
}

func TestHandlerAdminister_CooldownUnprocessable(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createApproved(t, env, studentAna)

	env.clk.Set(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	if _, err := env.svc.Administer(context.Background(), order.ID, teacherActor, "key-1"); err != nil {
		t.Fatalf("first dose failed: %v", err)
	}
	env.clk.Set(time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC))

	c, _ := request(t, http.MethodPost, "/", `{"idempotency_key":"key-2"}`, teacherActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	err := h.Administer(c)
	if code := httpStatus(t, err); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", code)
	}
}

func TestHandlerAdminister_KeyFromHeader(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createApproved(t, env, studentAna)
	env.clk.Set(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

	c, rec := request(t, http.MethodPost, "/", "", teacherActor)
	c.Request().Header.Set("Idempotency-Key", "header-key")
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	if err := h.Administer(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.ledger.records) != 1 || env.ledger.records[0].IdempotencyKey != "header-key" {
		t.Error("expected record keyed by Idempotency-Key header")
	}
}

func TestHandlerHistory_OK(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createApproved(t, env, studentAna)
	env.clk.Set(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	if _, err := env.svc.Administer(context.Background(), order.ID, teacherActor, "key-1"); err != nil {
		t.Fatalf("administer failed: %v", err)
	}

	c, rec := request(t, http.MethodGet, "/?limit=10", "", parentActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	if err := h.History(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one ledger entry, got %s", rec.Body.String())
	}
}

func TestHandlerProbe_OK(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createApproved(t, env, studentAna)

	c, rec := request(t, http.MethodGet, "/", "", coordinatorActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	if err := h.Probe(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"permitted":true`) {
		t.Errorf("expected permitted probe, got %s", rec.Body.String())
	}
}

func TestHandlerListOrders_VisibilityApplied(t *testing.T) {
	h, env := newHandlerEnv(t)
	createApproved(t, env, studentAna)
	createApproved(t, env, studentBeto)

	c, rec := request(t, http.MethodGet, "/", "", parentActor)
	if err := h.ListOrders(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected parent to see 1 order, got %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), studentBeto.String()) {
		t.Error("parent response leaked another student's order")
	}
}

func TestHandlerDeactivate_Forbidden(t *testing.T) {
	h, env := newHandlerEnv(t)
	order := createApproved(t, env, studentAna)

	c, _ := request(t, http.MethodPost, "/", "", teacherActor)
	c.SetParamNames("id")
	c.SetParamValues(order.ID.String())

	err := h.Deactivate(c)
	if code := httpStatus(t, err); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}
