package medication

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medagenda/medagenda/internal/platform/auth"
	"github.com/medagenda/medagenda/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any recognized role; visibility is enforced in the service.
	readGroup := api.Group("", auth.RequireRole(string(RoleParent), string(RoleTeacher), string(RoleCoordinator)))
	readGroup.GET("/orders", h.ListOrders)
	readGroup.GET("/orders/pending", h.PendingQueue)
	readGroup.GET("/orders/:id", h.GetOrder)
	readGroup.GET("/orders/:id/history", h.History)
	readGroup.GET("/orders/:id/can-administer", h.Probe)
	readGroup.POST("/orders", h.CreateOrder)

	staffGroup := api.Group("", auth.RequireRole(string(RoleTeacher), string(RoleCoordinator)))
	staffGroup.POST("/orders/:id/administer", h.Administer)

	coordinatorGroup := api.Group("", auth.RequireRole(string(RoleCoordinator)))
	coordinatorGroup.POST("/orders/:id/decision", h.Decide)
	coordinatorGroup.POST("/orders/:id/deactivate", h.Deactivate)
}

// actorFromContext builds the Actor from the authenticated request context.
func actorFromContext(c echo.Context) Actor {
	ctx := c.Request().Context()
	return Actor{
		ID:   auth.ActorIDFromContext(ctx),
		Role: Role(auth.RoleFromContext(ctx)),
	}
}

// httpError maps domain errors to transport status codes.
func httpError(err error) error {
	var (
		validationErr *ValidationError
		authzErr      *AuthorizationError
		stateErr      *InvalidStateError
		policyErr     *PolicyViolation
		storeErr      *StorageError
	)
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &authzErr):
		return echo.NewHTTPError(http.StatusForbidden, authzErr.Error())
	case errors.As(err, &stateErr):
		return echo.NewHTTPError(http.StatusConflict, stateErr.Error())
	case errors.As(err, &policyErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     policyErr.Error(),
			"remaining": policyErr.Remaining,
		})
	case errors.Is(err, ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &storeErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var input CreateOrderInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	order, err := h.svc.CreateOrder(c.Request().Context(), input, actorFromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	order, err := h.svc.GetOrder(c.Request().Context(), id, actorFromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOrders(c.Request().Context(), actorFromContext(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) PendingQueue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.PendingQueue(c.Request().Context(), actorFromContext(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type decideRequest struct {
	Decision Decision `json:"decision"`
}

func (h *Handler) Decide(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req decideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	order, err := h.svc.Decide(c.Request().Context(), id, req.Decision, actorFromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

type administerRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Administer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req administerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")
	}
	record, err := h.svc.Administer(c.Request().Context(), id, actorFromContext(c), req.IdempotencyKey)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), id, actorFromContext(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Probe(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.Probe(c.Request().Context(), id, actorFromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	order, err := h.svc.Deactivate(c.Request().Context(), id, actorFromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}
