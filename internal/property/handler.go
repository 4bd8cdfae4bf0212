package property

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/auth"
	"github.com/enggsatyamraj/rentify-backend/internal/web"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createRequest struct {
	Title           string          `json:"title" validate:"required,min=5,max=100"`
	Description     string          `json:"description" validate:"max=2000"`
	PropertyType    string          `json:"property_type" validate:"required,oneof=full-house single-room multi-room pg"`
	City            string          `json:"city" validate:"required"`
	Address         string          `json:"address"`
	BasePrice       decimal.Decimal `json:"base_price"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
	BillType        string          `json:"bill_type" validate:"omitempty,oneof=daily monthly quarterly yearly"`
	TotalRooms      int             `json:"total_rooms" validate:"required,min=1"`
	AvailableFrom   string          `json:"available_from" validate:"required,date"`
}

type updateRequest struct {
	Title           *string          `json:"title" validate:"omitempty,min=5,max=100"`
	Description     *string          `json:"description" validate:"omitempty,max=2000"`
	PropertyType    *string          `json:"property_type" validate:"omitempty,oneof=full-house single-room multi-room pg"`
	City            *string          `json:"city" validate:"omitempty,min=1"`
	Address         *string          `json:"address"`
	BasePrice       *decimal.Decimal `json:"base_price"`
	SecurityDeposit *decimal.Decimal `json:"security_deposit"`
	BillType        *string          `json:"bill_type" validate:"omitempty,oneof=daily monthly quarterly yearly"`
	AvailableFrom   *string          `json:"available_from" validate:"omitempty,date"`
}

type verifyRequest struct {
	IsVerified *bool `json:"is_verified" validate:"required"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req createRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	availableFrom, err := web.ParseDate(req.AvailableFrom)
	if err != nil {
		web.Fail(w, h.logger, apperr.Wrap(apperr.Invalid, err, "Invalid available_from"))
		return
	}

	p, err := h.service.CreateProperty(r.Context(), actor.UserID, CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		PropertyType:    req.PropertyType,
		City:            req.City,
		Address:         req.Address,
		BasePrice:       req.BasePrice,
		SecurityDeposit: req.SecurityDeposit,
		BillType:        req.BillType,
		TotalRooms:      req.TotalRooms,
		AvailableFrom:   availableFrom,
	})
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusCreated, "Property created successfully", p)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := web.Page(r)
	f := Filter{
		City:         q.Get("city"),
		PropertyType: q.Get("property_type"),
		Page:         page,
		Limit:        limit,
	}
	var err error
	if f.MinPrice, err = optionalDecimal(q.Get("min_price")); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	if f.MaxPrice, err = optionalDecimal(q.Get("max_price")); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	props, total, err := h.service.ListProperties(r.Context(), f)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Properties retrieved successfully", props, len(props), web.NewPagination(page, limit, total))
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	props, err := h.service.ListOwnerProperties(r.Context(), actor.UserID)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Properties retrieved successfully", props, len(props), nil)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	p, err := h.service.GetProperty(r.Context(), id)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Property retrieved successfully", p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	var req updateRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	in := UpdateInput{
		Title:           req.Title,
		Description:     req.Description,
		PropertyType:    req.PropertyType,
		City:            req.City,
		Address:         req.Address,
		BasePrice:       req.BasePrice,
		SecurityDeposit: req.SecurityDeposit,
		BillType:        req.BillType,
	}
	if req.AvailableFrom != nil {
		if in.AvailableFrom, err = web.OptionalDate(*req.AvailableFrom); err != nil {
			web.Fail(w, h.logger, err)
			return
		}
	}

	p, err := h.service.UpdateProperty(r.Context(), actor.UserID, id, in)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Property updated successfully", p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	if err := h.service.DeactivateProperty(r.Context(), actor.UserID, id); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Property deleted successfully", nil)
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	p, added, err := h.service.ToggleFavorite(r.Context(), actor.UserID, id)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	msg := "Property removed from favorites"
	if added {
		msg = "Property added to favorites"
	}
	web.OK(w, http.StatusOK, msg, map[string]interface{}{
		"favorited":      added,
		"favorite_count": p.FavoriteCount,
	})
}

func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	props, err := h.service.ListFavorites(r.Context(), actor.UserID)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Favorites retrieved successfully", props, len(props), nil)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, limit := web.Page(r)
	f := AdminFilter{Page: page, Limit: limit}
	if v := r.URL.Query().Get("is_verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			web.Fail(w, h.logger, apperr.New(apperr.Invalid, "is_verified must be a boolean value"))
			return
		}
		f.IsVerified = &b
	}

	props, total, err := h.service.ListAllProperties(r.Context(), f)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Properties retrieved successfully", props, len(props), web.NewPagination(page, limit, total))
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	var req verifyRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	p, err := h.service.SetVerified(r.Context(), id, *req.IsVerified)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	msg := "Property unverified successfully"
	if p.IsVerified {
		msg = "Property verified successfully"
	}
	web.OK(w, http.StatusOK, msg, p)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.Invalid, "Invalid %s", name)
	}
	return id, nil
}

func optionalDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, apperr.New(apperr.Invalid, "Invalid price %q", s)
	}
	return &d, nil
}
