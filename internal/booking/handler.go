package booking

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/auth"
	"github.com/enggsatyamraj/rentify-backend/internal/web"
)

// maxContractSize bounds multipart contract uploads.
const maxContractSize = 5 << 20

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createRequest struct {
	PropertyID  string `json:"property_id" validate:"required,uuid"`
	StartDate   string `json:"start_date" validate:"required,date"`
	EndDate     string `json:"end_date" validate:"omitempty,date"`
	BookingType string `json:"booking_type" validate:"required,oneof=fixed-term month-to-month"`
	RoomCount   int    `json:"room_count" validate:"omitempty,min=1"`
}

type statusRequest struct {
	Status        string `json:"status" validate:"required,oneof=pending confirmed cancelled completed rejected"`
	Reason        string `json:"reason" validate:"max=500"`
	ScheduledDate string `json:"scheduled_date" validate:"omitempty,date"`
}

type moveInRequest struct {
	ScheduledDate string  `json:"scheduled_date" validate:"omitempty,date"`
	Status        *string `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
}

type contractRequest struct {
	DocumentURL    *string `json:"document_url" validate:"omitempty,url"`
	SignedByTenant *bool   `json:"signed_by_tenant"`
	SignedByOwner  *bool   `json:"signed_by_owner"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req createRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	in := CreateInput{
		PropertyID:  uuid.MustParse(req.PropertyID),
		BookingType: Type(req.BookingType),
		RoomCount:   req.RoomCount,
	}
	var err error
	if in.StartDate, err = web.ParseDate(req.StartDate); err != nil {
		web.Fail(w, h.logger, apperr.Wrap(apperr.Invalid, err, "Invalid start_date"))
		return
	}
	if in.EndDate, err = web.OptionalDate(req.EndDate); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	b, err := h.service.CreateBooking(r.Context(), actor.UserID, in)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusCreated, "Booking created successfully", b)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	var req statusRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	in := StatusInput{Status: Status(req.Status), Reason: req.Reason}
	if in.ScheduledDate, err = web.OptionalDate(req.ScheduledDate); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	b, err := h.service.UpdateBookingStatus(r.Context(), actor.UserID, id, in)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Booking "+string(b.Status)+" successfully", b)
}

func (h *Handler) UpdateMoveIn(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	var req moveInRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	in := MoveInInput{Notes: req.Notes}
	if in.ScheduledDate, err = web.OptionalDate(req.ScheduledDate); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	if req.Status != nil {
		s := MoveInStatus(*req.Status)
		in.Status = &s
	}

	b, err := h.service.UpdateMoveInDetails(r.Context(), actor.UserID, id, in)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Move-in details updated successfully", b)
}

// UpdateContract accepts either a JSON body or a multipart form carrying
// the document under "contractDocument".
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	var in ContractInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxContractSize+1<<20)
		if err := r.ParseMultipartForm(maxContractSize); err != nil {
			web.Fail(w, h.logger, apperr.Wrap(apperr.Invalid, err, "Invalid multipart form"))
			return
		}
		file, header, err := r.FormFile("contractDocument")
		switch {
		case err == nil:
			defer file.Close()
			if header.Size > maxContractSize {
				web.Fail(w, h.logger, apperr.New(apperr.Invalid, "Contract document exceeds 5MB"))
				return
			}
			in.Document = &Upload{Filename: header.Filename, Body: file}
		case err != http.ErrMissingFile:
			web.Fail(w, h.logger, apperr.Wrap(apperr.Invalid, err, "Invalid contract document"))
			return
		}
		if in.SignedByTenant, err = formBool(r, "signed_by_tenant"); err != nil {
			web.Fail(w, h.logger, err)
			return
		}
		if in.SignedByOwner, err = formBool(r, "signed_by_owner"); err != nil {
			web.Fail(w, h.logger, err)
			return
		}
	} else {
		var req contractRequest
		if err := web.Decode(r, &req); err != nil {
			web.Fail(w, h.logger, err)
			return
		}
		in = ContractInput{DocumentURL: req.DocumentURL, SignedByTenant: req.SignedByTenant, SignedByOwner: req.SignedByOwner}
	}

	b, err := h.service.UpdateContractDetails(r.Context(), actor.UserID, id, in)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Contract details updated successfully", b)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	bookings, err := h.service.ListBookingsForTenant(r.Context(), actor.UserID, statusParam(r))
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Bookings fetched successfully", bookings, len(bookings), nil)
}

func (h *Handler) ListForProperty(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	propertyID, err := pathID(r, "propertyId")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	bookings, err := h.service.ListBookingsForProperty(r.Context(), actor.UserID, propertyID, statusParam(r))
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Property bookings fetched successfully", bookings, len(bookings), nil)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	b, err := h.service.GetBookingByID(r.Context(), actor.UserID, id)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Booking fetched successfully", b)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	events, err := h.service.BookingHistory(r.Context(), actor.UserID, id)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.List(w, "Booking history fetched successfully", events, len(events), nil)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.Invalid, "Invalid %s", name)
	}
	return id, nil
}

// statusParam reads the status filter. Unknown values are ignored.
func statusParam(r *http.Request) *Status {
	s := Status(r.URL.Query().Get("status"))
	if !s.Valid() {
		return nil
	}
	return &s
}

func formBool(r *http.Request, key string) (*bool, error) {
	v := r.FormValue(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.New(apperr.Invalid, "%s must be a boolean value", key)
	}
	return &b, nil
}
