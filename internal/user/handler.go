package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/auth"
	"github.com/enggsatyamraj/rentify-backend/internal/web"
)

type Handler struct {
	service Service
	issuer  *auth.Issuer
	logger  *zap.Logger
}

func NewHandler(service Service, issuer *auth.Issuer, logger *zap.Logger) *Handler {
	return &Handler{service: service, issuer: issuer, logger: logger}
}

type signUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=128"`
	FirstName string `json:"first_name" validate:"required,min=2,max=50"`
	LastName  string `json:"last_name" validate:"required,min=2,max=50"`
	Phone     string `json:"phone" validate:"omitempty,min=10,max=15"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type session struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	u, err := h.service.Register(r.Context(), RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	web.OK(w, http.StatusCreated, "User registered successfully. Please verify your email address", u)
}

// Verify confirms the code mailed at sign-up. The caller signs in afterwards.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	u, err := h.service.VerifyEmail(r.Context(), req.Email, req.OTP)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "Email verified successfully. Please login to continue", u)
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.Email); err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "New OTP sent successfully", nil)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := web.Decode(r, &req); err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	u, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}

	h.respondWithSession(w, http.StatusOK, "Signed in successfully", u)
}

// Me returns the caller's own record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	u, err := h.service.GetUser(r.Context(), actor.UserID)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, http.StatusOK, "User retrieved successfully", u)
}

func (h *Handler) respondWithSession(w http.ResponseWriter, status int, message string, u *User) {
	token, err := h.issuer.Issue(u.ID, u.IsAdmin)
	if err != nil {
		web.Fail(w, h.logger, err)
		return
	}
	web.OK(w, status, message, session{User: u, Token: token})
}
