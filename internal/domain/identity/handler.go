package identity

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/middleware"
	"github.com/bptrack/bptrack/internal/platform/oauth"
)

// Response details for the account endpoints.
const (
	DetailUserNotFound    = "USER_NOT_FOUND"
	DetailUserInactive    = "USER_INACTIVE"
	DetailUserNotVerified = "USER_NOT_VERIFIED"
	DetailInvalidPassword = "INVALID_PASSWORD"
	DetailUserExists      = "REGISTER_USER_ALREADY_EXISTS"
	DetailInvalidOTP      = "INVALID_OR_EXPIRED_OTP"
	DetailOTPDelivery     = "OTP_DELIVERY_FAILED"
	DetailTooManyAttempts = "TOO_MANY_ATTEMPTS"
	DetailOTPVerified     = "OTP_VERIFIED"
	DetailVerifyRequested = "VERIFY_TOKEN_REQUESTED"

	DetailResetRequested        = "RESET_PASSWORD_REQUESTED"
	DetailPasswordReset         = "PASSWORD_RESET"
	DetailResetBadToken         = "RESET_PASSWORD_BAD_TOKEN"
	DetailResetInvalidPassword  = "RESET_PASSWORD_INVALID_PASSWORD"
	DetailUpdateEmailExists     = "UPDATE_USER_EMAIL_ALREADY_EXISTS"
	DetailUpdateInvalidPassword = "UPDATE_USER_INVALID_PASSWORD"

	DetailOAuthDenied      = "OAUTH_ACCESS_DENIED"
	DetailOAuthState       = "OAUTH_INVALID_STATE"
	DetailOAuthNoEmail     = "OAUTH_NOT_AVAILABLE_EMAIL"
	DetailOAuthExchange    = "OAUTH_CODE_EXCHANGE_FAILED"
	DetailOAuthUnavailable = "OAUTH_PROVIDER_UNAVAILABLE"

	tokenTypeBearer = "bearer"
)

// Handler provides the account HTTP handlers.
type Handler struct {
	svc            *Service
	verifyRedirect string
}

// NewHandler creates a new identity handler. verifyRedirect is where GET
// /auth/verify-otp sends the browser when no redirect_to is given.
func NewHandler(svc *Service, verifyRedirect string) *Handler {
	return &Handler{svc: svc, verifyRedirect: verifyRedirect}
}

// RegisterRoutes registers the public auth routes on authGroup and the
// routes that need a verified caller on api and fhirGroup.
func (h *Handler) RegisterRoutes(authGroup, api, fhirGroup *echo.Group) {
	authGroup.POST("/register", h.Register)
	authGroup.POST("/register-json", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/verify-otp", h.VerifyOTP)
	authGroup.GET("/verify-otp", h.VerifyOTPLink)
	authGroup.POST("/request-verify-token", h.RequestVerifyToken)
	authGroup.POST("/forgot-password", h.ForgotPassword)
	authGroup.POST("/reset-password", h.ResetPassword)

	api.GET("/users/me", h.Me)
	api.PATCH("/users/me", h.UpdateMe)
	api.GET("/authenticated-route", h.AuthenticatedRoute)

	fhirGroup.GET("/Patient/me", h.GetPatientFHIR)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	if req.Password == "" {
		return middleware.FieldError("password", "Field required")
	}
	u, err := h.svc.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"id":    u.ID.String(),
		"email": u.Email,
	})
}

// Login accepts either a JSON body {email, password} or an OAuth2 password
// form with username and password fields.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		req.Email = c.FormValue("username")
		req.Password = c.FormValue("password")
	} else if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" {
		return middleware.FieldError("email", "Field required")
	}
	if req.Password == "" {
		return middleware.FieldError("password", "Field required")
	}

	token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	if err := requireOTPFields(req.Email, req.OTP); err != nil {
		return err
	}
	if err := h.svc.VerifyOTP(c.Request().Context(), req.Email, req.OTP); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"detail": DetailOTPVerified})
}

// VerifyOTPLink serves the link embedded in verification emails. It changes
// state on GET and answers with a 303 to redirect_to or the configured page.
func (h *Handler) VerifyOTPLink(c echo.Context) error {
	email, otp := c.QueryParam("email"), c.QueryParam("otp")
	if err := requireOTPFields(email, otp); err != nil {
		return err
	}
	if err := h.svc.VerifyOTP(c.Request().Context(), email, otp); err != nil {
		return httpError(err)
	}
	target := h.verifyRedirect
	if rt := c.QueryParam("redirect_to"); rt != "" && safeRedirect(rt) {
		target = rt
	}
	if target == "" {
		return c.JSON(http.StatusOK, map[string]string{"detail": DetailOTPVerified})
	}
	return c.Redirect(http.StatusSeeOther, target)
}

func (h *Handler) RequestVerifyToken(c echo.Context) error {
	var req VerifyTokenRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" {
		return middleware.FieldError("email", "Field required")
	}
	if err := h.svc.RequestVerification(c.Request().Context(), req.Email); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"detail": DetailVerifyRequested})
}

// RegisterOAuthRoutes mounts the sign-in flow of p under /auth/<name>.
func (h *Handler) RegisterOAuthRoutes(authGroup *echo.Group, p OAuthProvider) {
	g := authGroup.Group("/" + p.Name())
	g.GET("/authorize", func(c echo.Context) error { return h.OAuthAuthorize(c, p) })
	g.GET("/callback", func(c echo.Context) error { return h.OAuthCallback(c, p) })
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" {
		return middleware.FieldError("email", "Field required")
	}
	if err := h.svc.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"detail": DetailResetRequested})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}
	var issues []middleware.FieldIssue
	if req.Token == "" {
		issues = append(issues, middleware.FieldIssue{Loc: []string{"body", "token"}, Msg: "Field required", Type: "missing"})
	}
	if req.Password == "" {
		issues = append(issues, middleware.FieldIssue{Loc: []string{"body", "password"}, Msg: "Field required", Type: "missing"})
	}
	if len(issues) > 0 {
		return middleware.ValidationFailed(issues...)
	}

	err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.Password)
	switch {
	case errors.Is(err, ErrBadResetToken):
		return echo.NewHTTPError(http.StatusBadRequest, DetailResetBadToken)
	case errors.Is(err, ErrInvalidPassword):
		return echo.NewHTTPError(http.StatusBadRequest, DetailResetInvalidPassword)
	case err != nil:
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"detail": DetailPasswordReset})
}

func (h *Handler) OAuthAuthorize(c echo.Context, p OAuthProvider) error {
	authURL, err := h.svc.OAuthAuthorizeURL(p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AuthorizeResponse{AuthorizationURL: authURL})
}

// OAuthCallback finishes the provider flow and answers like Login.
func (h *Handler) OAuthCallback(c echo.Context, p OAuthProvider) error {
	if c.QueryParam("error") != "" {
		return echo.NewHTTPError(http.StatusBadRequest, DetailOAuthDenied)
	}
	code, state := c.QueryParam("code"), c.QueryParam("state")
	var issues []middleware.FieldIssue
	if code == "" {
		issues = append(issues, middleware.FieldIssue{Loc: []string{"query", "code"}, Msg: "Field required", Type: "missing"})
	}
	if state == "" {
		issues = append(issues, middleware.FieldIssue{Loc: []string{"query", "state"}, Msg: "Field required", Type: "missing"})
	}
	if len(issues) > 0 {
		return middleware.ValidationFailed(issues...)
	}

	token, err := h.svc.OAuthLogin(c.Request().Context(), p, code, state)
	switch {
	case errors.Is(err, ErrOAuthState):
		return echo.NewHTTPError(http.StatusBadRequest, DetailOAuthState)
	case errors.Is(err, ErrOAuthNoEmail):
		return echo.NewHTTPError(http.StatusBadRequest, DetailOAuthNoEmail)
	case errors.Is(err, oauth.ErrExchange):
		return echo.NewHTTPError(http.StatusBadRequest, DetailOAuthExchange)
	case errors.Is(err, ErrUserInactive):
		return httpError(err)
	case err != nil:
		return middleware.ServerError(http.StatusBadGateway, DetailOAuthUnavailable, err)
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

// UpdateMe changes the caller's email or password.
func (h *Handler) UpdateMe(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}

	var req UserUpdateRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return err
	}

	u, err := h.svc.UpdateUser(c.Request().Context(), id, UserUpdate{Email: req.Email, Password: req.Password})
	switch {
	case errors.Is(err, ErrUserExists):
		return echo.NewHTTPError(http.StatusBadRequest, DetailUpdateEmailExists)
	case errors.Is(err, ErrInvalidPassword):
		return echo.NewHTTPError(http.StatusBadRequest, DetailUpdateInvalidPassword)
	case err != nil:
		return httpError(err)
	}
	return c.JSON(http.StatusOK, UserRead{
		ID:         u.ID.String(),
		Email:      u.Email,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	})
}

func (h *Handler) Me(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}
	return c.JSON(http.StatusOK, UserRead{
		ID:         p.ID,
		Email:      p.Email,
		IsActive:   p.IsActive,
		IsVerified: p.IsVerified,
	})
}

func (h *Handler) AuthenticatedRoute(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Hello " + p.Email + "!"})
}

// -- FHIR Endpoints --

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.DetailUnauthorized)
	}
	return c.JSON(http.StatusOK, PatientFromPrincipal(p))
}

func requireOTPFields(email, otp string) error {
	var issues []middleware.FieldIssue
	if strings.TrimSpace(email) == "" {
		issues = append(issues, middleware.FieldIssue{Loc: []string{"body", "email"}, Msg: "Field required", Type: "missing"})
	}
	if otp == "" {
		issues = append(issues, middleware.FieldIssue{Loc: []string{"body", "otp"}, Msg: "Field required", Type: "missing"})
	}
	if len(issues) > 0 {
		return middleware.ValidationFailed(issues...)
	}
	return nil
}

// safeRedirect accepts absolute http(s) URLs and host-relative paths.
func safeRedirect(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "":
		return u.Host == "" && strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//")
	}
	return false
}

// httpError maps service errors onto the API's detail codes.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return middleware.FieldError(ve.Field, ve.Msg)
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, DetailUserNotFound)
	case errors.Is(err, ErrUserInactive):
		return echo.NewHTTPError(http.StatusBadRequest, DetailUserInactive)
	case errors.Is(err, ErrUserNotVerified):
		return echo.NewHTTPError(http.StatusBadRequest, DetailUserNotVerified)
	case errors.Is(err, ErrInvalidPassword):
		return echo.NewHTTPError(http.StatusBadRequest, DetailInvalidPassword)
	case errors.Is(err, ErrUserExists):
		return echo.NewHTTPError(http.StatusBadRequest, DetailUserExists)
	case errors.Is(err, ErrInvalidOTP):
		return echo.NewHTTPError(http.StatusBadRequest, DetailInvalidOTP)
	case errors.Is(err, ErrTooManyAttempts):
		return echo.NewHTTPError(http.StatusTooManyRequests, DetailTooManyAttempts)
	case errors.Is(err, ErrMailDelivery):
		return middleware.ServerError(http.StatusInternalServerError, DetailOTPDelivery, err)
	}
	return err
}
