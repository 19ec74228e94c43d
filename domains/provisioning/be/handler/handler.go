package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/hubmetrix/domains/provisioning/be/service"
	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/hubmetrix/platform/go/auth"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
	"github.com/zenGate-Global/hubmetrix/platform/go/hubspot"
	platformlogging "github.com/zenGate-Global/hubmetrix/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/hubmetrix/platform/go/middleware"
	"github.com/zenGate-Global/hubmetrix/platform/go/problems"
	"github.com/zenGate-Global/hubmetrix/platform/go/session"
)

// maxEventBytes caps billing notification bodies.
const maxEventBytes = 1 << 20

type operation string

const (
	installOperation        operation = "installCallback"
	loadOperation           operation = "loadCallback"
	uninstallOperation      operation = "uninstallCallback"
	crmOperation            operation = "crmCallback"
	billingEventOperation   operation = "billingEvent"
	statusOperation         operation = "status"
	paymentSetupOperation   operation = "paymentSetup"
	paymentSuccessOperation operation = "paymentSuccess"
)

// Workflow is the provisioning surface the HTTP layer drives.
type Workflow interface {
	Install(ctx context.Context, in service.InstallInput) (service.SessionUser, error)
	Load(ctx context.Context, signedPayload string) (service.LoadResult, error)
	Uninstall(ctx context.Context, signedPayload string) error
	LinkCRM(ctx context.Context, storeHash, code string) (service.LinkResult, error)
	HandleSubscriptionEvent(ctx context.Context, payload []byte) (service.EventOutcome, error)
	Status(ctx context.Context, storeHash string) (service.StatusSummary, error)
	CRMAuthorizeURL() string
	StartCheckout(ctx context.Context, storeHash string) (chargebee.HostedPage, error)
	CompleteCheckout(ctx context.Context, storeHash, pageID string) (chargebee.Subscription, error)
}

// Sessions writes the browser session.
type Sessions interface {
	Put(w http.ResponseWriter, r *http.Request, data session.Data) error
	Update(w http.ResponseWriter, r *http.Request, mutate func(*session.Data)) error
}

// Guards are the per-group middleware applied by Register. Nil entries are skipped.
type Guards struct {
	// Contract validates callback requests against the OpenAPI contract.
	Contract func(http.Handler) http.Handler
	// BillingAuth authenticates billing provider notifications.
	BillingAuth func(http.Handler) http.Handler
}

// Handler serves the platform, CRM and billing callbacks plus the store admin pages.
type Handler struct {
	svc      Workflow
	sessions Sessions
	appURL   string
	logger   *zap.Logger
}

// New constructs a Handler instance. appURL is the public base URL redirects point into.
func New(svc Workflow, sessions Sessions, appURL string, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("provisioning service is required")
	}
	if sessions == nil {
		panic("session manager is required")
	}
	if strings.TrimSpace(appURL) == "" {
		panic("app url is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, sessions: sessions, appURL: strings.TrimRight(appURL, "/"), logger: logger}
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router, guards Guards) {
	r.Group(func(r chi.Router) {
		use(r, guards.Contract)
		r.Get(service.PathInstallCallback, h.InstallCallback)
		r.Get("/bigcommerce/load", h.LoadCallback)
		r.Get("/bigcommerce/uninstall", h.UninstallCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(platformauth.RequireStoreUser)
		use(r, guards.Contract)
		r.Get("/hsauth", h.CRMCallback)
	})

	r.Group(func(r chi.Router) {
		use(r, guards.BillingAuth)
		r.Use(platformmiddleware.ProviderTrace("chargebee"))
		use(r, guards.Contract)
		r.Post("/billing/events", h.BillingEvent)
	})

	r.Group(func(r chi.Router) {
		r.Use(platformauth.RequireStoreUser)
		r.Get(service.PathHome, h.Home)
		r.Get(service.PathGetStarted, h.GetStarted)
		r.Get(service.PathPaymentSetup, h.PaymentSetup)
		r.Get(service.PathPaymentSuccess, h.PaymentSuccess)
		r.Get("/backtobigcommerce", h.BackToBigCommerce)
	})
}

func use(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}

// InstallCallback completes the platform OAuth handshake and starts the session.
func (h *Handler) InstallCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, err := h.svc.Install(r.Context(), service.InstallInput{
		Code:    q.Get("code"),
		Context: q.Get("context"),
		Scope:   q.Get("scope"),
	})
	if err != nil {
		h.writeProblem(w, r, err, installOperation)
		return
	}
	if !h.startSession(w, r, user, installOperation) {
		return
	}
	http.Redirect(w, r, h.url(service.PathGetStarted), http.StatusFound)
}

// LoadCallback handles the control panel re-entry and routes the user to their next page.
func (h *Handler) LoadCallback(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Load(r.Context(), signedPayload(r))
	if err != nil {
		h.writeProblem(w, r, err, loadOperation)
		return
	}
	if !h.startSession(w, r, result.User, loadOperation) {
		return
	}
	http.Redirect(w, r, h.url(result.Next.Path()), http.StatusFound)
}

// UninstallCallback removes the store.
func (h *Handler) UninstallCallback(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Uninstall(r.Context(), signedPayload(r)); err != nil {
		h.writeProblem(w, r, err, uninstallOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkResponse struct {
	Provisioned bool   `json:"provisioned"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// CRMCallback links the CRM portal to the session's store.
func (h *Handler) CRMCallback(w http.ResponseWriter, r *http.Request) {
	user, _ := platformauth.UserFromContext(r.Context())
	result, err := h.svc.LinkCRM(r.Context(), user.StoreHash, r.URL.Query().Get("code"))
	if err != nil {
		h.writeProblem(w, r, err, crmOperation)
		return
	}

	resp := linkResponse{Provisioned: result.Provisioned}
	if !result.Provisioned {
		resp.CheckoutURL = h.url(service.PathPaymentSetup)
	}
	writeJSON(w, http.StatusOK, resp)
}

type eventResponse struct {
	Outcome service.EventOutcome `json:"outcome"`
}

// BillingEvent acknowledges a billing provider notification. Once the payload parses the
// response is always 200; processing failures are logged.
func (h *Handler) BillingEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		h.writeProblem(w, r, fmt.Errorf("%w: read body: %v", service.ErrInvalidEvent, err), billingEventOperation)
		return
	}

	outcome, err := h.svc.HandleSubscriptionEvent(r.Context(), payload)
	switch {
	case errors.Is(err, service.ErrInvalidEvent):
		h.writeProblem(w, r, err, billingEventOperation)
		return
	case err != nil:
		platformlogging.Ctx(r.Context(), h.logger).Error("billing event processing failed",
			zap.String("operation", string(billingEventOperation)), zap.Error(err))
		outcome = "failed"
	}
	writeJSON(w, http.StatusOK, eventResponse{Outcome: outcome})
}

// Home returns the store's status summary.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	user, _ := platformauth.UserFromContext(r.Context())
	summary, err := h.svc.Status(r.Context(), user.StoreHash)
	if err != nil {
		h.writeProblem(w, r, err, statusOperation)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetStarted returns the CRM consent URL.
func (h *Handler) GetStarted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"crm_authorize_url": h.svc.CRMAuthorizeURL()})
}

type checkoutResponse struct {
	HostedPageID string `json:"hosted_page_id"`
	CheckoutURL  string `json:"checkout_url"`
}

// PaymentSetup opens a hosted checkout and remembers its id in the session.
func (h *Handler) PaymentSetup(w http.ResponseWriter, r *http.Request) {
	user, _ := platformauth.UserFromContext(r.Context())
	page, err := h.svc.StartCheckout(r.Context(), user.StoreHash)
	if err != nil {
		h.writeProblem(w, r, err, paymentSetupOperation)
		return
	}

	err = h.sessions.Update(w, r, func(d *session.Data) {
		d.HostedPageID = page.ID
	})
	if err != nil {
		h.writeProblem(w, r, err, paymentSetupOperation)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{HostedPageID: page.ID, CheckoutURL: page.URL})
}

// PaymentSuccess completes the checkout kept in the session. A ?id from the provider
// redirect must name that same page.
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	user, _ := platformauth.UserFromContext(r.Context())
	pageID := user.HostedPageID
	if pageID == "" {
		h.writeProblem(w, r, fmt.Errorf("%w: no checkout in progress", service.ErrInvalidInput), paymentSuccessOperation)
		return
	}
	if id := r.URL.Query().Get("id"); id != "" && id != pageID {
		h.writeProblem(w, r, fmt.Errorf("%w: hosted page %q does not belong to this session", service.ErrInvalidInput, id), paymentSuccessOperation)
		return
	}

	if _, err := h.svc.CompleteCheckout(r.Context(), user.StoreHash, pageID); err != nil {
		h.writeProblem(w, r, err, paymentSuccessOperation)
		return
	}

	err := h.sessions.Update(w, r, func(d *session.Data) {
		d.HostedPageID = ""
	})
	if err != nil {
		platformlogging.Ctx(r.Context(), h.logger).Warn("clear hosted page from session", zap.Error(err))
	}
	http.Redirect(w, r, h.url(service.PathHome), http.StatusFound)
}

// BackToBigCommerce sends the user to their store's control panel.
func (h *Handler) BackToBigCommerce(w http.ResponseWriter, r *http.Request) {
	user, _ := platformauth.UserFromContext(r.Context())
	http.Redirect(w, r, service.StoreAdminURL(user.StoreHash), http.StatusFound)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user service.SessionUser, op operation) bool {
	err := h.sessions.Put(w, r, session.Data{
		StoreHash:      user.StoreHash,
		StoreUserEmail: user.Email,
		PlatformUserID: user.PlatformUserID,
	})
	if err != nil {
		h.writeProblem(w, r, err, op)
		return false
	}
	return true
}

func (h *Handler) url(path string) string {
	return h.appURL + path
}

// signedPayload prefers the JWT form of the platform's signed payload.
func signedPayload(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("signed_payload_jwt"); v != "" {
		return v
	}
	return q.Get("signed_payload")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeProblem(w http.ResponseWriter, r *http.Request, err error, op operation) {
	problems.Write(w, h.problemForError(r.Context(), err, op))
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) problems.ProblemDetails {
	status, title, detail, problemType := classifyError(err)

	logger := platformlogging.Ctx(ctx, h.logger)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
		zap.Error(err),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("provisioning operation failed", fieldsForLog...)
	case status == http.StatusNotFound:
		logger.Info("provisioning resource not found", fieldsForLog...)
	default:
		logger.Warn("provisioning request rejected", fieldsForLog...)
	}

	return problems.New(title, detail, problemType, status)
}

func classifyError(err error) (status int, title, detail, problemType string) {
	switch {
	case errors.Is(err, service.ErrAuthVerificationFailed):
		return http.StatusUnauthorized, "Unauthorized", "signed payload could not be verified", problems.TypeUnauthorized
	case errors.Is(err, service.ErrNotAuthenticated):
		return http.StatusUnauthorized, "Unauthorized", "store is not installed", problems.TypeUnauthorized
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidEvent):
		return http.StatusBadRequest, "Validation failed", err.Error(), problems.TypeValidation
	case errors.Is(err, chargebee.ErrSubscriptionNotFound), errors.Is(err, service.ErrNoSubscription):
		return http.StatusNotFound, "Resource not found", "subscription not found", problems.TypeNotFound
	case errors.Is(err, chargebee.ErrHostedPageIncomplete):
		return http.StatusConflict, "Conflict", "checkout has not been completed", problems.TypeConflict
	case errors.Is(err, tenants.ErrConflict):
		return http.StatusConflict, "Conflict", "store record was modified concurrently", problems.TypeConflict
	case errors.Is(err, chargebee.ErrConfig), errors.Is(err, bigcommerce.ErrConfig):
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problems.TypeInternal
	case errors.Is(err, bigcommerce.ErrAuthExchange),
		errors.Is(err, hubspot.ErrAuthExchange),
		errors.Is(err, hubspot.ErrTokenIntrospection):
		return http.StatusBadGateway, "Authorization failed", "the provider rejected the authorization", problems.TypeUpstream
	case errors.Is(err, bigcommerce.ErrTransientProvider),
		errors.Is(err, bigcommerce.ErrRequest),
		errors.Is(err, chargebee.ErrRequest):
		return http.StatusBadGateway, "Bad gateway", "a provider request failed", problems.TypeUpstream
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problems.TypeInternal
	}
}
