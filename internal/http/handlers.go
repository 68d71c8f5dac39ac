package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/service"
)

type Handlers struct {
	carts         *service.CartService
	checkout      *service.CheckoutService
	prescriptions *service.PrescriptionService
	reconcile     *service.ReconcileService
	orders        *service.OrderService
}

func NewHandlers(
	carts *service.CartService,
	checkout *service.CheckoutService,
	prescriptions *service.PrescriptionService,
	reconcile *service.ReconcileService,
	orders *service.OrderService,
) *Handlers {
	return &Handlers{
		carts:         carts,
		checkout:      checkout,
		prescriptions: prescriptions,
		reconcile:     reconcile,
		orders:        orders,
	}
}

// Routes mounts every operation under /api/v1.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/cart", h.GetCart)
		r.Post("/cart/items", h.AddItem)
		r.Patch("/cart/items/{lineID}", h.UpdateItem)
		r.Delete("/cart/items/{lineID}", h.RemoveItem)

		r.Post("/checkout", h.Checkout)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/track/{code}", h.TrackOrder)
		r.Get("/orders/{orderID}", h.GetOrder)
		r.Post("/orders/{orderID}/resume", h.ResumeCheckout)
		r.Post("/orders/{orderID}/prescription", h.UploadReplacement)
		r.Post("/orders/{orderID}/status", h.AdvanceFulfillment)

		r.Post("/payments/reconcile", h.ReconcilePayment)
		r.Get("/payments/callback", h.PaymentCallback)

		r.Post("/prescriptions/{docID}/review", h.ReviewPrescription)
	})
}

type AddItemRequestDTO struct {
	SellerID string `json:"seller_id"`
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SellerID == "" || req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "seller_id and item_id are required")
		return
	}

	view, err := h.carts.AddItem(r.Context(), guestID, req.SellerID, req.ItemID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

type UpdateItemRequestDTO struct {
	Quantity int64 `json:"quantity"`
}

func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_line_id", "line id must be a UUID")
		return
	}

	var req UpdateItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := h.carts.UpdateItem(r.Context(), guestID, lineID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_line_id", "line id must be a UUID")
		return
	}

	view, err := h.carts.RemoveItem(r.Context(), guestID, lineID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}

	view, err := h.carts.GetCart(r.Context(), guestID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type CheckoutRequestDTO struct {
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Address             string `json:"address"`
	DeliveryMethod      string `json:"delivery_method"`
	PrescriptionFileURL string `json:"prescription_file_url"`
}

type CheckoutResponseDTO struct {
	SessionID            string          `json:"session_id"`
	Orders               []*domain.Order `json:"orders"`
	PayableAmount        int64           `json:"payable_amount"`
	AwaitingVerification bool            `json:"awaiting_verification"`
	AuthorizationURL     string          `json:"authorization_url,omitempty"`
	PaymentReference     string          `json:"payment_reference,omitempty"`
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.checkout.Checkout(r.Context(), &service.CheckoutRequest{
		GuestID: guestID,
		Contact: service.ContactInfo{
			Email:          req.Email,
			Phone:          req.Phone,
			Address:        req.Address,
			DeliveryMethod: domain.DeliveryMethod(req.DeliveryMethod),
		},
		PrescriptionFileURL: req.PrescriptionFileURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, checkoutResponse(result))
}

func (h *Handlers) ResumeCheckout(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}

	result, err := h.checkout.Resume(r.Context(), guestID, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkoutResponse(result))
}

func checkoutResponse(result *service.CheckoutResult) CheckoutResponseDTO {
	resp := CheckoutResponseDTO{
		SessionID:            result.SessionID.String(),
		Orders:               result.Orders,
		PayableAmount:        result.PayableAmount,
		AwaitingVerification: result.AwaitingVerification,
	}
	if result.Authorization != nil {
		resp.AuthorizationURL = result.Authorization.AuthorizationURL
		resp.PaymentReference = result.Authorization.Reference
	}
	return resp
}

type ReconcileRequestDTO struct {
	Reference string `json:"reference"`
}

func (h *Handlers) ReconcilePayment(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}

	var req ReconcileRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Reference == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reference is required")
		return
	}

	result, err := h.reconcile.Reconcile(r.Context(), guestID, req.Reference)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// PaymentCallback is the gateway redirect target. The guest identity comes
// from the resolved session, not the request.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reference query parameter is required")
		return
	}

	result, err := h.reconcile.Reconcile(r.Context(), "", reference)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type ReviewRequestDTO struct {
	Decision string `json:"decision"`
}

func (h *Handlers) ReviewPrescription(w http.ResponseWriter, r *http.Request) {
	role := roleFromContext(r.Context())
	docID, err := uuid.Parse(chi.URLParam(r, "docID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_document_id", "document id must be a UUID")
		return
	}

	var req ReviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err = h.prescriptions.Review(r.Context(), role, docID, domain.PrescriptionStatus(req.Decision))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": req.Decision})
}

type UploadReplacementDTO struct {
	FileURL string `json:"file_url"`
}

func (h *Handlers) UploadReplacement(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}

	var req UploadReplacementDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	doc, err := h.prescriptions.UploadReplacement(r.Context(), guestID, orderID, req.FileURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}

	orders, err := h.orders.ListByGuest(r.Context(), guestID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	guestID := guestIDFromContext(r.Context())
	if guestID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing guest identity")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}

	order, err := h.orders.Get(r.Context(), guestID, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetByTrackingCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

type AdvanceStatusDTO struct {
	Status string `json:"status"`
}

func (h *Handlers) AdvanceFulfillment(w http.ResponseWriter, r *http.Request) {
	role := roleFromContext(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}

	var req AdvanceStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err = h.orders.AdvanceFulfillment(r.Context(), role, orderID, domain.OrderStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
