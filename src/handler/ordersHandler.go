package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/auth"
	"limitbot/src/controller"
	"limitbot/src/model"
	"limitbot/src/repository"
)

type orderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error)
}

// OrderService is the controller surface the order handlers use.
type OrderService interface {
	PlaceOrder(ctx context.Context, req controller.PlaceOrderRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrder(ctx context.Context, id string) (*controller.OrderDetail, error)
	ListOrders(ctx context.Context, tokenAddress string) ([]model.Order, error)
	Stats(ctx context.Context) (model.OrderStats, error)
}

// SearchOrdersHandler lists orders of any status.
// Supports pagination and filters (status, token, side).
func SearchOrdersHandler(repo orderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var status *model.OrderStatus
		if statusParam := q.Get("status"); statusParam != "" {
			s := model.OrderStatus(statusParam)
			if !s.Valid() {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &s
		}

		var side *model.OrderSide
		if sideParam := q.Get("side"); sideParam != "" {
			s := model.OrderSide(sideParam)
			if !s.Valid() {
				http.Error(w, "invalid side", http.StatusBadRequest)
				return
			}
			side = &s
		}

		var token *string
		if tokenParam := q.Get("token"); tokenParam != "" {
			token = &tokenParam
		}

		page := 1
		if pageParam := q.Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := q.Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		offset := (page - 1) * pageSize

		orders, err := repo.Search(r.Context(), repository.OrderSearchOptions{
			Status:       status,
			TokenAddress: token,
			Side:         side,
			Limit:        pageSize,
			Offset:       offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, orders)
	}
}

// ListOrdersHandler returns pending orders, filtered by ?token= when given.
func ListOrdersHandler(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListOrders(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			writeError(w, err)
			return
		}
		if orders == nil {
			orders = []model.Order{}
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

func GetOrderHandler(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func CreateOrderHandler(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload controller.PlaceOrderRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid order payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		order, err := svc.PlaceOrder(r.Context(), payload)
		if err != nil {
			writeError(w, err)
			return
		}

		entry := logger.WithField("order_id", order.ID)
		if caller, ok := auth.GetCallerFromContext(r.Context()); ok {
			entry = entry.WithField("caller", caller.Name)
		}
		entry.Info("order created via api")

		writeJSON(w, http.StatusCreated, order)
	}
}

func CancelOrderHandler(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.CancelOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

func StatsHandler(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
