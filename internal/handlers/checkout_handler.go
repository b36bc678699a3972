package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leafcart/strain-admin/internal/idempotency"
	"github.com/leafcart/strain-admin/internal/metrics"
	"github.com/leafcart/strain-admin/internal/orders"
	"github.com/leafcart/strain-admin/internal/validation"
)

// RegisterCheckoutRoutes registers the surface the checkout/payment
// collaborators call: order creation (PENDING) and the payment webhook
// (PENDING -> PAID). Inventory is untouched on both paths; stock only moves
// at fulfillment.
func RegisterCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	ordersStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable, cfg.StrainsTable)
	idempStore := idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow)
	emitter := metrics.NewEmitter(cfg.CloudWatchClient, cfg.MetricsNamespace)
	svc := orders.NewService(ordersStore, emitter)
	v := validation.New()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		orderID := uuid.NewString()
		now := time.Now().UTC()

		idempItem := map[string]interface{}{
			"idempotency_key": idempKey,
			"status":          idempotency.StatusInProgress,
			"created_at":      now.Format(time.RFC3339),
			"updated_at":      now.Format(time.RFC3339),
			"order_id":        orderID,
		}

		items := make([]orders.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, orders.OrderItem{
				StrainID:          it.StrainID,
				StrainName:        it.StrainName,
				Grams:             it.Grams,
				PricePerGramCents: it.PricePerGramCents,
				LineTotalCents:    it.LineTotalCents,
			})
		}
		order := orders.Order{
			OrderID:    orderID,
			Email:      req.Email,
			Status:     orders.StatusPending,
			TotalCents: req.TotalCents,
			PaymentRef: req.PaymentRef,
			Items:      items,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		err := ordersStore.CreateWithIdempotencyTransaction(ctx, cfg.IdempotencyTable, idempItem, order, cfg.TTLWindow)
		if err != nil {
			// the transaction most likely lost to an earlier submission with
			// the same key; replay whatever that attempt recorded
			rec, getErr := idempStore.Get(ctx, idempKey)
			if getErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "msg": getErr.Error()})
				return
			}
			if rec == nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed_no_idempotency_record", "msg": err.Error()})
				return
			}
			switch rec.Status {
			case idempotency.StatusDone:
				if rec.ResponseBody != "" {
					c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
					return
				}
				c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
				return
			case idempotency.StatusInProgress:
				c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
				return
			case idempotency.StatusFailed:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "order_id": rec.OrderID})
				return
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
				return
			}
		}

		responseBody, _ := json.Marshal(gin.H{"order_id": orderID, "status": orders.StatusPending})
		_ = idempStore.MarkDone(ctx, idempKey, string(responseBody), http.StatusCreated)
		emitter.Count(ctx, "OrderCreated")

		c.Header("Location", fmt.Sprintf("/admin/orders/%s", orderID))
		c.JSON(http.StatusCreated, gin.H{"order_id": orderID, "status": orders.StatusPending})
	})

	r.POST("/webhooks/payment", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.PaymentWebhookRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		updated, err := svc.ConfirmPayment(ctx, req.OrderID, req.PaymentRef)
		if err != nil {
			status, body := transitionErrorResponse(err)
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, updated)
	})
}
