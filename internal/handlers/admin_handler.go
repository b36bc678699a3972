package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leafcart/strain-admin/internal/analytics"
	"github.com/leafcart/strain-admin/internal/aws"
	"github.com/leafcart/strain-admin/internal/catalog"
	"github.com/leafcart/strain-admin/internal/idempotency"
	"github.com/leafcart/strain-admin/internal/metrics"
	"github.com/leafcart/strain-admin/internal/orders"
	"github.com/leafcart/strain-admin/internal/validation"
)

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	DynamoDBClient    aws.DynamoDBAPI
	CloudWatchClient  aws.CloudWatchAPI
	StrainsTable      string
	OrdersTable       string
	IdempotencyTable  string
	MetricsNamespace  string
	ReportingLocation *time.Location
	LowStockThreshold int64
	TTLWindow         time.Duration
}

const (
	defaultTopSellersLimit   = 5
	defaultRecentOrdersLimit = 10
	maxListLimit             = 100
)

// RegisterAdminRoutes registers the dashboard API: aggregate stats, order
// detail, and status transitions.
func RegisterAdminRoutes(r *gin.Engine, cfg HandlerConfig) {
	ledger := catalog.NewStore(cfg.DynamoDBClient, cfg.StrainsTable)
	ordersStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable, cfg.StrainsTable)
	idempStore := idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow)
	emitter := metrics.NewEmitter(cfg.CloudWatchClient, cfg.MetricsNamespace)
	svc := orders.NewService(ordersStore, emitter)
	v := validation.New()

	r.GET("/admin/stats", func(c *gin.Context) {
		ctx := c.Request.Context()
		strains, err := ledger.List(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_strains_failed", "msg": err.Error()})
			return
		}
		orderList, err := ordersStore.List(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_orders_failed", "msg": err.Error()})
			return
		}
		stats := analytics.DashboardStats(strains, orderList, cfg.LowStockThreshold)
		emitter.Gauge(ctx, "LowStockStrains", float64(stats.LowStockCount))
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/admin/orders/stats", func(c *gin.Context) {
		orderList, err := ordersStore.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_orders_failed", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, analytics.RevenueStats(orderList, time.Now(), cfg.ReportingLocation))
	})

	r.GET("/admin/top-sellers", func(c *gin.Context) {
		limit, err := validation.ParseLimit(c.Query("limit"), defaultTopSellersLimit, maxListLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "msg": err.Error()})
			return
		}
		orderList, err := ordersStore.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_orders_failed", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"top_sellers": analytics.TopSellers(orderList, limit)})
	})

	r.GET("/admin/orders/recent", func(c *gin.Context) {
		limit, err := validation.ParseLimit(c.Query("limit"), defaultRecentOrdersLimit, maxListLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "msg": err.Error()})
			return
		}
		orderList, err := ordersStore.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_orders_failed", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": analytics.RecentOrders(orderList, limit)})
	})

	r.GET("/admin/orders/:id", func(c *gin.Context) {
		order, err := ordersStore.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "get_order_failed", "msg": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.POST("/admin/orders/:id/status", func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("id")

		var req validation.UpdateOrderStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		target, err := orders.ParseStatus(req.Target)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "msg": err.Error()})
			return
		}

		// Optional double-submission guard: a replayed Idempotency-Key
		// returns the stored outcome instead of re-running the transition.
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey != "" {
			created, err := idempStore.CreateIfNotExists(ctx, idempKey, orderID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "msg": err.Error()})
				return
			}
			if !created {
				rec, err := idempStore.Get(ctx, idempKey)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "msg": err.Error()})
					return
				}
				if rec != nil && rec.Status == idempotency.StatusDone {
					c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
					return
				}
				if rec != nil && rec.Status == idempotency.StatusInProgress {
					c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
					return
				}
				// FAILED: fall through and retry the transition
			}
		}

		updated, err := svc.Transition(ctx, orderID, target)
		if err != nil {
			if idempKey != "" {
				_ = idempStore.MarkFailed(ctx, idempKey, err.Error())
			}
			status, body := transitionErrorResponse(err)
			c.JSON(status, body)
			return
		}

		if idempKey != "" {
			if respBody, merr := json.Marshal(updated); merr == nil {
				_ = idempStore.MarkDone(ctx, idempKey, string(respBody), http.StatusOK)
			}
		}
		c.JSON(http.StatusOK, updated)
	})
}

// transitionErrorResponse maps the transition error taxonomy onto HTTP. The
// dashboard shows these messages verbatim, so they must name the problem.
func transitionErrorResponse(err error) (int, gin.H) {
	var blocked *orders.FulfillmentBlockedError
	switch {
	case errors.As(err, &blocked):
		return http.StatusConflict, gin.H{
			"error":       "fulfillment_blocked",
			"strain_id":   blocked.StrainID,
			"strain_name": blocked.StrainName,
			"msg":         blocked.Error(),
		}
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, gin.H{"error": "invalid_transition", "msg": err.Error()}
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, gin.H{"error": "not_found", "msg": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": "transition_failed", "msg": err.Error()}
	}
}
