package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

// cart lines may name the menu item as "id" or "menuItemId"
type orderItemRequest struct {
	ID         uint             `json:"id"`
	MenuItemID uint             `json:"menuItemId"`
	Quantity   int              `json:"quantity"`
	Price      *decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	Items     []orderItemRequest `json:"items"`
	Subtotal  *decimal.Decimal   `json:"subtotal"`
	Tax       *decimal.Decimal   `json:"tax"`
	Total     *decimal.Decimal   `json:"total"`
	OrderType string             `json:"orderType"`
}

// CreateOrder -> checkout, dipanggil kiosk atau web
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, invalidBody(err))
		return
	}

	in := services.CreateOrderInput{
		Items:     make([]services.OrderItemInput, 0, len(req.Items)),
		Subtotal:  req.Subtotal,
		Tax:       req.Tax,
		Total:     req.Total,
		OrderType: req.OrderType,
	}
	for _, item := range req.Items {
		menuItemID := item.MenuItemID
		if menuItemID == 0 {
			menuItemID = item.ID
		}
		in.Items = append(in.Items, services.OrderItemInput{
			MenuItemID: menuItemID,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}

	orderID, err := oc.Orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", gin.H{"orderId": orderID})
}

func (oc *OrderController) GetOrderByID(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	order, err := oc.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// GetAllOrders -> admin listing with ?status=&order_type=&limit=&offset=
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}

	orders, total, err := oc.Orders.ListOrders(c.Request.Context(), services.OrderFilter{
		Status:    c.Query("status"),
		OrderType: c.Query("order_type"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", gin.H{
		"orders": orders,
		"total":  total,
	})
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	order, err := oc.Orders.CancelOrder(c.Request.Context(), id)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}
