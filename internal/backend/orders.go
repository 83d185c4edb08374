package backend

import (
	"context"
	"fmt"
	"net/http"
)

// GetOrder 获取订单
func (c *Client) GetOrder(ctx context.Context, orderID uint) (*Order, error) {
	var order Order
	req := request{op: "get_order", method: http.MethodGet, path: fmt.Sprintf("/api/v1/orders/%d", orderID)}
	if err := c.do(ctx, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderState 以完整整数覆盖订单履约状态
func (c *Client) UpdateOrderState(ctx context.Context, orderID uint, state int) error {
	req, err := jsonRequest("update_order_state", http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/state", orderID), map[string]int{"state": state})
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// CreateOrder 由购物车创建订单，请求体原样透传
func (c *Client) CreateOrder(ctx context.Context, body Record) (*Order, error) {
	req, err := jsonRequest("create_order", http.MethodPost, "/api/v1/orders", body)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := c.do(ctx, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetCart 获取当前调用方的购物车
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, request{op: "get_cart", method: http.MethodGet, path: "/api/v1/cart"}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddCartItem 加入购物车
func (c *Client) AddCartItem(ctx context.Context, productID uint, quantity int) (*Cart, error) {
	req, err := jsonRequest("add_cart_item", http.MethodPost, "/api/v1/cart/items", map[string]interface{}{
		"productID": productID,
		"quantity":  quantity,
	})
	if err != nil {
		return nil, err
	}
	var cart Cart
	if err := c.do(ctx, req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveCartItem 移出购物车
func (c *Client) RemoveCartItem(ctx context.Context, productID uint) (*Cart, error) {
	var cart Cart
	req := request{op: "remove_cart_item", method: http.MethodDelete, path: fmt.Sprintf("/api/v1/cart/items/%d", productID)}
	if err := c.do(ctx, req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}
