package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func resourcePath(resource string) (string, error) {
	resource = strings.Trim(strings.TrimSpace(resource), "/")
	if resource == "" || strings.Contains(resource, "/") {
		return "", fmt.Errorf("%w: invalid resource %q", ErrRequestFailed, resource)
	}
	return "/api/v1/" + resource, nil
}

// ListResource 列出目录资源
func (c *Client) ListResource(ctx context.Context, resource string, query url.Values) ([]Record, error) {
	path, err := resourcePath(resource)
	if err != nil {
		return nil, err
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var records []Record
	if err := c.do(ctx, request{op: "list_" + resource, method: http.MethodGet, path: path}, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetResource 获取单条目录资源
func (c *Client) GetResource(ctx context.Context, resource string, id uint) (Record, error) {
	path, err := resourcePath(resource)
	if err != nil {
		return nil, err
	}
	var record Record
	req := request{op: "get_" + resource, method: http.MethodGet, path: fmt.Sprintf("%s/%d", path, id)}
	if err := c.do(ctx, req, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// CreateResource 新建目录资源
func (c *Client) CreateResource(ctx context.Context, resource string, body Record) (Record, error) {
	path, err := resourcePath(resource)
	if err != nil {
		return nil, err
	}
	req, err := jsonRequest("create_"+resource, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := c.do(ctx, req, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateResource 以 PATCH 提交变更字段
func (c *Client) UpdateResource(ctx context.Context, resource string, id uint, body Record) (Record, error) {
	path, err := resourcePath(resource)
	if err != nil {
		return nil, err
	}
	req, err := jsonRequest("update_"+resource, http.MethodPatch, fmt.Sprintf("%s/%d", path, id), body)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := c.do(ctx, req, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteResource 删除目录资源
func (c *Client) DeleteResource(ctx context.Context, resource string, id uint) error {
	path, err := resourcePath(resource)
	if err != nil {
		return err
	}
	return c.do(ctx, request{op: "delete_" + resource, method: http.MethodDelete, path: fmt.Sprintf("%s/%d", path, id)}, nil)
}
