package graph

import (
	"context"
	"fmt"
	"net/http"
)

func (c *client) GetItem(ctx context.Context, siteID, driveID, itemID string) (DriveItem, error) {
	var it DriveItem
	err := c.getJSON(ctx, "get_item", c.url(fmt.Sprintf("/sites/%s/drives/%s/items/%s", siteID, driveID, itemID)), &it)
	if err != nil {
		if IsNotFound(err) {
			return DriveItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		return DriveItem{}, err
	}
	return it, nil
}

// Download fetches a pre-authenticated download URL. The bearer token is not sent.
func (c *client) Download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("graph download: empty url")
	}
	return c.send(ctx, "download", request{method: http.MethodGet, url: url, httpClient: c.download})
}

// Upload replaces the content of an existing item and returns the updated item.
func (c *client) Upload(ctx context.Context, siteID, driveID, itemID string, content []byte) (DriveItem, error) {
	if content == nil {
		content = []byte{}
	}
	raw, err := c.send(ctx, "upload", request{
		method:      http.MethodPut,
		url:         c.url(fmt.Sprintf("/sites/%s/drives/%s/items/%s/content", siteID, driveID, itemID)),
		body:        content,
		contentType: DocxMimeType,
	})
	if err != nil {
		return DriveItem{}, err
	}
	var it DriveItem
	if err := decodeJSON("upload", raw, &it); err != nil {
		return DriveItem{}, err
	}
	return it, nil
}
