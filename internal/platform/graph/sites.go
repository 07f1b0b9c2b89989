package graph

import (
	"context"
	"fmt"
)

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

func collect[T any](ctx context.Context, c *client, op, url string) ([]T, error) {
	var out []T
	for url != "" {
		var p page[T]
		if err := c.getJSON(ctx, op, url, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Value...)
		url = p.NextLink
	}
	return out, nil
}

func (c *client) ListSites(ctx context.Context) ([]Site, error) {
	return collect[Site](ctx, c, "list_sites", c.url("/sites?search=*"))
}

func (c *client) ListDrives(ctx context.Context, siteID string) ([]Drive, error) {
	return collect[Drive](ctx, c, "list_drives", c.url(fmt.Sprintf("/sites/%s/drives", siteID)))
}
