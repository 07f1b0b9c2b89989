package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type deltaResponse struct {
	Value     []DriveItem `json:"value"`
	NextLink  string      `json:"@odata.nextLink"`
	DeltaLink string      `json:"@odata.deltaLink"`
}

// ListDelta returns every change since cursor, following nextLink pages until
// a deltaLink is issued. An empty cursor yields a full snapshot of the drive.
// An expired cursor (410 Gone) falls back to a full snapshot.
func (c *client) ListDelta(ctx context.Context, siteID, driveID, cursor string) (DeltaPage, error) {
	page, err := c.listDelta(ctx, siteID, driveID, cursor)
	if err != nil && cursor != "" && isGone(err) {
		c.log.Warn("Graph delta cursor expired; resyncing from full snapshot", "site_id", siteID, "drive_id", driveID)
		return c.listDelta(ctx, siteID, driveID, "")
	}
	return page, err
}

func (c *client) listDelta(ctx context.Context, siteID, driveID, cursor string) (DeltaPage, error) {
	next := strings.TrimSpace(cursor)
	if next == "" {
		next = c.url(fmt.Sprintf("/sites/%s/drives/%s/root/delta", siteID, driveID))
	}
	var out DeltaPage
	for pages := 0; ; pages++ {
		if pages > 10000 {
			return DeltaPage{}, fmt.Errorf("graph delta: too many pages for drive %s", driveID)
		}
		var resp deltaResponse
		if err := c.getJSON(ctx, "delta", next, &resp); err != nil {
			return DeltaPage{}, err
		}
		for _, it := range resp.Value {
			if it.Root != nil {
				continue
			}
			out.Entries = append(out.Entries, entryFromItem(it))
		}
		switch {
		case resp.NextLink != "":
			next = resp.NextLink
		case resp.DeltaLink != "":
			out.NextCursor = resp.DeltaLink
			return out, nil
		default:
			return DeltaPage{}, fmt.Errorf("graph delta: page has neither nextLink nor deltaLink")
		}
	}
}

func isGone(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.StatusCode == http.StatusGone
}
