package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/modules/drives"
	"github.com/yungbote/docsync-backend/internal/modules/ingestion"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
)

type fakeDrives struct {
	sites     []drives.SiteDrive
	updated   []drives.SiteDrive
	updateErr error
	resynced  uuid.UUID
}

func (f *fakeDrives) ListSites(context.Context) ([]drives.SiteDrive, error) { return f.sites, nil }
func (f *fakeDrives) UpdateSynced(_ context.Context, in []drives.SiteDrive) error {
	f.updated = in
	return f.updateErr
}
func (f *fakeDrives) Resync(_ context.Context, id uuid.UUID) (ingestion.IngestResult, error) {
	f.resynced = id
	return ingestion.IngestResult{Updated: 2}, nil
}
func (f *fakeDrives) RebuildIndex(context.Context) (drives.RebuildResult, error) {
	return drives.RebuildResult{Indexed: 3}, nil
}

func newSharePointRouter(f *fakeDrives) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSharePointHandler(f)
	r := gin.New()
	r.GET("/api/sharepoint/sites", h.ListSites)
	r.PUT("/api/sharepoint/sites", h.UpdateSites)
	r.POST("/api/drives/:id/resync", h.ResyncDrive)
	r.POST("/api/index/rebuild", h.RebuildIndex)
	return r
}

func TestUpdateSitesPassesSelection(t *testing.T) {
	f := &fakeDrives{sites: []drives.SiteDrive{{SiteID: "s1", DriveID: "d1", Synced: true}}}
	body := `[{"siteId":"s1","siteName":"Alpha","driveId":"d1","driveName":"Docs","synced":true}]`
	req := httptest.NewRequest(http.MethodPut, "/api/sharepoint/sites", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newSharePointRouter(f).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if len(f.updated) != 1 || f.updated[0].DriveName != "Docs" || !f.updated[0].Synced {
		t.Fatalf("selection: got=%+v", f.updated)
	}
	var out struct {
		Drives []drives.SiteDrive `json:"drives"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || len(out.Drives) != 1 {
		t.Fatalf("response: err=%v got=%s", err, rec.Body.String())
	}
}

func TestUpdateSitesErrors(t *testing.T) {
	f := &fakeDrives{updateErr: apierr.InvalidArgument("invalid_drive", "siteId and driveId are required")}
	req := httptest.NewRequest(http.MethodPut, "/api/sharepoint/sites", strings.NewReader(`[{"siteId":"s1"}]`))
	rec := httptest.NewRecorder()
	newSharePointRouter(f).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_drive") {
		t.Fatalf("service error: status=%d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/api/sharepoint/sites", strings.NewReader(`{`))
	rec = httptest.NewRecorder()
	newSharePointRouter(f).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_request") {
		t.Fatalf("bad body: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestResyncDrive(t *testing.T) {
	f := &fakeDrives{}
	id := uuid.New()
	rec := httptest.NewRecorder()
	newSharePointRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drives/"+id.String()+"/resync", nil))
	if rec.Code != http.StatusOK || f.resynced != id {
		t.Fatalf("resync: status=%d id=%v", rec.Code, f.resynced)
	}
	if !strings.Contains(rec.Body.String(), `"updated":2`) {
		t.Fatalf("body: got=%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newSharePointRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drives/x/resync", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: want=400 got=%d", rec.Code)
	}
}

type fakeFiles struct {
	itemID, content string
}

func (f *fakeFiles) UpdateFile(_ context.Context, itemID, content string) (*domain.TrackedFile, error) {
	f.itemID, f.content = itemID, content
	if content == "" {
		return nil, apierr.InvalidArgument("invalid_content", "content is required")
	}
	return &domain.TrackedFile{ItemID: itemID, Content: content}, nil
}

func TestUpdateFileHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := &fakeFiles{}
	r := gin.New()
	r.PUT("/api/files/:itemId", NewFileHandler(f).UpdateFile)

	req := httptest.NewRequest(http.MethodPut, "/api/files/item-7", strings.NewReader(`{"content":"<p>ok</p>"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || f.itemID != "item-7" || f.content != "<p>ok</p>" {
		t.Fatalf("update: status=%d item=%q content=%q", rec.Code, f.itemID, f.content)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/files/item-7", strings.NewReader(`{"content":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty content: want=400 got=%d", rec.Code)
	}
}
