package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/services"
	"github.com/gin-gonic/gin"
)

type deviceView struct {
	DeviceID   string     `json:"device_id"`
	Name       string     `json:"name"`
	OwnerID    string     `json:"owner_id"`
	LastActive *time.Time `json:"last_active"`
}

func toDeviceView(d *models.Device) deviceView {
	return deviceView{DeviceID: d.DeviceID, Name: d.Name, OwnerID: d.OwnerID, LastActive: d.LastActive}
}

type scanView struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	Side           string `json:"side"`
	TemplateID     string `json:"template_id"`
	ExamID         string `json:"exam_id,omitempty"`
	FileARemote    string `json:"file_a_remote_path,omitempty"`
	FileBRemote    string `json:"file_b_remote_path,omitempty"`
	PageRemotePath string `json:"page_remote_path,omitempty"`
}

func toScanView(s *models.Scan) scanView {
	return scanView{
		ID:             s.ID,
		Status:         s.Status.String(),
		Side:           string(s.Side),
		TemplateID:     s.TemplateID,
		ExamID:         s.ExamID,
		FileARemote:    s.FileA.RemotePath,
		FileBRemote:    s.FileB.RemotePath,
		PageRemotePath: s.PageRemotePath,
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) upload(c *gin.Context) {
	req := services.UploadRequest{
		OwnerID:  c.Param("owner"),
		DeviceID: c.Param("device"),
		Sidecar:  json.RawMessage(c.PostForm("json")),
	}

	fh, err := c.FormFile("file")
	if err == nil {
		f, err := fh.Open()
		if err != nil {
			s.fail(c, fmt.Errorf("%w: %v", common.ErrorIncorrectPayload, err))
			return
		}
		defer f.Close()
		req.FileName, req.File = fh.Filename, f
	}

	res, err := s.svc.Ingest.Ingest(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.Info != "" {
		c.JSON(http.StatusOK, gin.H{"info": res.Info})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) updateDevice(c *gin.Context) {
	d, err := s.svc.Devices.Register(c.Request.Context(), c.Param("owner"), c.Param("device"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeviceView(d))
}

func (s *Server) activeDevices(c *gin.Context) {
	devices, err := s.svc.Devices.Active(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceView(d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) checkApp(c *gin.Context) {
	app, err := s.svc.Apps.Latest(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if app == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, app)
}

type statusRequest struct {
	Status *int `json:"status"`
}

func (s *Server) advanceStatus(c *gin.Context) {
	id, ok := s.scanID(c)
	if !ok {
		return
	}
	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Status == nil {
		s.fail(c, fmt.Errorf("%w: body must be {\"status\": n}", common.ErrorIncorrectPayload))
		return
	}
	to := models.ScanStatus(*body.Status)
	if !to.Valid() {
		s.fail(c, fmt.Errorf("%w: %s", common.ErrInvalidTransition, to))
		return
	}

	scan, err := s.svc.Scans.AdvanceStatus(c.Request.Context(), id, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toScanView(scan))
}

func (s *Server) archive(c *gin.Context) {
	id, ok := s.scanID(c)
	if !ok {
		return
	}
	scan, err := s.svc.Archives.Archive(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toScanView(scan))
}

func (s *Server) scanID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(c, fmt.Errorf("%w: bad scan id %q", common.ErrorIncorrectPayload, c.Param("id")))
		return 0, false
	}
	return id, true
}
