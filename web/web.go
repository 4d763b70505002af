// Package web exposes the scanner over HTTP for the browser UI. It is
// thin plumbing: every operation delegates to the scan manager, the
// raster calculator or the result store.
package web

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/hb9tf/ssbscan/config"
	"github.com/hb9tf/ssbscan/nr"
	"github.com/hb9tf/ssbscan/probe"
	"github.com/hb9tf/ssbscan/scan"
	"github.com/hb9tf/ssbscan/store"
)

// Scanner is the session surface the API consumes. Satisfied by
// *scan.Manager.
type Scanner interface {
	StartScan(scan.ScanParams) error
	StartCapture(scan.CaptureParams) error
	Stop()
	ScanStatus() scan.ScanState
	CaptureStatus() scan.CaptureState
	ProbeSingle(scan.SingleParams) (probe.Outcome, error)
}

// Server wires the API handlers to their collaborators.
type Server struct {
	Scanner Scanner
	Store   store.Store
	Config  *config.Config
}

// Router builds the gin engine with all API routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/bands", s.bands)
	api.GET("/gscn/:band", s.gscn)
	api.POST("/scan/start", s.scanStart)
	api.POST("/scan/stop", s.scanStop)
	api.POST("/scan/single", s.scanSingle)
	api.GET("/status", s.status)
	api.POST("/capture/start", s.captureStart)
	api.GET("/capture/status", s.captureStatus)
	api.GET("/config", s.configGet)
	api.POST("/config", s.configUpdate)
	api.POST("/validate", s.validate)

	return r
}

func (s *Server) bands(c *gin.Context) {
	c.JSON(http.StatusOK, nr.AllBands())
}

func (s *Server) gscn(c *gin.Context) {
	band := c.Param("band")
	cfg := s.Config.Get()
	entries, err := nr.ComputeRaster(band, cfg.Scanning.GSCNStepSize, cfg.Scanning.MaxCandidatesPerBand)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, _ := nr.Info(band)
	c.JSON(http.StatusOK, gin.H{
		"band":        band,
		"bandInfo":    info,
		"frequencies": entries,
		"count":       len(entries),
	})
}

type scanStartRequest struct {
	Band          string `json:"band" binding:"required"`
	Gain          *int   `json:"gain"`
	RxSigLength   *int   `json:"rxSigLength"`
	StepSize      *int   `json:"stepSize"`
	MaxCandidates *int   `json:"maxCandidates"`
}

func (s *Server) scanStart(c *gin.Context) {
	var req scanStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.Config.Get()
	p := scan.ScanParams{
		Band:          req.Band,
		Gain:          cfg.Probe.Gain,
		RxSigLength:   cfg.Probe.RxSigLength,
		StepSize:      cfg.Scanning.GSCNStepSize,
		MaxCandidates: cfg.Scanning.MaxCandidatesPerBand,
	}
	if req.Gain != nil {
		p.Gain = *req.Gain
	}
	if req.RxSigLength != nil {
		p.RxSigLength = *req.RxSigLength
	}
	if req.StepSize != nil {
		p.StepSize = *req.StepSize
	}
	if req.MaxCandidates != nil {
		p.MaxCandidates = *req.MaxCandidates
	}

	if err := s.Scanner.StartScan(p); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, scan.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "scan started"})
}

func (s *Server) scanStop(c *gin.Context) {
	s.Scanner.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "stop requested"})
}

type scanSingleRequest struct {
	FrequencyHz int64 `json:"frequencyHz" binding:"required"`
	Gain        *int  `json:"gain"`
	RxSigLength *int  `json:"rxSigLength"`
}

func (s *Server) scanSingle(c *gin.Context) {
	var req scanSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.Config.Get()
	p := scan.SingleParams{
		FrequencyHz: req.FrequencyHz,
		Gain:        cfg.Probe.Gain,
		RxSigLength: cfg.Probe.RxSigLength,
	}
	if req.Gain != nil {
		p.Gain = *req.Gain
	}
	if req.RxSigLength != nil {
		p.RxSigLength = *req.RxSigLength
	}

	outcome, err := s.Scanner.ProbeSingle(p)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scan.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome":  outcome.Kind.String(),
		"ssbCount": outcome.SSBCount,
		"message":  outcome.Message,
	})
}

func (s *Server) status(c *gin.Context) {
	state := s.Scanner.ScanStatus()

	detected, err := s.Store.All(c.Request.Context())
	if err != nil {
		glog.Warningf("unable to load detections: %s", err)
		detected = map[string][]store.Detection{}
	}
	c.JSON(http.StatusOK, gin.H{
		"scan":                state,
		"detectedFrequencies": detected,
	})
}

type captureStartRequest struct {
	GSCN            int     `json:"gscn" binding:"required"`
	FrequencyHz     int64   `json:"frequencyHz" binding:"required"`
	DurationMinutes float64 `json:"durationMinutes" binding:"required"`
	NumFiles        int     `json:"numFiles" binding:"required"`
	Gain            *int    `json:"gain"`
}

func (s *Server) captureStart(c *gin.Context) {
	var req captureStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.Config.Get()
	p := scan.CaptureParams{
		GSCN:         req.GSCN,
		FrequencyHz:  req.FrequencyHz,
		Gain:         cfg.Probe.Gain,
		FileDuration: time.Duration(req.DurationMinutes * float64(time.Minute)),
		NumFiles:     req.NumFiles,
	}
	if req.Gain != nil {
		p.Gain = *req.Gain
	}

	if err := s.Scanner.StartCapture(p); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, scan.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "capture started"})
}

func (s *Server) captureStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Scanner.CaptureStatus())
}

func (s *Server) configGet(c *gin.Context) {
	c.JSON(http.StatusOK, s.Config.Get())
}

func (s *Server) configUpdate(c *gin.Context) {
	// Overlay the request on the current settings so partial updates
	// keep everything else.
	settings := s.Config.Get()
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Config.Update(settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "configuration updated"})
}

type validateRequest struct {
	ExecutablePath string `json:"executablePath" binding:"required"`
}

func (s *Server) validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fi, err := os.Stat(req.ExecutablePath)
	valid := err == nil && fi.Mode().IsRegular()
	msg := "probe executable found"
	if !valid {
		msg = "probe executable not found at " + req.ExecutablePath
	}
	c.JSON(http.StatusOK, gin.H{"isValid": valid, "message": msg})
}
