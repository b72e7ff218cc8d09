// Package api provides the job-queue HTTP service for drum2midi
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/drum2midi/pkg/converter"
	"github.com/james-see/drum2midi/pkg/pipeline"
	"github.com/james-see/drum2midi/pkg/separation"
)

// Version is reported by the health endpoint.
const Version = "0.2.0"

// @title drum2midi API
// @version 0.2.0
// @description Drum WAV separation and MIDI extraction API
// @host localhost:8001
// @BasePath /

// Server is the HTTP front end of the job queue.
type Server struct {
	cfg    Config
	engine *gin.Engine
	jobs   *jobQueue
	models *separation.ModelCache
	log    *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithProcessFunc replaces the pipeline runner.
func WithProcessFunc(fn ProcessFunc) Option {
	return func(s *Server) { s.jobs.process = fn }
}

// WithLogger sets the job logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
		s.jobs.log = l
	}
}

// NewServer builds a Server. Call Start to launch its workers.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	s := &Server{
		cfg:    cfg,
		models: separation.NewModelCache(nil),
		log:    slog.Default(),
	}
	s.jobs = newJobQueue(cfg.WorkDir, pipeline.Run, s.log)
	for _, o := range opts {
		o(s)
	}

	r := gin.Default()
	r.GET("/healthz", s.healthCheck)
	jobs := r.Group("/api/jobs")
	{
		jobs.POST("", s.createJob)
		jobs.GET("/:id", s.getJob)
		jobs.GET("/:id/download", s.downloadJob)
	}
	r.GET("/api/stems", listStems)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine = r

	return s, nil
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.engine)
}

// Start launches the workers; they stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	s.jobs.start(ctx, s.cfg.Workers)
}

// StartServer runs the service until ctx is cancelled
func StartServer(ctx context.Context, cfg Config) error {
	s, err := NewServer(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.Start(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	cancel()
	s.jobs.wait()
	return nil
}

// healthCheck godoc
// @Summary Health check endpoint
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"version":      Version,
		"ml_available": s.models.Available(),
	})
}

// listStems godoc
// @Summary List recognised stems
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/stems [get]
func listStems(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stems":    pipeline.RecognizedStems,
		"default":  pipeline.DefaultStems,
		"backends": []separation.Method{separation.MethodAuto, separation.MethodDSP, separation.MethodML},
		"quality":  []separation.Quality{separation.QualityFast, separation.QualityBalanced, separation.QualityBest},
	})
}

// createJob godoc
// @Summary Submit a drum recording
// @Description Upload a WAV file; the job runs in the background
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "WAV file"
// @Param stems formData string false "Comma separated stems (default: kick,snare,hihat)"
// @Param bpm formData string false "BPM or auto"
// @Param sep_backend formData string false "auto, dsp or ml (default: dsp)"
// @Param sep_quality formData string false "fast, balanced or best"
// @Param quantize formData number false "Quantize strength 0..1"
// @Success 200 {object} JobStatus
// @Failure 400 {object} map[string]string
// @Router /api/jobs [post]
func (s *Server) createJob(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	if converter.DetectFormat(header.Filename) != converter.FormatWAV {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only WAV files are accepted"})
		return
	}
	if header.Size > s.cfg.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.MaxFileSize>>20),
		})
		return
	}

	opts, err := s.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	if err := os.MkdirAll(s.jobs.dir(id), 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	input := filepath.Join(s.jobs.dir(id), "input.wav")
	if err := saveUpload(file, input); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status, err := s.jobs.submit(id, input, opts)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) parseOptions(c *gin.Context) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	opts.Models = s.models
	opts.Logger = s.log

	if stems := pipeline.ParseStems(c.DefaultPostForm("stems", "kick,snare,hihat")); len(stems) > 0 {
		opts.Stems = stems
	}
	bpm, err := pipeline.ParseBPM(c.DefaultPostForm("bpm", "auto"))
	if err != nil {
		return opts, err
	}
	opts.BPM = bpm

	method, err := separation.ParseMethod(c.DefaultPostForm("sep_backend", "dsp"))
	if err != nil {
		return opts, err
	}
	opts.Separation.Method = method
	quality, err := separation.ParseQuality(c.DefaultPostForm("sep_quality", "balanced"))
	if err != nil {
		return opts, err
	}
	opts.Separation.Quality = quality

	if q := strings.TrimSpace(c.PostForm("quantize")); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			return opts, fmt.Errorf("%w: quantize must be a number", pipeline.ErrInvalidConfig)
		}
		opts.Quantize = v
	}
	return opts, opts.Validate()
}

func saveUpload(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// getJob godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobStatus
// @Failure 404 {object} map[string]string
// @Router /api/jobs/{id} [get]
func (s *Server) getJob(c *gin.Context) {
	status, ok := s.jobs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// downloadJob godoc
// @Summary Download job results
// @Description ZIP with stems/*.wav, drums.mid and report.json
// @Tags jobs
// @Produce application/zip
// @Param id path string true "Job ID"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/jobs/{id}/download [get]
func (s *Server) downloadJob(c *gin.Context) {
	id := c.Param("id")
	status, ok := s.jobs.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if status.Status != StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Job is %s, not completed", status.Status)})
		return
	}
	path := filepath.Join(s.jobs.dir(id), "result.zip")
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result file not found"})
		return
	}
	c.FileAttachment(path, fmt.Sprintf("drum2midi-%s.zip", id[:8]))
}
